package batch

import "time"

// ExpiryStatus classifies a batch by its expiry date.
type ExpiryStatus string

const (
	StatusNone         ExpiryStatus = ""
	StatusValid        ExpiryStatus = "valid"
	StatusExpiringSoon ExpiryStatus = "expiring_soon"
	StatusExpired      ExpiryStatus = "expired"
)

// ExpiringSoonWindow is how far ahead an expiry counts as expiring soon.
const ExpiringSoonWindow = 30 * 24 * time.Hour

// Classify returns the status of expiry at now. A nil expiry has no status.
func Classify(expiry *time.Time, now time.Time) ExpiryStatus {
	if expiry == nil {
		return StatusNone
	}
	switch {
	case expiry.Before(now):
		return StatusExpired
	case expiry.Before(now.Add(ExpiringSoonWindow)):
		return StatusExpiringSoon
	default:
		return StatusValid
	}
}
