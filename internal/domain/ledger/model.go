// Package ledger defines the append-only inventory transaction ledger.
// Entries are immutable after append except for their approval and delivery
// status, which only the approval state machine changes.
package ledger

import (
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Type is the kind of inventory event an entry records.
type Type string

const (
	TypeCheckIn  Type = "check_in"
	TypeCheckOut Type = "check_out"
	TypeTransfer Type = "transfer"
)

// Valid reports whether t is a known entry type.
func (t Type) Valid() bool {
	switch t {
	case TypeCheckIn, TypeCheckOut, TypeTransfer:
		return true
	}
	return false
}

// NumberPrefix returns the prefix of human-readable entry numbers.
func (t Type) NumberPrefix() string {
	switch t {
	case TypeCheckIn:
		return "CI"
	case TypeCheckOut:
		return "CO"
	case TypeTransfer:
		return "TR"
	}
	return "TX"
}

// ApprovalStatus of an entry. Approved and rejected are terminal.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// IsTerminal reports whether no further approval transition is allowed.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// Valid reports whether s is a known approval status.
func (s ApprovalStatus) Valid() bool {
	return s == ApprovalPending || s.IsTerminal()
}

// DeliveryStatus of a check-out entry. Other entry types stay at DeliveryNone.
type DeliveryStatus string

const (
	DeliveryNone      DeliveryStatus = "none"
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
)

// IsTerminal reports whether no further delivery transition is allowed.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryDelivered
}

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryNone, DeliveryPending, DeliveryDelivered:
		return true
	}
	return false
}

// ValidApprovalTransition reports whether from -> to is an allowed edge.
func ValidApprovalTransition(from, to ApprovalStatus) bool {
	return from == ApprovalPending && to.IsTerminal()
}

// ValidDeliveryTransition reports whether from -> to is an allowed edge.
func ValidDeliveryTransition(from, to DeliveryStatus) bool {
	switch from {
	case DeliveryNone:
		return to == DeliveryPending || to == DeliveryDelivered
	case DeliveryPending:
		return to == DeliveryDelivered
	}
	return false
}

// DeliveryDetails is the optional structured payload of an entry.
// Check-ins carry batch metadata here from submission; check-outs get
// recipient data when delivery is recorded.
type DeliveryDetails struct {
	BatchNumber         string     `json:"batch_number,omitempty"`
	ExpiryDate          *time.Time `json:"expiry_date,omitempty"`
	RecipientName       string     `json:"recipient_name,omitempty"`
	RecipientDepartment string     `json:"recipient_department,omitempty"`
	DeliveredAt         *time.Time `json:"delivered_at,omitempty"`
}

// UnbatchedBucket names stock without batch metadata in batch projections.
// It is reserved and never accepted as a batch number.
const UnbatchedBucket = "(unbatched)"

// HasBatch reports whether the payload carries batch metadata.
func (d *DeliveryDetails) HasBatch() bool {
	return d != nil && d.BatchNumber != ""
}

// BatchConflict returns the batch field next would change on d, or "".
// Filling a missing batch number or expiry date is not a conflict.
func (d *DeliveryDetails) BatchConflict(next *DeliveryDetails) string {
	if d == nil || next == nil {
		return ""
	}
	if d.BatchNumber != "" && next.BatchNumber != "" && next.BatchNumber != d.BatchNumber {
		return "batch_number"
	}
	if d.ExpiryDate != nil && next.ExpiryDate != nil && !next.ExpiryDate.Equal(*d.ExpiryDate) {
		return "expiry_date"
	}
	return ""
}

// Merge returns d overlaid with the non-empty fields of next. Batch number
// and expiry date are only filled in, never replaced.
func (d *DeliveryDetails) Merge(next *DeliveryDetails) *DeliveryDetails {
	var out DeliveryDetails
	if d != nil {
		out = *d
	}
	if next == nil {
		return &out
	}
	if out.BatchNumber == "" {
		out.BatchNumber = next.BatchNumber
	}
	if out.ExpiryDate == nil {
		out.ExpiryDate = next.ExpiryDate
	}
	if next.RecipientName != "" {
		out.RecipientName = next.RecipientName
	}
	if next.RecipientDepartment != "" {
		out.RecipientDepartment = next.RecipientDepartment
	}
	if next.DeliveredAt != nil {
		out.DeliveredAt = next.DeliveredAt
	}
	return &out
}

func (d *DeliveryDetails) clone() *DeliveryDetails {
	if d == nil {
		return nil
	}
	out := *d
	if d.ExpiryDate != nil {
		t := *d.ExpiryDate
		out.ExpiryDate = &t
	}
	if d.DeliveredAt != nil {
		t := *d.DeliveredAt
		out.DeliveredAt = &t
	}
	return &out
}

// ApprovalChange is the decision metadata recorded with an approval transition.
type ApprovalChange struct {
	Notes     string
	DecidedBy string
	DecidedAt time.Time
}

// Pair identifies one stock aggregate.
type Pair struct {
	ProductID   id.ID `db:"product_id" json:"product_id"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouse_id"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%s:%s", p.ProductID, p.WarehouseID)
}

// Entry is one immutable inventory transaction.
type Entry struct {
	ID     id.ID  `db:"id" json:"id"`
	Number string `db:"number" json:"number"`
	Type   Type   `db:"type" json:"type"`

	ProductID         id.ID  `db:"product_id" json:"product_id"`
	SourceWarehouseID *id.ID `db:"source_warehouse_id" json:"source_warehouse_id,omitempty"`
	TargetWarehouseID *id.ID `db:"target_warehouse_id" json:"target_warehouse_id,omitempty"`
	Quantity          int64  `db:"quantity" json:"quantity"`

	UnitPrice types.Money `db:"unit_price" json:"unit_price"`
	Currency  string      `db:"currency" json:"currency,omitempty"`

	Reference   string `db:"reference" json:"reference,omitempty"`
	Notes       string `db:"notes" json:"notes,omitempty"`
	ReasonCode  string `db:"reason_code" json:"reason_code,omitempty"`
	Explanation string `db:"explanation" json:"explanation,omitempty"`

	ActorID   string    `db:"actor_id" json:"actor_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	ApprovalStatus  ApprovalStatus   `db:"approval_status" json:"approval_status"`
	DeliveryStatus  DeliveryStatus   `db:"delivery_status" json:"delivery_status"`
	DeliveryDetails *DeliveryDetails `db:"delivery_details" json:"delivery_details,omitempty"`

	LinkedRequestID *id.ID `db:"linked_request_id" json:"linked_request_id,omitempty"`
	POLineID        *id.ID `db:"po_line_id" json:"po_line_id,omitempty"`

	ApprovalNotes string     `db:"approval_notes" json:"approval_notes,omitempty"`
	DecidedBy     string     `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt     *time.Time `db:"decided_at" json:"decided_at,omitempty"`
}

// IsApplied reports whether the entry's effect counts toward balances.
func (e *Entry) IsApplied() bool {
	return e.ApprovalStatus == ApprovalApproved
}

// Pairs returns the aggregates the entry references, source first.
func (e *Entry) Pairs() []Pair {
	pairs := make([]Pair, 0, 2)
	if e.SourceWarehouseID != nil {
		pairs = append(pairs, Pair{ProductID: e.ProductID, WarehouseID: *e.SourceWarehouseID})
	}
	if e.TargetWarehouseID != nil {
		pairs = append(pairs, Pair{ProductID: e.ProductID, WarehouseID: *e.TargetWarehouseID})
	}
	return pairs
}

// Touches reports whether the entry references the pair as source or target.
func (e *Entry) Touches(p Pair) bool {
	if e.ProductID != p.ProductID {
		return false
	}
	return (e.SourceWarehouseID != nil && *e.SourceWarehouseID == p.WarehouseID) ||
		(e.TargetWarehouseID != nil && *e.TargetWarehouseID == p.WarehouseID)
}

// BatchNumber returns the batch the entry carries, or "".
func (e *Entry) BatchNumber() string {
	if e.DeliveryDetails == nil {
		return ""
	}
	return e.DeliveryDetails.BatchNumber
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.SourceWarehouseID = cloneID(e.SourceWarehouseID)
	out.TargetWarehouseID = cloneID(e.TargetWarehouseID)
	out.LinkedRequestID = cloneID(e.LinkedRequestID)
	out.POLineID = cloneID(e.POLineID)
	out.DeliveryDetails = e.DeliveryDetails.clone()
	if e.DecidedAt != nil {
		t := *e.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}

func cloneID(p *id.ID) *id.ID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
