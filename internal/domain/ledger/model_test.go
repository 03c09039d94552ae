package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/id"
)

func TestApprovalTransitions(t *testing.T) {
	assert.True(t, ValidApprovalTransition(ApprovalPending, ApprovalApproved))
	assert.True(t, ValidApprovalTransition(ApprovalPending, ApprovalRejected))
	assert.False(t, ValidApprovalTransition(ApprovalApproved, ApprovalRejected))
	assert.False(t, ValidApprovalTransition(ApprovalRejected, ApprovalApproved))
	assert.False(t, ValidApprovalTransition(ApprovalPending, ApprovalPending))
}

func TestDeliveryTransitions(t *testing.T) {
	assert.True(t, ValidDeliveryTransition(DeliveryNone, DeliveryPending))
	assert.True(t, ValidDeliveryTransition(DeliveryNone, DeliveryDelivered))
	assert.True(t, ValidDeliveryTransition(DeliveryPending, DeliveryDelivered))
	assert.False(t, ValidDeliveryTransition(DeliveryDelivered, DeliveryDelivered))
	assert.False(t, ValidDeliveryTransition(DeliveryPending, DeliveryNone))
}

func TestDeliveryDetails_Merge(t *testing.T) {
	expiry := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	base := &DeliveryDetails{BatchNumber: "B1", ExpiryDate: &expiry}

	merged := base.Merge(&DeliveryDetails{RecipientName: "Ward 3"})
	assert.Equal(t, "B1", merged.BatchNumber)
	assert.Equal(t, &expiry, merged.ExpiryDate)
	assert.Equal(t, "Ward 3", merged.RecipientName)

	// base is not modified
	assert.Empty(t, base.RecipientName)

	var none *DeliveryDetails
	assert.Equal(t, "B2", none.Merge(&DeliveryDetails{BatchNumber: "B2"}).BatchNumber)

	// existing batch metadata is never replaced
	later := expiry.AddDate(1, 0, 0)
	kept := base.Merge(&DeliveryDetails{BatchNumber: "B9", ExpiryDate: &later})
	assert.Equal(t, "B1", kept.BatchNumber)
	assert.Equal(t, &expiry, kept.ExpiryDate)
}

func TestDeliveryDetails_BatchConflict(t *testing.T) {
	expiry := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	sameInstant := expiry.In(time.FixedZone("UTC+2", 2*3600))
	later := expiry.AddDate(0, 1, 0)
	base := &DeliveryDetails{BatchNumber: "B1", ExpiryDate: &expiry}

	assert.Empty(t, base.BatchConflict(&DeliveryDetails{RecipientName: "Ward 3"}))
	assert.Empty(t, base.BatchConflict(&DeliveryDetails{BatchNumber: "B1", ExpiryDate: &sameInstant}))
	assert.Equal(t, "batch_number", base.BatchConflict(&DeliveryDetails{BatchNumber: "B999"}))
	assert.Equal(t, "expiry_date", base.BatchConflict(&DeliveryDetails{ExpiryDate: &later}))

	var none *DeliveryDetails
	assert.Empty(t, none.BatchConflict(&DeliveryDetails{BatchNumber: "B2", ExpiryDate: &later}))
	assert.Empty(t, (&DeliveryDetails{RecipientName: "x"}).BatchConflict(&DeliveryDetails{BatchNumber: "B2"}))
}

func TestEntry_PairsAndTouches(t *testing.T) {
	p, w1, w2 := id.New(), id.New(), id.New()
	e := &Entry{Type: TypeTransfer, ProductID: p, SourceWarehouseID: &w1, TargetWarehouseID: &w2}

	assert.Equal(t, []Pair{{p, w1}, {p, w2}}, e.Pairs())
	assert.True(t, e.Touches(Pair{p, w2}))
	assert.False(t, e.Touches(Pair{id.New(), w2}))
}

func TestEntry_CloneIsDeep(t *testing.T) {
	w := id.New()
	e := &Entry{TargetWarehouseID: &w, DeliveryDetails: &DeliveryDetails{BatchNumber: "B1"}}

	c := e.Clone()
	*c.TargetWarehouseID = id.New()
	c.DeliveryDetails.BatchNumber = "B2"

	assert.Equal(t, w, *e.TargetWarehouseID)
	assert.Equal(t, "B1", e.DeliveryDetails.BatchNumber)
}

func TestFilter_Matches(t *testing.T) {
	p, w := id.New(), id.New()
	e := &Entry{Type: TypeCheckOut, ProductID: p, SourceWarehouseID: &w, ApprovalStatus: ApprovalPending}

	assert.True(t, Filter{}.Matches(e))
	assert.True(t, Filter{Type: TypeCheckOut, ApprovalStatus: ApprovalPending, WarehouseID: &w}.Matches(e))
	assert.False(t, Filter{ApprovalStatus: ApprovalApproved}.Matches(e))
	other := id.New()
	assert.False(t, Filter{WarehouseID: &other}.Matches(e))
}

func TestFilter_Normalize(t *testing.T) {
	f := Filter{Limit: 10000, Offset: -3}.Normalize()
	assert.Equal(t, MaxListLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)
	assert.Equal(t, DefaultListLimit, Filter{}.Normalize().Limit)
}
