package transaction

import (
	"strings"
	"time"
	"unicode/utf8"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

// MinExplanationLength is the shortest accepted explanation for entries that
// are not backed by a purchase order or a checkout request.
const MinExplanationLength = 10

// Request is a submission to the ledger.
type Request struct {
	Type              ledger.Type
	ProductID         id.ID
	SourceWarehouseID *id.ID
	TargetWarehouseID *id.ID
	Quantity          int64

	UnitPrice types.Money
	Currency  string

	Reference   string
	Notes       string
	ReasonCode  string
	Explanation string

	// ActorID defaults to the authenticated user.
	ActorID string

	// LinkedRequestID ties a check-out to a checkout request awaiting approval.
	LinkedRequestID *id.ID
	// POLineID ties a check-in to a purchase-order line.
	POLineID *id.ID

	BatchNumber string
	ExpiryDate  *time.Time
}

// Validate checks r and normalizes its currency.
func (r *Request) Validate() error {
	if !r.Type.Valid() {
		return apperror.NewValidation("unknown transaction type").WithDetail("type", r.Type)
	}
	if id.IsNil(r.ProductID) {
		return apperror.NewValidation("product_id is required").WithDetail("field", "product_id")
	}
	if r.Quantity <= 0 {
		return apperror.NewValidation("quantity must be positive").WithDetail("field", "quantity")
	}
	if r.UnitPrice.IsNegative() {
		return apperror.NewValidation("unit_price must not be negative").WithDetail("field", "unit_price")
	}

	currency, err := types.NormalizeCurrency(r.Currency)
	if err != nil {
		return apperror.NewValidation(err.Error()).WithDetail("field", "currency")
	}
	if currency == "" && !r.UnitPrice.IsZero() {
		currency = types.DefaultCurrency
	}
	r.Currency = currency

	if strings.TrimSpace(r.BatchNumber) == ledger.UnbatchedBucket {
		return reservedBatch()
	}

	switch r.Type {
	case ledger.TypeCheckIn:
		return r.validateCheckIn()
	case ledger.TypeCheckOut:
		return r.validateCheckOut()
	default:
		return r.validateTransfer()
	}
}

func (r *Request) validateCheckIn() error {
	if id.IsNilPtr(r.TargetWarehouseID) {
		return required("target_warehouse_id")
	}
	if r.SourceWarehouseID != nil {
		return mustBeEmpty("source_warehouse_id", r.Type)
	}
	if r.LinkedRequestID != nil {
		return mustBeEmpty("linked_request_id", r.Type)
	}
	if r.POLineID == nil {
		return r.requireAuditTrail()
	}
	return nil
}

func (r *Request) validateCheckOut() error {
	if id.IsNilPtr(r.SourceWarehouseID) {
		return required("source_warehouse_id")
	}
	if r.TargetWarehouseID != nil {
		return mustBeEmpty("target_warehouse_id", r.Type)
	}
	if r.POLineID != nil {
		return mustBeEmpty("po_line_id", r.Type)
	}
	if r.LinkedRequestID == nil {
		return r.requireAuditTrail()
	}
	return nil
}

func (r *Request) validateTransfer() error {
	if id.IsNilPtr(r.SourceWarehouseID) {
		return required("source_warehouse_id")
	}
	if id.IsNilPtr(r.TargetWarehouseID) {
		return required("target_warehouse_id")
	}
	if *r.SourceWarehouseID == *r.TargetWarehouseID {
		return apperror.NewSameWarehouse(r.SourceWarehouseID.String())
	}
	if r.POLineID != nil {
		return mustBeEmpty("po_line_id", r.Type)
	}
	if r.LinkedRequestID != nil {
		return mustBeEmpty("linked_request_id", r.Type)
	}
	if r.BatchNumber != "" || r.ExpiryDate != nil {
		return apperror.NewValidation("transfers do not carry batch metadata").WithDetail("field", "batch_number")
	}
	return nil
}

// requireAuditTrail enforces a reason code and a meaningful explanation.
func (r *Request) requireAuditTrail() error {
	if strings.TrimSpace(r.ReasonCode) == "" {
		return apperror.NewAuditRequirementNotMet("reason_code", 1)
	}
	if utf8.RuneCountInString(strings.TrimSpace(r.Explanation)) < MinExplanationLength {
		return apperror.NewAuditRequirementNotMet("explanation", MinExplanationLength)
	}
	return nil
}

func required(field string) error {
	return apperror.NewValidation(field+" is required").WithDetail("field", field)
}

func reservedBatch() error {
	return apperror.NewValidation(ledger.UnbatchedBucket+" is a reserved batch number").WithDetail("field", "batch_number")
}

func mustBeEmpty(field string, t ledger.Type) error {
	return apperror.NewValidation(field+" must be empty for "+string(t)).WithDetail("field", field)
}

// entry builds the ledger entry for r in its initial state.
func (r *Request) entry(now time.Time) *ledger.Entry {
	e := &ledger.Entry{
		ID:                id.New(),
		Type:              r.Type,
		ProductID:         r.ProductID,
		SourceWarehouseID: r.SourceWarehouseID,
		TargetWarehouseID: r.TargetWarehouseID,
		Quantity:          r.Quantity,
		UnitPrice:         r.UnitPrice,
		Currency:          r.Currency,
		Reference:         strings.TrimSpace(r.Reference),
		Notes:             r.Notes,
		ReasonCode:        strings.TrimSpace(r.ReasonCode),
		Explanation:       strings.TrimSpace(r.Explanation),
		ActorID:           r.ActorID,
		CreatedAt:         now,
		ApprovalStatus:    ledger.ApprovalApproved,
		DeliveryStatus:    ledger.DeliveryNone,
		LinkedRequestID:   r.LinkedRequestID,
		POLineID:          r.POLineID,
	}
	if r.Type == ledger.TypeCheckOut {
		e.ApprovalStatus = ledger.ApprovalPending
	}
	if r.BatchNumber != "" || r.ExpiryDate != nil {
		e.DeliveryDetails = &ledger.DeliveryDetails{
			BatchNumber: strings.TrimSpace(r.BatchNumber),
			ExpiryDate:  r.ExpiryDate,
		}
	}
	return e.Clone()
}
