package dto

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/transaction"
)

// --- Request DTOs ---

// SubmitTransactionRequest is the body of POST /transactions.
type SubmitTransactionRequest struct {
	Type              string      `json:"type" binding:"required,oneof=check_in check_out transfer"`
	ProductID         string      `json:"productId" binding:"required"`
	SourceWarehouseID string      `json:"sourceWarehouseId"`
	TargetWarehouseID string      `json:"targetWarehouseId"`
	Quantity          int64       `json:"quantity"`
	UnitPrice         types.Money `json:"unitPrice"`
	Currency          string      `json:"currency"`
	Reference         string      `json:"reference"`
	Notes             string      `json:"notes"`
	ReasonCode        string      `json:"reasonCode"`
	Explanation       string      `json:"explanation"`
	LinkedRequestID   string      `json:"linkedRequestId"`
	POLineID          string      `json:"poLineId"`
	BatchNumber       string      `json:"batchNumber"`
	ExpiryDate        *time.Time  `json:"expiryDate"`
}

// ToRequest converts the DTO into an engine request.
// The actor is always taken from the authenticated user.
func (r SubmitTransactionRequest) ToRequest() (transaction.Request, error) {
	productID, err := ParseID("productId", r.ProductID)
	if err != nil {
		return transaction.Request{}, err
	}

	req := transaction.Request{
		Type:        ledger.Type(r.Type),
		ProductID:   productID,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		Currency:    r.Currency,
		Reference:   r.Reference,
		Notes:       r.Notes,
		ReasonCode:  r.ReasonCode,
		Explanation: r.Explanation,
		BatchNumber: r.BatchNumber,
		ExpiryDate:  r.ExpiryDate,
	}

	optional := []struct {
		field string
		raw   string
		dst   **id.ID
	}{
		{"sourceWarehouseId", r.SourceWarehouseID, &req.SourceWarehouseID},
		{"targetWarehouseId", r.TargetWarehouseID, &req.TargetWarehouseID},
		{"linkedRequestId", r.LinkedRequestID, &req.LinkedRequestID},
		{"poLineId", r.POLineID, &req.POLineID},
	}
	for _, o := range optional {
		parsed, err := ParseOptionalID(o.field, o.raw)
		if err != nil {
			return transaction.Request{}, err
		}
		*o.dst = parsed
	}

	return req, nil
}

// RejectTransactionRequest is the body of POST /transactions/:id/reject.
type RejectTransactionRequest struct {
	Notes string `json:"notes"`
}

// RecordDeliveryRequest is the body of POST /transactions/:id/delivery.
type RecordDeliveryRequest struct {
	RecipientName       string     `json:"recipientName" binding:"required"`
	RecipientDepartment string     `json:"recipientDepartment"`
	BatchNumber         string     `json:"batchNumber"`
	ExpiryDate          *time.Time `json:"expiryDate"`
	DeliveredAt         *time.Time `json:"deliveredAt"`
}

// ToDetails converts the DTO into delivery details.
func (r RecordDeliveryRequest) ToDetails() ledger.DeliveryDetails {
	return ledger.DeliveryDetails{
		RecipientName:       r.RecipientName,
		RecipientDepartment: r.RecipientDepartment,
		BatchNumber:         r.BatchNumber,
		ExpiryDate:          r.ExpiryDate,
		DeliveredAt:         r.DeliveredAt,
	}
}

// TransactionListQuery holds the query parameters of GET /transactions.
type TransactionListQuery struct {
	PaginationRequest
	Type           string `form:"type" binding:"omitempty,oneof=check_in check_out transfer"`
	ApprovalStatus string `form:"approvalStatus" binding:"omitempty,oneof=pending approved rejected"`
	DeliveryStatus string `form:"deliveryStatus" binding:"omitempty,oneof=none pending delivered"`
	ProductID      string `form:"productId"`
	WarehouseID    string `form:"warehouseId"`
	ActorID        string `form:"actorId"`
	POLineID       string `form:"poLineId"`
}

// ToFilter converts the query into a ledger filter.
func (q TransactionListQuery) ToFilter() (ledger.Filter, error) {
	f := ledger.Filter{
		Type:           ledger.Type(q.Type),
		ApprovalStatus: ledger.ApprovalStatus(q.ApprovalStatus),
		DeliveryStatus: ledger.DeliveryStatus(q.DeliveryStatus),
		ActorID:        q.ActorID,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}

	var err error
	if f.ProductID, err = ParseOptionalID("productId", q.ProductID); err != nil {
		return ledger.Filter{}, err
	}
	if f.WarehouseID, err = ParseOptionalID("warehouseId", q.WarehouseID); err != nil {
		return ledger.Filter{}, err
	}
	if f.POLineID, err = ParseOptionalID("poLineId", q.POLineID); err != nil {
		return ledger.Filter{}, err
	}
	return f.Normalize(), nil
}

// --- Response DTOs ---

// DeliveryDetailsResponse represents the structured payload of an entry.
type DeliveryDetailsResponse struct {
	BatchNumber         string     `json:"batchNumber,omitempty"`
	ExpiryDate          *time.Time `json:"expiryDate,omitempty"`
	RecipientName       string     `json:"recipientName,omitempty"`
	RecipientDepartment string     `json:"recipientDepartment,omitempty"`
	DeliveredAt         *time.Time `json:"deliveredAt,omitempty"`
}

// TransactionResponse represents a ledger entry in API responses.
type TransactionResponse struct {
	ID                string                   `json:"id"`
	Number            string                   `json:"number,omitempty"`
	Type              string                   `json:"type"`
	ProductID         string                   `json:"productId"`
	SourceWarehouseID *string                  `json:"sourceWarehouseId,omitempty"`
	TargetWarehouseID *string                  `json:"targetWarehouseId,omitempty"`
	Quantity          int64                    `json:"quantity"`
	UnitPrice         types.Money              `json:"unitPrice"`
	Currency          string                   `json:"currency,omitempty"`
	Reference         string                   `json:"reference,omitempty"`
	Notes             string                   `json:"notes,omitempty"`
	ReasonCode        string                   `json:"reasonCode,omitempty"`
	Explanation       string                   `json:"explanation,omitempty"`
	ActorID           string                   `json:"actorId"`
	CreatedAt         time.Time                `json:"createdAt"`
	ApprovalStatus    string                   `json:"approvalStatus"`
	DeliveryStatus    string                   `json:"deliveryStatus"`
	DeliveryDetails   *DeliveryDetailsResponse `json:"deliveryDetails,omitempty"`
	LinkedRequestID   *string                  `json:"linkedRequestId,omitempty"`
	POLineID          *string                  `json:"poLineId,omitempty"`
	ApprovalNotes     string                   `json:"approvalNotes,omitempty"`
	DecidedBy         string                   `json:"decidedBy,omitempty"`
	DecidedAt         *time.Time               `json:"decidedAt,omitempty"`
}

// FromEntry converts a ledger entry to response DTO.
func FromEntry(e *ledger.Entry) TransactionResponse {
	resp := TransactionResponse{
		ID:                e.ID.String(),
		Number:            e.Number,
		Type:              string(e.Type),
		ProductID:         e.ProductID.String(),
		SourceWarehouseID: idString(e.SourceWarehouseID),
		TargetWarehouseID: idString(e.TargetWarehouseID),
		Quantity:          e.Quantity,
		UnitPrice:         e.UnitPrice,
		Currency:          e.Currency,
		Reference:         e.Reference,
		Notes:             e.Notes,
		ReasonCode:        e.ReasonCode,
		Explanation:       e.Explanation,
		ActorID:           e.ActorID,
		CreatedAt:         e.CreatedAt,
		ApprovalStatus:    string(e.ApprovalStatus),
		DeliveryStatus:    string(e.DeliveryStatus),
		LinkedRequestID:   idString(e.LinkedRequestID),
		POLineID:          idString(e.POLineID),
		ApprovalNotes:     e.ApprovalNotes,
		DecidedBy:         e.DecidedBy,
		DecidedAt:         e.DecidedAt,
	}
	if d := e.DeliveryDetails; d != nil {
		resp.DeliveryDetails = &DeliveryDetailsResponse{
			BatchNumber:         d.BatchNumber,
			ExpiryDate:          d.ExpiryDate,
			RecipientName:       d.RecipientName,
			RecipientDepartment: d.RecipientDepartment,
			DeliveredAt:         d.DeliveredAt,
		}
	}
	return resp
}

// FromEntries converts a page of entries.
func FromEntries(entries []*ledger.Entry) []TransactionResponse {
	out := make([]TransactionResponse, len(entries))
	for i, e := range entries {
		out[i] = FromEntry(e)
	}
	return out
}

func idString(p *id.ID) *string {
	if p == nil {
		return nil
	}
	s := p.String()
	return &s
}
