package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/transaction"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// TransactionHandler handles HTTP requests for ledger entries and their
// approval and delivery lifecycle.
type TransactionHandler struct {
	*BaseHandler
	engine *transaction.Engine
}

// NewTransactionHandler creates a new transaction handler.
func NewTransactionHandler(base *BaseHandler, engine *transaction.Engine) *TransactionHandler {
	return &TransactionHandler{BaseHandler: base, engine: engine}
}

// Submit handles POST /transactions
func (h *TransactionHandler) Submit(c *gin.Context) {
	var body dto.SubmitTransactionRequest
	if !h.BindJSON(c, &body) {
		return
	}
	req, err := body.ToRequest()
	if err != nil {
		h.Error(c, err)
		return
	}

	entry, err := h.engine.Submit(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromEntry(entry))
}

// Get handles GET /transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	entryID, ok := h.PathID(c)
	if !ok {
		return
	}
	entry, err := h.engine.Get(c.Request.Context(), entryID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromEntry(entry))
}

// List handles GET /transactions
func (h *TransactionHandler) List(c *gin.Context) {
	var q dto.TransactionListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	f, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	entries, total, err := h.engine.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[dto.TransactionResponse]{
		Items:      dto.FromEntries(entries),
		TotalCount: total,
		Limit:      f.Limit,
		Offset:     f.Offset,
	})
}

// Approve handles POST /transactions/:id/approve
func (h *TransactionHandler) Approve(c *gin.Context) {
	entryID, ok := h.PathID(c)
	if !ok {
		return
	}
	entry, err := h.engine.StateMachine().Approve(c.Request.Context(), entryID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromEntry(entry))
}

// Reject handles POST /transactions/:id/reject
func (h *TransactionHandler) Reject(c *gin.Context) {
	entryID, ok := h.PathID(c)
	if !ok {
		return
	}
	var body dto.RejectTransactionRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &body) {
		return
	}

	entry, err := h.engine.StateMachine().Reject(c.Request.Context(), entryID, body.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromEntry(entry))
}

// RecordDelivery handles POST /transactions/:id/delivery
func (h *TransactionHandler) RecordDelivery(c *gin.Context) {
	entryID, ok := h.PathID(c)
	if !ok {
		return
	}
	var body dto.RecordDeliveryRequest
	if !h.BindJSON(c, &body) {
		return
	}

	entry, err := h.engine.StateMachine().RecordDelivery(c.Request.Context(), entryID, body.ToDetails())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromEntry(entry))
}
