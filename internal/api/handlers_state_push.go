package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/moneypay/ledger-service/internal/app"
	"github.com/shopspring/decimal"
)

type createStatePushRequest struct {
	ReceiverID                 int64           `json:"receiver_id" validate:"required,gt=0"`
	Amount                     decimal.Decimal `json:"amount"`
	StateID                    int64           `json:"state_id" validate:"required,gt=0"`
	DeductCommissionFromAmount bool            `json:"deduct_commission_from_amount"`
	CurrencyCode               string          `json:"currency_code" validate:"omitempty,len=3,alpha"`
	Description                string          `json:"description" validate:"max=255"`
}

// CreateStatePush handles POST /state-pushes.
func (h *Handler) CreateStatePush(w http.ResponseWriter, r *http.Request) {
	senderID, ok := caller(w, r)
	if !ok {
		return
	}
	var req createStatePushRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.service.CreateStatePush(r.Context(), app.CreateStatePushInput{
		SenderID:                   senderID,
		ReceiverID:                 req.ReceiverID,
		Amount:                     req.Amount,
		StateID:                    req.StateID,
		DeductCommissionFromAmount: req.DeductCommissionFromAmount,
		CurrencyCode:               req.CurrencyCode,
		Description:                req.Description,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// ReceiveStatePush handles POST /state-pushes/{reference}/receive.
func (h *Handler) ReceiveStatePush(w http.ResponseWriter, r *http.Request) {
	receiverID, ok := caller(w, r)
	if !ok {
		return
	}
	record, err := h.service.ReceiveStatePush(r.Context(), strings.TrimSpace(chi.URLParam(r, "reference")), receiverID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// CancelStatePush handles POST /state-pushes/{reference}/cancel.
func (h *Handler) CancelStatePush(w http.ResponseWriter, r *http.Request) {
	senderID, ok := caller(w, r)
	if !ok {
		return
	}
	record, err := h.service.CancelStatePush(r.Context(), strings.TrimSpace(chi.URLParam(r, "reference")), senderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type editStatePushRequest struct {
	Amount                     *decimal.Decimal `json:"amount"`
	ReceiverID                 *int64           `json:"receiver_id" validate:"omitempty,gt=0"`
	Description                *string          `json:"description" validate:"omitempty,max=255"`
	DeductCommissionFromAmount *bool            `json:"deduct_commission_from_amount"`
}

// EditStatePush handles PATCH /state-pushes/{reference}. Absent fields keep
// their current value.
func (h *Handler) EditStatePush(w http.ResponseWriter, r *http.Request) {
	senderID, ok := caller(w, r)
	if !ok {
		return
	}
	var req editStatePushRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Amount == nil && req.ReceiverID == nil && req.Description == nil && req.DeductCommissionFromAmount == nil {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}
	record, err := h.service.EditStatePush(r.Context(), strings.TrimSpace(chi.URLParam(r, "reference")), senderID, app.EditStatePushInput{
		Amount:                     req.Amount,
		ReceiverID:                 req.ReceiverID,
		Description:                req.Description,
		DeductCommissionFromAmount: req.DeductCommissionFromAmount,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
