package api

import (
	"context"
	"net/http"

	"github.com/moneypay/ledger-service/internal/app"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

type balanceAdjustmentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

// TopupAccount handles POST /admin/accounts/{id}/topup.
func (h *Handler) TopupAccount(w http.ResponseWriter, r *http.Request) {
	h.adjustBalance(w, r, h.service.TopupAccount)
}

// WithdrawFromAccount handles POST /admin/accounts/{id}/withdraw.
func (h *Handler) WithdrawFromAccount(w http.ResponseWriter, r *http.Request) {
	h.adjustBalance(w, r, h.service.WithdrawFromAccount)
}

func (h *Handler) adjustBalance(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, in app.BalanceAdjustmentInput) (*domain.Transaction, error)) {
	adminID, ok := caller(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req balanceAdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := apply(r.Context(), app.BalanceAdjustmentInput{
		AdminID:     adminID,
		AccountID:   accountID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// SuspendAccount handles POST /admin/accounts/{id}/suspend.
func (h *Handler) SuspendAccount(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, true)
}

// UnsuspendAccount handles POST /admin/accounts/{id}/unsuspend.
func (h *Handler) UnsuspendAccount(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, false)
}

func (h *Handler) setSuspended(w http.ResponseWriter, r *http.Request, suspended bool) {
	adminID, ok := caller(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	acc, err := h.service.SetAccountSuspended(r.Context(), adminID, accountID, suspended)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account_id": acc.ID, "is_suspended": acc.IsSuspended})
}

type adminSummaryResponse struct {
	CommissionEarned   decimal.Decimal `json:"commission_earned"`
	CashoutReceived    decimal.Decimal `json:"cashout_received"`
	PendingStatePushes int64           `json:"pending_state_pushes"`
}

// AdminSummary handles GET /admin/me/summary.
func (h *Handler) AdminSummary(w http.ResponseWriter, r *http.Request) {
	adminID, ok := caller(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	var (
		out adminSummaryResponse
		err error
	)
	if out.CommissionEarned, err = h.service.AdminCommissionTotal(ctx, adminID); err != nil {
		h.respondError(w, r, err)
		return
	}
	if out.CashoutReceived, err = h.service.AdminCashoutTotal(ctx, adminID); err != nil {
		h.respondError(w, r, err)
		return
	}
	if out.PendingStatePushes, err = h.service.PendingStatePushCount(ctx, adminID); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
