package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/moneypay/ledger-service/internal/app"
	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/shopspring/decimal"
)

// ListTransactions handles GET /transactions?limit=&offset=.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	txs, err := h.service.ListTransactions(r.Context(), accountID, limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// TransactionStats handles GET /transactions/stats.
func (h *Handler) TransactionStats(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	stats, err := h.service.TransactionStats(r.Context(), accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetTransaction handles GET /transactions/{reference}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := caller(w, r)
	if !ok {
		return
	}
	record, err := h.service.GetTransaction(r.Context(), viewerID, chi.URLParam(r, "reference"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type balanceResponse struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// GetBalance handles GET /balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	acc, err := h.service.Balance(r.Context(), accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: acc.ID, Balance: acc.Balance})
}

// LookupAccount handles GET /accounts/lookup?phone=.
func (h *Handler) LookupAccount(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := caller(w, r)
	if !ok {
		return
	}
	summary, err := h.service.LookupAccount(r.Context(), viewerID, r.URL.Query().Get("phone"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListNotifications handles GET /notifications?limit=&offset=.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	items, err := h.service.ListNotifications(r.Context(), accountID, limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// MarkNotificationRead handles POST /notifications/{id}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.service.MarkNotificationRead(r.Context(), accountID, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// MarkAllNotificationsRead handles POST /notifications/read-all.
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	n, err := h.service.MarkAllNotificationsRead(r.Context(), accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

type broadcastRequest struct {
	Title   string `json:"title" validate:"required,max=120"`
	Message string `json:"message" validate:"required,max=1000"`
	Type    string `json:"type" validate:"omitempty,oneof=transaction system alert offer withdrawal_request"`
}

// BroadcastNotification handles POST /admin/notifications/broadcast.
func (h *Handler) BroadcastNotification(w http.ResponseWriter, r *http.Request) {
	adminID, ok := caller(w, r)
	if !ok {
		return
	}
	var req broadcastRequest
	if !h.decode(w, r, &req) {
		return
	}
	sent, err := h.service.BroadcastNotification(r.Context(), app.BroadcastInput{
		AdminID: adminID,
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

func purposeParam(w http.ResponseWriter, r *http.Request) (commission.Purpose, bool) {
	purpose, err := commission.ParsePurpose(chi.URLParam(r, "purpose"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return purpose, true
}

// GetCommissionSchedule handles GET /admin/commission-schedules/{purpose}.
func (h *Handler) GetCommissionSchedule(w http.ResponseWriter, r *http.Request) {
	adminID, ok := caller(w, r)
	if !ok {
		return
	}
	purpose, ok := purposeParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetCommissionSchedule(r.Context(), adminID, purpose)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type replaceScheduleRequest struct {
	Tiers []commission.Tier `json:"tiers" validate:"max=50"`
}

// ReplaceCommissionSchedule handles PUT /admin/commission-schedules/{purpose}.
// An empty tier list configures zero commission.
func (h *Handler) ReplaceCommissionSchedule(w http.ResponseWriter, r *http.Request) {
	adminID, ok := caller(w, r)
	if !ok {
		return
	}
	purpose, ok := purposeParam(w, r)
	if !ok {
		return
	}
	var req replaceScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.ReplaceCommissionSchedule(r.Context(), adminID, purpose, req.Tiers)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ResetCommissionSchedule handles DELETE /admin/commission-schedules/{purpose}.
func (h *Handler) ResetCommissionSchedule(w http.ResponseWriter, r *http.Request) {
	adminID, ok := caller(w, r)
	if !ok {
		return
	}
	purpose, ok := purposeParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.ResetCommissionSchedule(r.Context(), adminID, purpose)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// QuoteCommission handles GET /commission/quote?amount=&purpose=.
func (h *Handler) QuoteCommission(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}
	q := r.URL.Query()
	amount, err := decimal.NewFromString(strings.TrimSpace(q.Get("amount")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}
	purpose, err := commission.ParsePurpose(q.Get("purpose"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quote, err := h.service.QuoteCommission(r.Context(), amount, purpose)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
