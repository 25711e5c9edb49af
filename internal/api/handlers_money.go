package api

import (
	"net/http"
	"strings"

	"github.com/moneypay/ledger-service/internal/app"
	"github.com/shopspring/decimal"
)

type sendMoneyRequest struct {
	RecipientPhone string          `json:"recipient_phone" validate:"required,min=3,max=32"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" validate:"max=255"`
}

// SendMoney handles POST /transactions/send.
func (h *Handler) SendMoney(w http.ResponseWriter, r *http.Request) {
	senderID, ok := caller(w, r)
	if !ok {
		return
	}
	var req sendMoneyRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.service.SendMoney(r.Context(), app.SendMoneyInput{
		SenderID:       senderID,
		RecipientPhone: strings.TrimSpace(req.RecipientPhone),
		Amount:         req.Amount,
		Description:    req.Description,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type withdrawRequest struct {
	AgentCode string          `json:"agent_code" validate:"required,len=6,numeric"`
	Amount    decimal.Decimal `json:"amount"`
}

// Withdraw handles POST /withdrawals: a user cashing out at an agent.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.service.Withdraw(r.Context(), app.WithdrawInput{
		UserID:    userID,
		AgentCode: req.AgentCode,
		Amount:    req.Amount,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type withdrawalRequestBody struct {
	UserPhone string          `json:"user_phone" validate:"required,min=3,max=32"`
	Amount    decimal.Decimal `json:"amount"`
}

// RequestWithdrawal handles POST /withdrawal-requests, sent by an agent.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	agentID, ok := caller(w, r)
	if !ok {
		return
	}
	var req withdrawalRequestBody
	if !h.decode(w, r, &req) {
		return
	}
	request, err := h.service.RequestWithdrawal(r.Context(), app.RequestWithdrawalInput{
		AgentID:   agentID,
		UserPhone: strings.TrimSpace(req.UserPhone),
		Amount:    req.Amount,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

// ListPendingWithdrawalRequests handles GET /withdrawal-requests/pending.
func (h *Handler) ListPendingWithdrawalRequests(w http.ResponseWriter, r *http.Request) {
	payerID, ok := caller(w, r)
	if !ok {
		return
	}
	requests, err := h.service.ListPendingWithdrawalRequests(r.Context(), payerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// GetWithdrawalRequest handles GET /withdrawal-requests/{id}.
func (h *Handler) GetWithdrawalRequest(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	request, err := h.service.GetWithdrawalRequest(r.Context(), viewerID, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// ApproveWithdrawalRequest handles POST /withdrawal-requests/{id}/approve.
func (h *Handler) ApproveWithdrawalRequest(w http.ResponseWriter, r *http.Request) {
	payerID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	record, err := h.service.ApproveWithdrawalRequest(r.Context(), id, payerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// RejectWithdrawalRequest handles POST /withdrawal-requests/{id}/reject. The
// body is optional.
func (h *Handler) RejectWithdrawalRequest(w http.ResponseWriter, r *http.Request) {
	payerID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	request, err := h.service.RejectWithdrawalRequest(r.Context(), id, payerID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

type adminCashoutRequest struct {
	AgentCode string          `json:"agent_code" validate:"required,len=6,numeric"`
	Amount    decimal.Decimal `json:"amount"`
}

// adminCashoutResponse reports either the completed transaction or the request
// now waiting for the agent.
type adminCashoutResponse struct {
	Status      string      `json:"status"`
	Transaction interface{} `json:"transaction,omitempty"`
	Request     interface{} `json:"request,omitempty"`
}

// AdminCashout handles POST /admin/cashout.
func (h *Handler) AdminCashout(w http.ResponseWriter, r *http.Request) {
	adminID, ok := caller(w, r)
	if !ok {
		return
	}
	var req adminCashoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.AdminCashout(r.Context(), app.AdminCashoutInput{
		AdminID:   adminID,
		AgentCode: req.AgentCode,
		Amount:    req.Amount,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if result.Transaction != nil {
		writeJSON(w, http.StatusCreated, adminCashoutResponse{Status: "completed", Transaction: result.Transaction})
		return
	}
	writeJSON(w, http.StatusAccepted, adminCashoutResponse{Status: "pending", Request: result.Request})
}

type adminPushRequest struct {
	FromPhone   string          `json:"from_phone" validate:"required,min=3,max=32"`
	ToPhone     string          `json:"to_phone" validate:"required,min=3,max=32,nefield=FromPhone"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=255"`
}

// AdminPush handles POST /admin/push.
func (h *Handler) AdminPush(w http.ResponseWriter, r *http.Request) {
	adminID, ok := caller(w, r)
	if !ok {
		return
	}
	var req adminPushRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.service.AdminPush(r.Context(), app.AdminPushInput{
		AdminID:     adminID,
		FromPhone:   strings.TrimSpace(req.FromPhone),
		ToPhone:     strings.TrimSpace(req.ToPhone),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}
