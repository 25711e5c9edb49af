package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Withdrawal request kinds. The payer is always the party that approves.
const (
	// WithdrawalKindUser: an agent (requester) asks a user (payer) for cash.
	WithdrawalKindUser = "user_withdrawal"
	// WithdrawalKindAdminCashout: an admin (requester) pulls float from an agent (payer).
	WithdrawalKindAdminCashout = "admin_cashout"
)

// Withdrawal request statuses.
const (
	RequestStatusPending   = "pending"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusCancelled = "cancelled"
)

// WithdrawalRequest is a two-phase withdrawal awaiting the payer's decision.
// Commission values are locked in at creation and never recomputed.
type WithdrawalRequest struct {
	ID                       int64           `json:"id"`
	Kind                     string          `json:"kind"`
	RequesterID              int64           `json:"requester_id"`
	PayerID                  int64           `json:"payer_id"`
	Amount                   decimal.Decimal `json:"amount"`
	AgentCommission          decimal.Decimal `json:"agent_commission"`
	AgentCommissionPercent   decimal.Decimal `json:"agent_commission_percent"`
	CompanyCommission        decimal.Decimal `json:"company_commission"`
	CompanyCommissionPercent decimal.Decimal `json:"company_commission_percent"`
	Status                   string          `json:"status"`
	Reason                   *string         `json:"reason,omitempty"`
	ApprovedAt               *time.Time      `json:"approved_at,omitempty"`
	RejectedAt               *time.Time      `json:"rejected_at,omitempty"`
	CancelledAt              *time.Time      `json:"cancelled_at,omitempty"`
	TransactionID            *int64          `json:"transaction_id,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// TotalDebit is what the payer loses on approval.
func (r *WithdrawalRequest) TotalDebit() decimal.Decimal {
	return r.Amount.Add(r.AgentCommission).Add(r.CompanyCommission)
}

// RequesterCredit is what the requester gains on approval.
func (r *WithdrawalRequest) RequesterCredit() decimal.Decimal {
	return r.Amount.Add(r.AgentCommission)
}
