/**
 * @description
 * Core domain models for the ledger service. These structs map to the
 * `accounts`, `transactions` and `withdrawal_requests` tables and are shared by
 * the store, the workflows and the HTTP layer.
 *
 * @notes
 * - Every monetary value is a decimal.Decimal holding at most two fractional
 *   digits. Binary floats never touch balances.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Account roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// Account is the balance-holding subset of a registered user.
type Account struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Phone            string          `json:"phone"`
	Role             string          `json:"role"`
	AgentCode        *string         `json:"agent_code,omitempty"`
	AdminCode        *string         `json:"admin_code,omitempty"`
	Balance          decimal.Decimal `json:"balance"`
	AutoAdminCashout bool            `json:"auto_admin_cashout"`
	IsSuspended      bool            `json:"is_suspended"`
	StateID          *int64          `json:"state_id,omitempty"`
	CurrentLocation  json.RawMessage `json:"current_location,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Transaction types.
const (
	TxTypeTransfer          = "transfer"
	TxTypeTopup             = "topup"
	TxTypeWithdrawal        = "withdrawal"
	TxTypeUserWithdraw      = "user_withdraw"
	TxTypeAgentDeposit      = "agent_deposit"
	TxTypeAgentCashOutMoney = "agent_cash_out_money"
	TxTypeAdminPush         = "admin_push"
	TxTypeAdminStatePush    = "admin_state_push"
	TxTypeMoneyExchange     = "money_exchange"
)

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// Transaction is the durable record written alongside every ledger mutation.
// Reference is the human-facing identifier (e.g. TX8F3A1C2B9D0E).
type Transaction struct {
	ID                       int64               `json:"id"`
	Reference                string              `json:"transaction_id"`
	SenderID                 int64               `json:"sender_id"`
	ReceiverID               *int64              `json:"receiver_id,omitempty"`
	Amount                   decimal.Decimal     `json:"amount"`
	Type                     string              `json:"type"`
	Status                   string              `json:"status"`
	Description              string              `json:"description,omitempty"`
	Commission               decimal.Decimal     `json:"commission"`
	CommissionPercent        decimal.Decimal     `json:"commission_percent"`
	AgentCommission          decimal.Decimal     `json:"agent_commission"`
	AgentCommissionPercent   decimal.Decimal     `json:"agent_commission_percent"`
	CompanyCommission        decimal.Decimal     `json:"company_commission"`
	CompanyCommissionPercent decimal.Decimal     `json:"company_commission_percent"`
	ReceiverCredit           decimal.NullDecimal `json:"receiver_credit"`
	CommissionDeducted       bool                `json:"commission_deducted"`
	SenderBalance            decimal.NullDecimal `json:"sender_balance"`
	ReceiverBalance          decimal.NullDecimal `json:"receiver_balance"`
	SenderLocation           json.RawMessage     `json:"sender_location,omitempty"`
	ReceiverLocation         json.RawMessage     `json:"receiver_location,omitempty"`
	StateID                  *int64              `json:"state_id,omitempty"`
	CurrencyCode             *string             `json:"currency_code,omitempty"`
	WithdrawalRequestID      *int64              `json:"withdrawal_request_id,omitempty"`
	CreatedAt                time.Time           `json:"created_at"`
	UpdatedAt                time.Time           `json:"updated_at"`
}

// SenderDebit is what a pending state push took from the sender at creation.
func (t *Transaction) SenderDebit() decimal.Decimal {
	if t.CommissionDeducted {
		return t.Amount
	}
	return t.Amount.Sub(t.Commission)
}

// ZeroCommission clears every commission field. Cancelled pushes must not
// count toward commission aggregates.
func (t *Transaction) ZeroCommission() {
	t.Commission = decimal.Zero
	t.CommissionPercent = decimal.Zero
	t.AgentCommission = decimal.Zero
	t.AgentCommissionPercent = decimal.Zero
	t.CompanyCommission = decimal.Zero
	t.CompanyCommissionPercent = decimal.Zero
}

// AccountStats aggregates an account's history for the dashboard.
type AccountStats struct {
	TotalTransactions        int64           `json:"total_transactions"`
	TotalSent                decimal.Decimal `json:"total_sent"`
	TotalReceived            decimal.Decimal `json:"total_received"`
	CommissionEarned         decimal.Decimal `json:"commission_earned"`
	PendingAgentCommission   decimal.Decimal `json:"pending_agent_commission"`
	PendingCompanyCommission decimal.Decimal `json:"pending_company_commission"`
}

// StateSetting maps a named state to the flat commission percent used by
// admin state pushes.
type StateSetting struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
}
