package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/moneypay/ledger-service/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, name, phone, role, agent_code, admin_code, balance, auto_admin_cashout,
	is_suspended, state_id, COALESCE(current_location::text, ''), created_at, updated_at`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		acc      domain.Account
		location string
	)
	err := row.Scan(
		&acc.ID, &acc.Name, &acc.Phone, &acc.Role, &acc.AgentCode, &acc.AdminCode, &acc.Balance,
		&acc.AutoAdminCashout, &acc.IsSuspended, &acc.StateID, &location, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	acc.CurrentLocation = rawJSON(location)
	return &acc, nil
}

const transactionColumns = `id, reference, sender_id, receiver_id, amount, type, status, description,
	commission, commission_percent, agent_commission, agent_commission_percent,
	company_commission, company_commission_percent, receiver_credit, commission_deducted,
	sender_balance, receiver_balance, COALESCE(sender_location::text, ''), COALESCE(receiver_location::text, ''),
	state_id, currency_code, withdrawal_request_id, created_at, updated_at`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx               domain.Transaction
		senderLocation   string
		receiverLocation string
	)
	err := row.Scan(
		&tx.ID, &tx.Reference, &tx.SenderID, &tx.ReceiverID, &tx.Amount, &tx.Type, &tx.Status, &tx.Description,
		&tx.Commission, &tx.CommissionPercent, &tx.AgentCommission, &tx.AgentCommissionPercent,
		&tx.CompanyCommission, &tx.CompanyCommissionPercent, &tx.ReceiverCredit, &tx.CommissionDeducted,
		&tx.SenderBalance, &tx.ReceiverBalance, &senderLocation, &receiverLocation,
		&tx.StateID, &tx.CurrencyCode, &tx.WithdrawalRequestID, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.SenderLocation = rawJSON(senderLocation)
	tx.ReceiverLocation = rawJSON(receiverLocation)
	return &tx, nil
}

const withdrawalRequestColumns = `id, kind, requester_id, payer_id, amount, agent_commission, agent_commission_percent,
	company_commission, company_commission_percent, status, reason, approved_at, rejected_at, cancelled_at,
	transaction_id, created_at, updated_at`

func scanWithdrawalRequest(row rowScanner) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	err := row.Scan(
		&req.ID, &req.Kind, &req.RequesterID, &req.PayerID, &req.Amount, &req.AgentCommission, &req.AgentCommissionPercent,
		&req.CompanyCommission, &req.CompanyCommissionPercent, &req.Status, &req.Reason, &req.ApprovedAt, &req.RejectedAt,
		&req.CancelledAt, &req.TransactionID, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

const notificationColumns = `id, recipient_id, title, message, type, is_read, related_transaction_id,
	related_request_id, created_at`

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type, &n.IsRead,
		&n.RelatedTransactionID, &n.RelatedRequestID, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func rawJSON(text string) json.RawMessage {
	if text == "" {
		return nil
	}
	return json.RawMessage(text)
}

// jsonText turns an optional JSON document into a parameter for a
// NULLIF($n, '')::jsonb placeholder.
func jsonText(raw json.RawMessage) string {
	return string(raw)
}
