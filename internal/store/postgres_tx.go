package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

// postgresTx implements Tx on top of a pgx transaction.
type postgresTx struct {
	tx pgx.Tx
}

// LockAccounts takes FOR UPDATE locks one row at a time, in the order given.
// ledger.Lock always passes ids sorted ascending.
func (t *postgresTx) LockAccounts(ctx context.Context, ids []int64) ([]*domain.Account, error) {
	out := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		acc, err := scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

func (t *postgresTx) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	result, err := t.tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *postgresTx) SetAccountSuspended(ctx context.Context, accountID int64, suspended bool) error {
	result, err := t.tx.Exec(ctx, `UPDATE accounts SET is_suspended = $1, updated_at = NOW() WHERE id = $2`, suspended, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// InsertTransaction writes tx and fills in its id and timestamps.
func (t *postgresTx) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			reference, sender_id, receiver_id, amount, type, status, description,
			commission, commission_percent, agent_commission, agent_commission_percent,
			company_commission, company_commission_percent, receiver_credit, commission_deducted,
			sender_balance, receiver_balance, sender_location, receiver_location,
			state_id, currency_code, withdrawal_request_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, NULLIF($18, '')::jsonb, NULLIF($19, '')::jsonb,
			$20, $21, $22
		)
		RETURNING id, created_at, updated_at
	`
	err := t.tx.QueryRow(ctx, query,
		tx.Reference, tx.SenderID, tx.ReceiverID, tx.Amount, tx.Type, tx.Status, tx.Description,
		tx.Commission, tx.CommissionPercent, tx.AgentCommission, tx.AgentCommissionPercent,
		tx.CompanyCommission, tx.CompanyCommissionPercent, tx.ReceiverCredit, tx.CommissionDeducted,
		tx.SenderBalance, tx.ReceiverBalance, jsonText(tx.SenderLocation), jsonText(tx.ReceiverLocation),
		tx.StateID, tx.CurrencyCode, tx.WithdrawalRequestID,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// LockTransactionByReference selects the transaction FOR UPDATE.
func (t *postgresTx) LockTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	tx, err := scanTransaction(t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// UpdateTransaction rewrites the mutable columns of a transaction.
func (t *postgresTx) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE transactions SET
			receiver_id = $2, amount = $3, status = $4, description = $5,
			commission = $6, commission_percent = $7, agent_commission = $8, agent_commission_percent = $9,
			company_commission = $10, company_commission_percent = $11, receiver_credit = $12,
			commission_deducted = $13, sender_balance = $14, receiver_balance = $15,
			receiver_location = NULLIF($16, '')::jsonb, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		tx.ID, tx.ReceiverID, tx.Amount, tx.Status, tx.Description,
		tx.Commission, tx.CommissionPercent, tx.AgentCommission, tx.AgentCommissionPercent,
		tx.CompanyCommission, tx.CompanyCommissionPercent, tx.ReceiverCredit,
		tx.CommissionDeducted, tx.SenderBalance, tx.ReceiverBalance,
		jsonText(tx.ReceiverLocation),
	).Scan(&tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTransactionNotFound
		}
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) InsertWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (
			kind, requester_id, payer_id, amount, agent_commission, agent_commission_percent,
			company_commission, company_commission_percent, status, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`,
		req.Kind, req.RequesterID, req.PayerID, req.Amount, req.AgentCommission, req.AgentCommissionPercent,
		req.CompanyCommission, req.CompanyCommissionPercent, req.Status, req.Reason,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal request: %w", err)
	}
	return nil
}

func (t *postgresTx) LockWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	req, err := scanWithdrawalRequest(t.tx.QueryRow(ctx, `SELECT `+withdrawalRequestColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func (t *postgresTx) UpdateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE withdrawal_requests SET
			status = $2, reason = $3, approved_at = $4, rejected_at = $5, cancelled_at = $6,
			transaction_id = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, req.ID, req.Status, req.Reason, req.ApprovedAt, req.RejectedAt, req.CancelledAt, req.TransactionID).Scan(&req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWithdrawalRequestNotFound
		}
		return fmt.Errorf("failed to update withdrawal request: %w", err)
	}
	return nil
}

func (t *postgresTx) InsertNotification(ctx context.Context, n *domain.Notification) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, title, message, type, related_transaction_id, related_request_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_read, created_at
	`, n.RecipientID, n.Title, n.Message, n.Type, n.RelatedTransactionID, n.RelatedRequestID).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// EnqueueEvent stores an event in the outbox; it is published only after the
// surrounding transaction commits.
func (t *postgresTx) EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	return enqueueEventTx(ctx, t.tx, exchange, routingKey, payload)
}

func enqueueEventTx(ctx context.Context, q querier, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, strings.TrimSpace(exchange), strings.TrimSpace(routingKey), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}
