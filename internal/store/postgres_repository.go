/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * Reads run straight against the pool; every balance-affecting write goes
 * through InTx so that row locks, ledger writes, notifications and outbox
 * events commit together.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: NUMERIC columns scan into decimal values.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Tx         = (*postgresTx)(nil)
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InTx begins a transaction, hands it to fn and commits only if fn succeeds.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindAccountByID retrieves an account by id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// FindAccountByPhone retrieves an account by its unique phone number.
func (r *PostgresRepository) FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	acc, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = btrim($1)`, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// FindAccountByAgentCode retrieves an agent by code, ignoring case.
func (r *PostgresRepository) FindAccountByAgentCode(ctx context.Context, agentCode string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE upper(agent_code) = upper(btrim($1))`
	acc, err := scanAccount(r.db.QueryRow(ctx, query, agentCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// ListAccountIDs returns every account id, used by admin broadcasts.
func (r *PostgresRepository) ListAccountIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCommissionSchedule loads the tiers for purpose. A missing
// commission_schedules row means the purpose was never configured.
func (r *PostgresRepository) GetCommissionSchedule(ctx context.Context, purpose commission.Purpose) (commission.Schedule, error) {
	var configured bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM commission_schedules WHERE purpose = $1)`, string(purpose)).Scan(&configured)
	if err != nil {
		return commission.Schedule{}, fmt.Errorf("failed to load commission schedule: %w", err)
	}
	if !configured {
		return commission.Unconfigured(), nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT min_amount, max_amount, company_percent, user_percent, agent_percent
		FROM commission_tiers
		WHERE purpose = $1
		ORDER BY min_amount, id
	`, string(purpose))
	if err != nil {
		return commission.Schedule{}, fmt.Errorf("failed to load commission tiers: %w", err)
	}
	defer rows.Close()

	var tiers []commission.Tier
	for rows.Next() {
		var tier commission.Tier
		if err := rows.Scan(&tier.MinAmount, &tier.MaxAmount, &tier.CompanyPercent, &tier.UserPercent, &tier.AgentPercent); err != nil {
			return commission.Schedule{}, err
		}
		tiers = append(tiers, tier)
	}
	if err := rows.Err(); err != nil {
		return commission.Schedule{}, err
	}
	return commission.Configured(tiers), nil
}

// ReplaceCommissionSchedule marks purpose configured and swaps its tier set.
// An empty tiers slice configures the purpose to charge nothing.
func (r *PostgresRepository) ReplaceCommissionSchedule(ctx context.Context, purpose commission.Purpose, tiers []commission.Tier) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO commission_schedules (purpose, configured_at) VALUES ($1, NOW())
		ON CONFLICT (purpose) DO UPDATE SET configured_at = NOW()
	`, string(purpose))
	if err != nil {
		return fmt.Errorf("failed to upsert commission schedule: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM commission_tiers WHERE purpose = $1`, string(purpose)); err != nil {
		return fmt.Errorf("failed to clear commission tiers: %w", err)
	}
	for _, tier := range tiers {
		_, err := tx.Exec(ctx, `
			INSERT INTO commission_tiers (purpose, min_amount, max_amount, company_percent, user_percent, agent_percent)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, string(purpose), tier.MinAmount, tier.MaxAmount, tier.CompanyPercent, tier.UserPercent, tier.AgentPercent)
		if err != nil {
			return fmt.Errorf("failed to insert commission tier: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ResetCommissionSchedule returns purpose to the unconfigured state.
func (r *PostgresRepository) ResetCommissionSchedule(ctx context.Context, purpose commission.Purpose) error {
	_, err := r.db.Exec(ctx, `DELETE FROM commission_schedules WHERE purpose = $1`, string(purpose))
	return err
}

// FindStateSetting retrieves a state's flat commission percent.
func (r *PostgresRepository) FindStateSetting(ctx context.Context, id int64) (*domain.StateSetting, error) {
	var s domain.StateSetting
	err := r.db.QueryRow(ctx, `SELECT id, name, commission_percent FROM state_settings WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.CommissionPercent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStateSettingNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindTransactionByReference retrieves a transaction by its public reference.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// ListTransactionsForAccount returns the newest transactions where the account
// is sender or receiver.
func (r *PostgresRepository) ListTransactionsForAccount(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// GetAccountStats aggregates history for an account. Cancelled transactions
// count toward the total but not toward the sums.
func (r *PostgresRepository) GetAccountStats(ctx context.Context, accountID int64) (*domain.AccountStats, error) {
	var stats domain.AccountStats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM transactions WHERE sender_id = $1 OR receiver_id = $1),
			(SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE sender_id = $1 AND status <> 'cancelled'),
			(SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE receiver_id = $1 AND status <> 'cancelled'),
			(SELECT COALESCE(SUM(agent_commission), 0) FROM transactions WHERE receiver_id = $1 AND status = 'completed'),
			(SELECT COALESCE(SUM(agent_commission), 0) FROM withdrawal_requests WHERE requester_id = $1 AND status = 'pending'),
			(SELECT COALESCE(SUM(company_commission), 0) FROM withdrawal_requests WHERE requester_id = $1 AND status = 'pending')
	`, accountID).Scan(
		&stats.TotalTransactions,
		&stats.TotalSent,
		&stats.TotalReceived,
		&stats.CommissionEarned,
		&stats.PendingAgentCommission,
		&stats.PendingCompanyCommission,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load account stats: %w", err)
	}
	return &stats, nil
}

// ListStalePendingStatePushes returns references of state pushes pending since
// before olderThan.
func (r *PostgresRepository) ListStalePendingStatePushes(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT reference FROM transactions
		WHERE type = 'admin_state_push' AND status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// SumStatePushCommission totals the commission on state pushes sent by
// senderID. Cancelled pushes carry zero commission and are skipped anyway.
func (r *PostgresRepository) SumStatePushCommission(ctx context.Context, senderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(commission), 0) FROM transactions
		WHERE type = 'admin_state_push' AND sender_id = $1 AND status <> 'cancelled'
	`, senderID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum state push commission: %w", err)
	}
	return total, nil
}

// SumCashoutsReceived totals completed agent cash-outs paid to adminID.
func (r *PostgresRepository) SumCashoutsReceived(ctx context.Context, adminID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE type = 'agent_cash_out_money' AND status = 'completed' AND receiver_id = $1
	`, adminID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum cash-outs: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) CountPendingStatePushes(ctx context.Context, receiverID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE type = 'admin_state_push' AND status = 'pending' AND receiver_id = $1
	`, receiverID).Scan(&count)
	return count, err
}

// FindWithdrawalRequest retrieves a withdrawal request without locking it.
func (r *PostgresRepository) FindWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	req, err := scanWithdrawalRequest(r.db.QueryRow(ctx, `SELECT `+withdrawalRequestColumns+` FROM withdrawal_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// ListPendingWithdrawalRequests returns the requests awaiting payerID's decision.
func (r *PostgresRepository) ListPendingWithdrawalRequests(ctx context.Context, payerID int64) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+withdrawalRequestColumns+`
		FROM withdrawal_requests
		WHERE payer_id = $1 AND status = 'pending'
		ORDER BY created_at DESC, id DESC
	`, payerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WithdrawalRequest
	for rows.Next() {
		req, err := scanWithdrawalRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// ListStaleWithdrawalRequests returns ids of requests pending since before olderThan.
func (r *PostgresRepository) ListStaleWithdrawalRequests(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM withdrawal_requests
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListNotifications returns a page of the recipient's inbox, newest first.
func (r *PostgresRepository) ListNotifications(ctx context.Context, recipientID int64, limit, offset int) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one notification as read. Notifications owned by
// someone else are reported as not found.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, recipientID, notificationID int64) (*domain.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2
		RETURNING `+notificationColumns, notificationID, recipientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return n, nil
}

// MarkAllNotificationsRead flags every unread notification for the recipient.
func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error) {
	result, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND is_read = FALSE`, recipientID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
