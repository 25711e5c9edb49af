/**
 * @description
 * An in-process implementation of Repository, selected with
 * STORAGE_DRIVER=memory and used by the workflow and HTTP tests.
 *
 * @notes
 * - InTx is serialised by a single mutex and works on a staged copy of the
 *   state, which replaces the committed state only when fn returns nil. That
 *   gives the same all-or-nothing semantics as a database transaction.
 * - Every writer, transactional or not, holds txMu so a commit can never
 *   overwrite a concurrent direct write.
 */

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Tx         = (*memoryTx)(nil)
)

type memoryOutboxRow struct {
	msg                 OutboxMessage
	status              string
	nextAttemptAt       time.Time
	processingStartedAt time.Time
	publishedAt         time.Time
	lastError           string
}

type memoryState struct {
	accounts      map[int64]domain.Account
	states        map[int64]domain.StateSetting
	schedules     map[commission.Purpose][]commission.Tier
	transactions  map[int64]domain.Transaction
	references    map[string]int64
	requests      map[int64]domain.WithdrawalRequest
	notifications map[int64]domain.Notification
	outbox        map[int64]memoryOutboxRow

	nextAccountID      int64
	nextStateID        int64
	nextTransactionID  int64
	nextRequestID      int64
	nextNotificationID int64
	nextOutboxID       int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		accounts:      map[int64]domain.Account{},
		states:        map[int64]domain.StateSetting{},
		schedules:     map[commission.Purpose][]commission.Tier{},
		transactions:  map[int64]domain.Transaction{},
		references:    map[string]int64{},
		requests:      map[int64]domain.WithdrawalRequest{},
		notifications: map[int64]domain.Notification{},
		outbox:        map[int64]memoryOutboxRow{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := *s
	c.accounts = make(map[int64]domain.Account, len(s.accounts))
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.states = make(map[int64]domain.StateSetting, len(s.states))
	for k, v := range s.states {
		c.states[k] = v
	}
	c.schedules = make(map[commission.Purpose][]commission.Tier, len(s.schedules))
	for k, v := range s.schedules {
		c.schedules[k] = append([]commission.Tier(nil), v...)
	}
	c.transactions = make(map[int64]domain.Transaction, len(s.transactions))
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	c.references = make(map[string]int64, len(s.references))
	for k, v := range s.references {
		c.references[k] = v
	}
	c.requests = make(map[int64]domain.WithdrawalRequest, len(s.requests))
	for k, v := range s.requests {
		c.requests[k] = v
	}
	c.notifications = make(map[int64]domain.Notification, len(s.notifications))
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	c.outbox = make(map[int64]memoryOutboxRow, len(s.outbox))
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return &c
}

// MemoryRepository keeps all data in process memory.
type MemoryRepository struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: newMemoryState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SeedAccount inserts acc, assigning an id when acc.ID is zero.
func (r *MemoryRepository) SeedAccount(acc domain.Account) *domain.Account {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if acc.ID == 0 {
		r.state.nextAccountID++
		acc.ID = r.state.nextAccountID
	} else if acc.ID > r.state.nextAccountID {
		r.state.nextAccountID = acc.ID
	}
	if acc.Role == "" {
		acc.Role = domain.RoleUser
	}
	now := r.now()
	acc.CreatedAt, acc.UpdatedAt = now, now
	r.state.accounts[acc.ID] = acc
	return &acc
}

// SeedStateSetting inserts a state, assigning an id when s.ID is zero.
func (r *MemoryRepository) SeedStateSetting(s domain.StateSetting) *domain.StateSetting {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == 0 {
		r.state.nextStateID++
		s.ID = r.state.nextStateID
	} else if s.ID > r.state.nextStateID {
		r.state.nextStateID = s.ID
	}
	r.state.states[s.ID] = s
	return &s
}

// OutboxMessages returns every outbox row in id order, whatever its status.
func (r *MemoryRepository) OutboxMessages() []OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]OutboxMessage, 0, len(r.state.outbox))
	for _, id := range sortedKeys(r.state.outbox) {
		out = append(out, r.state.outbox[id].msg)
	}
	return out
}

// OutboxStatus reports the status of one outbox row, or "" if unknown.
func (r *MemoryRepository) OutboxStatus(id int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.outbox[id].status
}

// OutboxLastError returns the error recorded by the last failed dispatch of id.
func (r *MemoryRepository) OutboxLastError(id int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.outbox[id].lastError
}

func (r *MemoryRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	staged := r.state.clone()
	r.mu.RUnlock()

	if err := fn(&memoryTx{state: staged, now: r.now}); err != nil {
		return err
	}

	r.mu.Lock()
	r.state = staged
	r.mu.Unlock()
	return nil
}

// write runs fn against the committed state under both locks.
func (r *MemoryRepository) write(fn func(s *memoryState) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.state)
}

func (r *MemoryRepository) read(fn func(s *memoryState)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.state)
}

func (r *MemoryRepository) FindAccountByID(ctx context.Context, id int64) (*domain.Account, error) {
	var (
		acc domain.Account
		ok  bool
	)
	r.read(func(s *memoryState) { acc, ok = s.accounts[id] })
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acc, nil
}

func (r *MemoryRepository) FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	phone = strings.TrimSpace(phone)
	return r.findAccount(func(a domain.Account) bool { return a.Phone == phone })
}

func (r *MemoryRepository) FindAccountByAgentCode(ctx context.Context, agentCode string) (*domain.Account, error) {
	agentCode = strings.TrimSpace(agentCode)
	return r.findAccount(func(a domain.Account) bool {
		return a.AgentCode != nil && strings.EqualFold(*a.AgentCode, agentCode)
	})
}

func (r *MemoryRepository) findAccount(match func(domain.Account) bool) (*domain.Account, error) {
	var found *domain.Account
	r.read(func(s *memoryState) {
		for _, id := range sortedKeys(s.accounts) {
			if acc := s.accounts[id]; match(acc) {
				found = &acc
				return
			}
		}
	})
	if found == nil {
		return nil, ErrAccountNotFound
	}
	return found, nil
}

func (r *MemoryRepository) ListAccountIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	r.read(func(s *memoryState) { ids = sortedKeys(s.accounts) })
	return ids, nil
}

func (r *MemoryRepository) GetCommissionSchedule(ctx context.Context, purpose commission.Purpose) (commission.Schedule, error) {
	var (
		tiers      []commission.Tier
		configured bool
	)
	r.read(func(s *memoryState) { tiers, configured = s.schedules[purpose] })
	if !configured {
		return commission.Unconfigured(), nil
	}
	return commission.Configured(tiers), nil
}

func (r *MemoryRepository) ReplaceCommissionSchedule(ctx context.Context, purpose commission.Purpose, tiers []commission.Tier) error {
	return r.write(func(s *memoryState) error {
		s.schedules[purpose] = append([]commission.Tier{}, tiers...)
		return nil
	})
}

func (r *MemoryRepository) ResetCommissionSchedule(ctx context.Context, purpose commission.Purpose) error {
	return r.write(func(s *memoryState) error {
		delete(s.schedules, purpose)
		return nil
	})
}

func (r *MemoryRepository) FindStateSetting(ctx context.Context, id int64) (*domain.StateSetting, error) {
	var (
		st domain.StateSetting
		ok bool
	)
	r.read(func(s *memoryState) { st, ok = s.states[id] })
	if !ok {
		return nil, ErrStateSettingNotFound
	}
	return &st, nil
}

func (r *MemoryRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	var (
		tx domain.Transaction
		ok bool
	)
	r.read(func(s *memoryState) {
		var id int64
		if id, ok = s.references[reference]; ok {
			tx = s.transactions[id]
		}
	})
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return &tx, nil
}

func (r *MemoryRepository) ListTransactionsForAccount(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, error) {
	var matched []domain.Transaction
	r.read(func(s *memoryState) {
		for _, tx := range s.transactions {
			if tx.SenderID == accountID || (tx.ReceiverID != nil && *tx.ReceiverID == accountID) {
				matched = append(matched, tx)
			}
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, limit, offset), nil
}

func (r *MemoryRepository) GetAccountStats(ctx context.Context, accountID int64) (*domain.AccountStats, error) {
	stats := domain.AccountStats{
		TotalSent:                decimal.Zero,
		TotalReceived:            decimal.Zero,
		CommissionEarned:         decimal.Zero,
		PendingAgentCommission:   decimal.Zero,
		PendingCompanyCommission: decimal.Zero,
	}
	r.read(func(s *memoryState) {
		for _, tx := range s.transactions {
			sent := tx.SenderID == accountID
			received := tx.ReceiverID != nil && *tx.ReceiverID == accountID
			if !sent && !received {
				continue
			}
			stats.TotalTransactions++
			if tx.Status == domain.TxStatusCancelled {
				continue
			}
			if sent {
				stats.TotalSent = stats.TotalSent.Add(tx.Amount)
			}
			if received {
				stats.TotalReceived = stats.TotalReceived.Add(tx.Amount)
				if tx.Status == domain.TxStatusCompleted {
					stats.CommissionEarned = stats.CommissionEarned.Add(tx.AgentCommission)
				}
			}
		}
		for _, req := range s.requests {
			if req.RequesterID == accountID && req.Status == domain.RequestStatusPending {
				stats.PendingAgentCommission = stats.PendingAgentCommission.Add(req.AgentCommission)
				stats.PendingCompanyCommission = stats.PendingCompanyCommission.Add(req.CompanyCommission)
			}
		}
	})
	return &stats, nil
}

func (r *MemoryRepository) ListStalePendingStatePushes(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	var stale []domain.Transaction
	r.read(func(s *memoryState) {
		for _, tx := range s.transactions {
			if tx.Type == domain.TxTypeAdminStatePush && tx.Status == domain.TxStatusPending && tx.CreatedAt.Before(olderThan) {
				stale = append(stale, tx)
			}
		}
	})
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	stale = page(stale, limit, 0)

	refs := make([]string, 0, len(stale))
	for _, tx := range stale {
		refs = append(refs, tx.Reference)
	}
	return refs, nil
}

func (r *MemoryRepository) SumStatePushCommission(ctx context.Context, senderID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	r.read(func(s *memoryState) {
		for _, tx := range s.transactions {
			if tx.Type == domain.TxTypeAdminStatePush && tx.SenderID == senderID && tx.Status != domain.TxStatusCancelled {
				total = total.Add(tx.Commission)
			}
		}
	})
	return total, nil
}

func (r *MemoryRepository) SumCashoutsReceived(ctx context.Context, adminID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	r.read(func(s *memoryState) {
		for _, tx := range s.transactions {
			if tx.Type == domain.TxTypeAgentCashOutMoney && tx.Status == domain.TxStatusCompleted &&
				tx.ReceiverID != nil && *tx.ReceiverID == adminID {
				total = total.Add(tx.Amount)
			}
		}
	})
	return total, nil
}

func (r *MemoryRepository) CountPendingStatePushes(ctx context.Context, receiverID int64) (int64, error) {
	var count int64
	r.read(func(s *memoryState) {
		for _, tx := range s.transactions {
			if tx.Type == domain.TxTypeAdminStatePush && tx.Status == domain.TxStatusPending &&
				tx.ReceiverID != nil && *tx.ReceiverID == receiverID {
				count++
			}
		}
	})
	return count, nil
}

func (r *MemoryRepository) FindWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	var (
		req domain.WithdrawalRequest
		ok  bool
	)
	r.read(func(s *memoryState) { req, ok = s.requests[id] })
	if !ok {
		return nil, ErrWithdrawalRequestNotFound
	}
	return &req, nil
}

func (r *MemoryRepository) ListPendingWithdrawalRequests(ctx context.Context, payerID int64) ([]domain.WithdrawalRequest, error) {
	var out []domain.WithdrawalRequest
	r.read(func(s *memoryState) {
		for _, req := range s.requests {
			if req.PayerID == payerID && req.Status == domain.RequestStatusPending {
				out = append(out, req)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryRepository) ListStaleWithdrawalRequests(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	var ids []int64
	r.read(func(s *memoryState) {
		for _, id := range sortedKeys(s.requests) {
			req := s.requests[id]
			if req.Status == domain.RequestStatusPending && req.CreatedAt.Before(olderThan) {
				ids = append(ids, id)
			}
		}
	})
	return page(ids, limit, 0), nil
}

func (r *MemoryRepository) ListNotifications(ctx context.Context, recipientID int64, limit, offset int) ([]domain.Notification, error) {
	var out []domain.Notification
	r.read(func(s *memoryState) {
		for _, n := range s.notifications {
			if n.RecipientID == recipientID {
				out = append(out, n)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), nil
}

func (r *MemoryRepository) MarkNotificationRead(ctx context.Context, recipientID, notificationID int64) (*domain.Notification, error) {
	var updated domain.Notification
	err := r.write(func(s *memoryState) error {
		n, ok := s.notifications[notificationID]
		if !ok || n.RecipientID != recipientID {
			return ErrNotificationNotFound
		}
		n.IsRead = true
		s.notifications[notificationID] = n
		updated = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *MemoryRepository) MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := r.write(func(s *memoryState) error {
		for id, n := range s.notifications {
			if n.RecipientID == recipientID && !n.IsRead {
				n.IsRead = true
				s.notifications[id] = n
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *MemoryRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleBefore time.Time) ([]OutboxMessage, error) {
	limit = claimLimit(limit)
	var claimed []OutboxMessage
	err := r.write(func(s *memoryState) error {
		now := r.now()
		for _, id := range sortedKeys(s.outbox) {
			if len(claimed) >= limit {
				break
			}
			row := s.outbox[id]
			due := row.status == "pending" && !row.nextAttemptAt.After(now)
			stale := row.status == "processing" && row.processingStartedAt.Before(staleBefore)
			if !due && !stale {
				continue
			}
			row.status = "processing"
			row.processingStartedAt = now
			row.msg.Attempts++
			s.outbox[id] = row
			claimed = append(claimed, row.msg)
		}
		return nil
	})
	return claimed, err
}

func (r *MemoryRepository) SettleOutboxMessages(ctx context.Context, results []OutboxResult) error {
	return r.write(func(s *memoryState) error {
		for _, res := range results {
			row, ok := s.outbox[res.ID]
			if !ok {
				continue
			}
			row.processingStartedAt = time.Time{}
			row.lastError = res.Error
			if res.Published() {
				row.status = "published"
				row.publishedAt = r.now()
			} else {
				row.status = "pending"
				row.nextAttemptAt = res.RetryAt
			}
			s.outbox[res.ID] = row
		}
		return nil
	})
}

func (r *MemoryRepository) PurgePublishedOutbox(ctx context.Context, olderThan time.Time) (int64, error) {
	var purged int64
	err := r.write(func(s *memoryState) error {
		for id, row := range s.outbox {
			if row.status == "published" && row.publishedAt.Before(olderThan) {
				delete(s.outbox, id)
				purged++
			}
		}
		return nil
	})
	return purged, err
}

// memoryTx mutates a staged copy of the state.
type memoryTx struct {
	state *memoryState
	now   func() time.Time
}

func (t *memoryTx) LockAccounts(ctx context.Context, ids []int64) ([]*domain.Account, error) {
	out := make([]*domain.Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := t.state.accounts[id]; ok {
			out = append(out, &acc)
		}
	}
	return out, nil
}

func (t *memoryTx) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	acc, ok := t.state.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	acc.Balance = balance
	acc.UpdatedAt = t.now()
	t.state.accounts[accountID] = acc
	return nil
}

func (t *memoryTx) SetAccountSuspended(ctx context.Context, accountID int64, suspended bool) error {
	acc, ok := t.state.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	acc.IsSuspended = suspended
	acc.UpdatedAt = t.now()
	t.state.accounts[accountID] = acc
	return nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	if _, dup := t.state.references[tx.Reference]; dup {
		return ErrDuplicateReference
	}
	t.state.nextTransactionID++
	tx.ID = t.state.nextTransactionID
	now := t.now()
	tx.CreatedAt, tx.UpdatedAt = now, now
	t.state.transactions[tx.ID] = *tx
	t.state.references[tx.Reference] = tx.ID
	return nil
}

func (t *memoryTx) LockTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	id, ok := t.state.references[reference]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	tx := t.state.transactions[id]
	return &tx, nil
}

func (t *memoryTx) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	current, ok := t.state.transactions[tx.ID]
	if !ok {
		return ErrTransactionNotFound
	}
	tx.Reference = current.Reference
	tx.CreatedAt = current.CreatedAt
	tx.UpdatedAt = t.now()
	t.state.transactions[tx.ID] = *tx
	return nil
}

func (t *memoryTx) InsertWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	t.state.nextRequestID++
	req.ID = t.state.nextRequestID
	now := t.now()
	req.CreatedAt, req.UpdatedAt = now, now
	t.state.requests[req.ID] = *req
	return nil
}

func (t *memoryTx) LockWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error) {
	req, ok := t.state.requests[id]
	if !ok {
		return nil, ErrWithdrawalRequestNotFound
	}
	return &req, nil
}

func (t *memoryTx) UpdateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	current, ok := t.state.requests[req.ID]
	if !ok {
		return ErrWithdrawalRequestNotFound
	}
	req.CreatedAt = current.CreatedAt
	req.UpdatedAt = t.now()
	t.state.requests[req.ID] = *req
	return nil
}

func (t *memoryTx) InsertNotification(ctx context.Context, n *domain.Notification) error {
	if _, ok := t.state.accounts[n.RecipientID]; !ok {
		return fmt.Errorf("failed to insert notification: %w", ErrAccountNotFound)
	}
	t.state.nextNotificationID++
	n.ID = t.state.nextNotificationID
	n.IsRead = false
	n.CreatedAt = t.now()
	t.state.notifications[n.ID] = *n
	return nil
}

func (t *memoryTx) EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.state.nextOutboxID++
	id := t.state.nextOutboxID
	t.state.outbox[id] = memoryOutboxRow{
		msg: OutboxMessage{
			ID:         id,
			Exchange:   strings.TrimSpace(exchange),
			RoutingKey: strings.TrimSpace(routingKey),
			Payload:    blob,
		},
		status:        "pending",
		nextAttemptAt: t.now(),
	}
	return nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
