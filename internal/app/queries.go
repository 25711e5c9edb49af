package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 50
	maxPageSize     = 50
)

// clampPage applies the listing bounds shared by every paged query.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListTransactions returns the account's transactions, newest first, in both
// directions.
func (s *Service) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, error) {
	limit, offset = clampPage(limit, offset)
	txs, err := s.repo.ListTransactionsForAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

// TransactionStats aggregates the account's history.
func (s *Service) TransactionStats(ctx context.Context, accountID int64) (*domain.AccountStats, error) {
	if _, err := s.account(ctx, accountID, store.ErrAccountNotFound); err != nil {
		return nil, err
	}
	stats, err := s.repo.GetAccountStats(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction stats: %w", err)
	}
	return stats, nil
}

// GetTransaction returns one transaction visible to viewer: its sender, its
// receiver, or any admin.
func (s *Service) GetTransaction(ctx context.Context, viewerID int64, reference string) (*domain.Transaction, error) {
	t, err := s.repo.FindTransactionByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, err
	}
	if t.SenderID == viewerID || (t.ReceiverID != nil && *t.ReceiverID == viewerID) {
		return t, nil
	}
	viewer, err := s.account(ctx, viewerID, store.ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	if viewer.Role != domain.RoleAdmin {
		return nil, store.ErrTransactionNotFound
	}
	return t, nil
}

// AccountSummary is the public view of an account found by phone.
type AccountSummary struct {
	ID      int64               `json:"id"`
	Name    string              `json:"name"`
	Phone   string              `json:"phone"`
	Role    string              `json:"role"`
	Balance decimal.NullDecimal `json:"balance"`
}

// LookupAccount resolves a phone number for the send-money screen. The
// balance is only included for the account itself or an admin.
func (s *Service) LookupAccount(ctx context.Context, viewerID int64, phone string) (*AccountSummary, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, invalidInput("phone is required")
	}
	acc, err := s.accountByPhone(ctx, phone, store.ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	summary := &AccountSummary{ID: acc.ID, Name: acc.Name, Phone: acc.Phone, Role: acc.Role}
	if acc.ID == viewerID {
		summary.Balance = nullDecimal(acc.Balance)
		return summary, nil
	}
	viewer, err := s.account(ctx, viewerID, store.ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	if viewer.Role == domain.RoleAdmin {
		summary.Balance = nullDecimal(acc.Balance)
	}
	return summary, nil
}

// Balance returns the caller's current balance.
func (s *Service) Balance(ctx context.Context, accountID int64) (*domain.Account, error) {
	return s.account(ctx, accountID, store.ErrAccountNotFound)
}

// ListPendingWithdrawalRequests returns the requests awaiting payerID's decision.
func (s *Service) ListPendingWithdrawalRequests(ctx context.Context, payerID int64) ([]domain.WithdrawalRequest, error) {
	reqs, err := s.repo.ListPendingWithdrawalRequests(ctx, payerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	if reqs == nil {
		reqs = []domain.WithdrawalRequest{}
	}
	return reqs, nil
}

// GetWithdrawalRequest returns a request visible to either of its parties.
func (s *Service) GetWithdrawalRequest(ctx context.Context, viewerID, requestID int64) (*domain.WithdrawalRequest, error) {
	req, err := s.repo.FindWithdrawalRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrWithdrawalRequestNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find withdrawal request: %w", err)
	}
	if req.PayerID != viewerID && req.RequesterID != viewerID {
		return nil, store.ErrWithdrawalRequestNotFound
	}
	return req, nil
}
