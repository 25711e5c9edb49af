/**
 * @description
 * This file contains the entry point of the ledger service's business logic.
 * The `Service` struct owns every money-moving workflow: transfers, withdrawals,
 * admin cash-outs, admin pushes and admin state pushes.
 *
 * Key features:
 * - Each workflow runs inside one store unit of work: accounts are locked in
 *   ascending id order, balances move through the ledger, and the transaction
 *   record, notifications and outbox events are written before commit.
 * - Commission rates come from the cached commission schedule.
 * - Realtime and broker delivery happen later, from the outbox dispatcher.
 *
 * @dependencies
 * - internal/commission, internal/ledger, internal/store: core building blocks.
 * - log/slog: structured logging.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
)

// Options tunes a Service.
type Options struct {
	EventsExchange string
	CurrencyLabel  string
}

// Service provides the core business logic for money movement.
type Service struct {
	repo      store.Repository
	schedules *ScheduleCache
	exchange  string
	currency  string
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, schedules *ScheduleCache, opts Options, logger *slog.Logger) *Service {
	if opts.EventsExchange == "" {
		opts.EventsExchange = "moneypay.events"
	}
	if opts.CurrencyLabel == "" {
		opts.CurrencyLabel = "SSP"
	}
	return &Service{
		repo:      repo,
		schedules: schedules,
		exchange:  opts.EventsExchange,
		currency:  opts.CurrencyLabel,
		logger:    logger.With("component", "ledger-service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// money formats an amount for notification text, e.g. "SSP 202.00".
func (s *Service) money(amount decimal.Decimal) string {
	return s.currency + " " + domain.Cents(amount)
}

func (s *Service) quote(ctx context.Context, amount decimal.Decimal, purpose commission.Purpose) (commission.Quote, error) {
	schedule, err := s.schedules.Get(ctx, purpose)
	if err != nil {
		return commission.Quote{}, err
	}
	return schedule.Quote(amount, purpose)
}

// account loads an account, translating "not found" into notFound.
func (s *Service) account(ctx context.Context, id int64, notFound error) (*domain.Account, error) {
	acc, err := s.repo.FindAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return acc, nil
}

func (s *Service) accountByPhone(ctx context.Context, phone string, notFound error) (*domain.Account, error) {
	acc, err := s.repo.FindAccountByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return acc, nil
}

// requireAdmin loads actorID and checks it holds the admin role.
func (s *Service) requireAdmin(ctx context.Context, actorID int64) (*domain.Account, error) {
	admin, err := s.account(ctx, actorID, store.ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	if admin.Role != domain.RoleAdmin {
		return nil, forbidden("admin role required")
	}
	return admin, nil
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}
