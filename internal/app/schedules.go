package app

import (
	"context"
	"fmt"

	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/shopspring/decimal"
)

// ScheduleView is the administrative view of one purpose's tiers. Configured
// false means the default table applies.
type ScheduleView struct {
	Purpose    commission.Purpose `json:"purpose"`
	Configured bool               `json:"configured"`
	Tiers      []commission.Tier  `json:"tiers"`
	Defaults   []commission.Tier  `json:"defaults,omitempty"`
}

// GetCommissionSchedule reads the stored schedule, bypassing the cache.
func (s *Service) GetCommissionSchedule(ctx context.Context, adminID int64, purpose commission.Purpose) (*ScheduleView, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	schedule, err := s.repo.GetCommissionSchedule(ctx, purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to load commission schedule: %w", err)
	}
	view := &ScheduleView{Purpose: purpose, Configured: schedule.IsConfigured(), Tiers: schedule.Tiers()}
	if view.Tiers == nil {
		view.Tiers = []commission.Tier{}
	}
	if !view.Configured {
		defaults, err := commission.DefaultTiers(purpose)
		if err != nil {
			return nil, err
		}
		view.Defaults = defaults
	}
	return view, nil
}

// ReplaceCommissionSchedule makes purpose Configured(tiers). An empty list is
// valid and means zero commission.
func (s *Service) ReplaceCommissionSchedule(ctx context.Context, adminID int64, purpose commission.Purpose, tiers []commission.Tier) (*ScheduleView, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if err := commission.ValidateTiers(tiers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.repo.ReplaceCommissionSchedule(ctx, purpose, tiers); err != nil {
		return nil, fmt.Errorf("failed to replace commission schedule: %w", err)
	}
	s.schedules.Invalidate(purpose)
	s.logger.Info("commission schedule replaced", "purpose", purpose, "admin_id", adminID, "tiers", len(tiers))
	return s.GetCommissionSchedule(ctx, adminID, purpose)
}

// ResetCommissionSchedule returns purpose to Unconfigured.
func (s *Service) ResetCommissionSchedule(ctx context.Context, adminID int64, purpose commission.Purpose) (*ScheduleView, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if err := s.repo.ResetCommissionSchedule(ctx, purpose); err != nil {
		return nil, fmt.Errorf("failed to reset commission schedule: %w", err)
	}
	s.schedules.Invalidate(purpose)
	s.logger.Info("commission schedule reset", "purpose", purpose, "admin_id", adminID)
	return s.GetCommissionSchedule(ctx, adminID, purpose)
}

// QuoteCommission previews the commission for amount without moving money.
func (s *Service) QuoteCommission(ctx context.Context, amount decimal.Decimal, purpose commission.Purpose) (commission.Quote, error) {
	if err := validateAmount(amount); err != nil {
		return commission.Quote{}, err
	}
	return s.quote(ctx, amount, purpose)
}
