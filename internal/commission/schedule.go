// Package commission resolves an amount to commission percentages using
// amount-range tiers, with a static default table for purposes nobody has
// configured yet.
package commission

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Purpose selects which ordered tier set applies.
type Purpose string

const (
	SendMoney  Purpose = "send-money"
	Withdrawal Purpose = "withdraw"
)

var (
	ErrNegativeAmount = errors.New("commission: amount must not be negative")
	ErrUnknownPurpose = errors.New("commission: unknown purpose")
	ErrInvalidTier    = errors.New("commission: invalid tier")
)

// ParsePurpose accepts the wire names plus a few aliases used by older clients.
func ParsePurpose(raw string) (Purpose, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "send-money", "send_money", "send":
		return SendMoney, nil
	case "withdraw", "withdrawal":
		return Withdrawal, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPurpose, raw)
}

// Tier maps an inclusive amount range to percentages. A null MaxAmount is
// open-ended.
type Tier struct {
	MinAmount      decimal.Decimal     `json:"min_amount"`
	MaxAmount      decimal.NullDecimal `json:"max_amount"`
	CompanyPercent decimal.Decimal     `json:"company_percent"`
	UserPercent    decimal.Decimal     `json:"user_percent"`
	AgentPercent   decimal.Decimal     `json:"agent_percent"`
}

// Contains reports whether MinAmount <= amount <= MaxAmount.
func (t Tier) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.MinAmount) {
		return false
	}
	return !t.MaxAmount.Valid || amount.LessThanOrEqual(t.MaxAmount.Decimal)
}

// Rate is the resolved set of percentages for one amount.
type Rate struct {
	CompanyPercent decimal.Decimal `json:"company_percent"`
	UserPercent    decimal.Decimal `json:"user_percent"`
	AgentPercent   decimal.Decimal `json:"agent_percent"`
}

// Schedule is either Unconfigured (resolve through the default table) or
// Configured with an admin-provided tier list. Configured with no tiers means
// no commission at all.
type Schedule struct {
	configured bool
	tiers      []Tier
}

// Unconfigured returns the schedule of a purpose nobody has set up.
func Unconfigured() Schedule {
	return Schedule{}
}

// Configured returns a schedule holding a copy of tiers sorted by ascending
// MinAmount.
func Configured(tiers []Tier) Schedule {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinAmount.LessThan(sorted[j].MinAmount)
	})
	return Schedule{configured: true, tiers: sorted}
}

func (s Schedule) IsConfigured() bool { return s.configured }

// Tiers returns a copy of the configured tiers.
func (s Schedule) Tiers() []Tier {
	out := make([]Tier, len(s.tiers))
	copy(out, s.tiers)
	return out
}

// Resolve picks the first tier (ascending MinAmount) containing amount. With no
// match, including the Unconfigured case, the default table for purpose applies.
func (s Schedule) Resolve(amount decimal.Decimal, purpose Purpose) (Rate, error) {
	if amount.IsNegative() {
		return Rate{}, ErrNegativeAmount
	}
	defaults, err := DefaultTiers(purpose)
	if err != nil {
		return Rate{}, err
	}
	if s.configured && len(s.tiers) == 0 {
		return Rate{}, nil
	}
	for _, tier := range s.tiers {
		if tier.Contains(amount) {
			return tier.rate(), nil
		}
	}
	for _, tier := range defaults {
		if tier.Contains(amount) {
			return tier.rate(), nil
		}
	}
	return Rate{}, nil
}

func (t Tier) rate() Rate {
	return Rate{
		CompanyPercent: t.CompanyPercent,
		UserPercent:    t.UserPercent,
		AgentPercent:   t.AgentPercent,
	}
}

// Quote is a resolved rate applied to an amount. Each component is rounded on
// its own.
type Quote struct {
	Amount            decimal.Decimal `json:"amount"`
	Rate              Rate            `json:"rate"`
	CompanyCommission decimal.Decimal `json:"company_commission"`
	AgentCommission   decimal.Decimal `json:"agent_commission"`
}

// Quote resolves the rate for amount and computes each commission component.
func (s Schedule) Quote(amount decimal.Decimal, purpose Purpose) (Quote, error) {
	rate, err := s.Resolve(amount, purpose)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Amount:            amount,
		Rate:              rate,
		CompanyCommission: domain.PercentOf(amount, rate.CompanyPercent),
		AgentCommission:   domain.PercentOf(amount, rate.AgentPercent),
	}, nil
}

// TotalCommission is the sum of the separately rounded components.
func (q Quote) TotalCommission() decimal.Decimal {
	return q.CompanyCommission.Add(q.AgentCommission)
}

// ValidateTiers checks the fields an admin can get wrong. Overlaps are
// allowed; the lowest MinAmount wins.
func ValidateTiers(tiers []Tier) error {
	hundred := decimal.NewFromInt(100)
	for i, tier := range tiers {
		if tier.MinAmount.IsNegative() {
			return fmt.Errorf("%w: tier %d has a negative min_amount", ErrInvalidTier, i)
		}
		if tier.MaxAmount.Valid && tier.MaxAmount.Decimal.LessThan(tier.MinAmount) {
			return fmt.Errorf("%w: tier %d has max_amount below min_amount", ErrInvalidTier, i)
		}
		for _, p := range []decimal.Decimal{tier.CompanyPercent, tier.UserPercent, tier.AgentPercent} {
			if p.IsNegative() || p.GreaterThan(hundred) {
				return fmt.Errorf("%w: tier %d has a percent outside 0..100", ErrInvalidTier, i)
			}
		}
	}
	return nil
}
