package commission

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func bounded(lo, hi int64) (decimal.Decimal, decimal.NullDecimal) {
	return decimal.NewFromInt(lo), decimal.NewNullDecimal(decimal.NewFromInt(hi))
}

func pct(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sendTier(lo, hi int64, company string) Tier {
	t := Tier{CompanyPercent: pct(company)}
	t.MinAmount, t.MaxAmount = bounded(lo, hi)
	return t
}

func withdrawTier(lo, hi int64, agent, company string) Tier {
	t := Tier{AgentPercent: pct(agent), CompanyPercent: pct(company)}
	t.MinAmount, t.MaxAmount = bounded(lo, hi)
	return t
}

func openEnded(t Tier) Tier {
	t.MaxAmount = decimal.NullDecimal{}
	return t
}

var defaultSendMoneyTiers = []Tier{
	sendTier(0, 99, "0"),
	sendTier(100, 499, "1"),
	sendTier(500, 999, "2"),
	openEnded(sendTier(1000, 1000, "3")),
}

var defaultWithdrawalTiers = []Tier{
	withdrawTier(0, 99, "0", "0"),
	withdrawTier(100, 499, "1", "0.5"),
	withdrawTier(500, 999, "1.5", "0.5"),
	openEnded(withdrawTier(1000, 1000, "2", "1")),
}

// DefaultTiers returns a copy of the static table used when a purpose has no
// matching configured tier. Amounts falling between two default ranges (e.g.
// 99.50) carry no commission.
func DefaultTiers(purpose Purpose) ([]Tier, error) {
	var src []Tier
	switch purpose {
	case SendMoney:
		src = defaultSendMoneyTiers
	case Withdrawal:
		src = defaultWithdrawalTiers
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}
	out := make([]Tier, len(src))
	copy(out, src)
	return out, nil
}
