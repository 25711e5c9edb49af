package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo *store.MemoryRepository
	svc  *Service
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := store.NewMemoryRepository()
	svc := NewService(repo, NewScheduleCache(repo, 0), Options{}, discardLogger())
	return &fixture{repo: repo, svc: svc}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) user(phone, balance string) *domain.Account {
	return f.repo.SeedAccount(domain.Account{Name: "User " + phone, Phone: phone, Role: domain.RoleUser, Balance: dec(balance)})
}

func (f *fixture) agent(phone, code, balance string, autoCashout bool) *domain.Account {
	return f.repo.SeedAccount(domain.Account{
		Name:             "Agent " + code,
		Phone:            phone,
		Role:             domain.RoleAgent,
		AgentCode:        ptr(code),
		Balance:          dec(balance),
		AutoAdminCashout: autoCashout,
	})
}

func (f *fixture) admin(phone, balance string) *domain.Account {
	return f.repo.SeedAccount(domain.Account{Name: "Admin " + phone, Phone: phone, Role: domain.RoleAdmin, Balance: dec(balance)})
}

func (f *fixture) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	acc, err := f.repo.FindAccountByID(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "expected %s, got %s", want, got.StringFixed(2))
}

func (f *fixture) routingKeys() []string {
	var keys []string
	for _, m := range f.repo.OutboxMessages() {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}
