package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/moneypay/ledger-service/internal/app"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiFixture struct {
	repo    *store.MemoryRepository
	handler http.Handler
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAPIFixture(t *testing.T, limiter RateLimiter) *apiFixture {
	t.Helper()
	repo := store.NewMemoryRepository()
	svc := app.NewService(repo, app.NewScheduleCache(repo, 0), app.Options{}, discardLogger())
	h := NewHandler(svc, discardLogger())
	return &apiFixture{
		repo: repo,
		handler: Routes(h, RouterOptions{
			Auth:               AuthConfig{Secret: testSecret},
			AllowedOrigins:     []string{"*"},
			RateLimiter:        limiter,
			MoneyRatePerMinute: 5,
		}, discardLogger()),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func (f *apiFixture) seed(role, phone, balance string) *domain.Account {
	acc := domain.Account{Name: role + " " + phone, Phone: phone, Role: role, Balance: dec(balance)}
	if role == domain.RoleAgent {
		acc.AgentCode = ptr("654321")
	}
	return f.repo.SeedAccount(acc)
}

func signHS256(t *testing.T, secret string, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub, "exp": exp.Unix()})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func tokenFor(t *testing.T, id int64) string {
	return signHS256(t, testSecret, strconv.FormatInt(id, 10), time.Now().Add(time.Hour))
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "expected %s, got %s", want, got.String())
}

func TestHealthCheckNeedsNoToken(t *testing.T) {
	f := newAPIFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejectsBadTokens(t *testing.T) {
	f := newAPIFixture(t, nil)
	alice := f.seed(domain.RoleUser, "0911000001", "10")

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Token " + tokenFor(t, alice.ID)},
		{name: "wrong secret", header: "Bearer " + signHS256(t, "other", "1", time.Now().Add(time.Hour))},
		{name: "expired", header: "Bearer " + signHS256(t, testSecret, "1", time.Now().Add(-time.Minute))},
		{name: "non numeric subject", header: "Bearer " + signHS256(t, testSecret, "user_abc", time.Now().Add(time.Hour))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/balance", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	rec := f.do(t, http.MethodGet, "/balance", tokenFor(t, alice.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body balanceResponse
	decodeBody(t, rec, &body)
	require.Equal(t, alice.ID, body.AccountID)
	requireDecimal(t, "10", body.Balance)
}

func TestSendMoneyOverHTTP(t *testing.T) {
	f := newAPIFixture(t, nil)
	alice := f.seed(domain.RoleUser, "0911000001", "1000")
	bob := f.seed(domain.RoleUser, "0911000002", "0")

	rec := f.do(t, http.MethodPost, "/transactions/send", tokenFor(t, alice.ID), map[string]string{
		"recipient_phone": bob.Phone,
		"amount":          "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var record domain.Transaction
	decodeBody(t, rec, &record)
	requireDecimal(t, "1.00", record.Commission)
	require.Equal(t, domain.TxStatusCompleted, record.Status)

	rec = f.do(t, http.MethodGet, "/transactions/"+record.Reference, tokenFor(t, bob.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/balance", tokenFor(t, alice.ID), nil)
	var balance balanceResponse
	decodeBody(t, rec, &balance)
	requireDecimal(t, "899", balance.Balance)
}

func TestErrorMapping(t *testing.T) {
	f := newAPIFixture(t, nil)
	alice := f.seed(domain.RoleUser, "0911000001", "50")
	bob := f.seed(domain.RoleUser, "0911000002", "0")
	admin := f.seed(domain.RoleAdmin, "0900000001", "0")

	tests := []struct {
		name   string
		method string
		path   string
		as     int64
		body   interface{}
		want   int
	}{
		{
			name: "insufficient balance", method: http.MethodPost, path: "/transactions/send", as: alice.ID,
			body: map[string]string{"recipient_phone": bob.Phone, "amount": "500"}, want: http.StatusBadRequest,
		},
		{
			name: "unknown recipient", method: http.MethodPost, path: "/transactions/send", as: alice.ID,
			body: map[string]string{"recipient_phone": "0999999999", "amount": "5"}, want: http.StatusNotFound,
		},
		{
			name: "missing phone", method: http.MethodPost, path: "/transactions/send", as: alice.ID,
			body: map[string]string{"amount": "5"}, want: http.StatusBadRequest,
		},
		{
			name: "unknown field", method: http.MethodPost, path: "/transactions/send", as: alice.ID,
			body: map[string]string{"recipient_phone": bob.Phone, "amount": "5", "fee": "0"}, want: http.StatusBadRequest,
		},
		{
			name: "fractional cents", method: http.MethodPost, path: "/transactions/send", as: alice.ID,
			body: map[string]string{"recipient_phone": bob.Phone, "amount": "1.005"}, want: http.StatusBadRequest,
		},
		{
			name: "amount above column limit", method: http.MethodPost, path: "/transactions/send", as: alice.ID,
			body: map[string]string{"recipient_phone": bob.Phone, "amount": "1000000000000"}, want: http.StatusBadRequest,
		},
		{
			name: "admin route as user", method: http.MethodPost, path: "/admin/push", as: alice.ID,
			body: map[string]string{"from_phone": alice.Phone, "to_phone": bob.Phone, "amount": "5"}, want: http.StatusForbidden,
		},
		{
			name: "transaction not found", method: http.MethodGet, path: "/transactions/TXN-NOPE", as: admin.ID,
			want: http.StatusNotFound,
		},
		{
			name: "bad request id", method: http.MethodPost, path: "/withdrawal-requests/abc/approve", as: alice.ID,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown purpose", method: http.MethodGet, path: "/admin/commission-schedules/topup", as: admin.ID,
			want: http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tokenFor(t, tc.as), tc.body)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
			var body map[string]interface{}
			decodeBody(t, rec, &body)
			require.NotEmpty(t, body["error"])
		})
	}
	requireDecimal(t, "50", mustBalance(t, f, alice.ID))

	rec := f.do(t, http.MethodPost, "/transactions/send", tokenFor(t, alice.ID), map[string]string{
		"recipient_phone": bob.Phone,
		"amount":          "500",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var shortfall conflictBody
	decodeBody(t, rec, &shortfall)
	require.NotNil(t, shortfall.Required)
	requireDecimal(t, "510", *shortfall.Required)
	requireDecimal(t, "50", *shortfall.CurrentBalance)
}

func mustBalance(t *testing.T, f *apiFixture, id int64) decimal.Decimal {
	t.Helper()
	acc, err := f.repo.FindAccountByID(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func TestWithdrawalRequestConflictBody(t *testing.T) {
	f := newAPIFixture(t, nil)
	user := f.seed(domain.RoleUser, "0911000001", "1000")
	friend := f.seed(domain.RoleUser, "0911000002", "0")
	agent := f.seed(domain.RoleAgent, "0922000001", "0")

	rec := f.do(t, http.MethodPost, "/withdrawal-requests", tokenFor(t, agent.ID), map[string]string{
		"user_phone": user.Phone,
		"amount":     "200",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var request domain.WithdrawalRequest
	decodeBody(t, rec, &request)

	rec = f.do(t, http.MethodPost, "/transactions/send", tokenFor(t, user.ID), map[string]string{
		"recipient_phone": friend.Phone,
		"amount":          "900",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	path := "/withdrawal-requests/" + strconv.FormatInt(request.ID, 10) + "/approve"
	rec = f.do(t, http.MethodPost, path, tokenFor(t, user.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict conflictBody
	decodeBody(t, rec, &conflict)
	require.Equal(t, domain.RequestStatusRejected, conflict.CurrentStatus)
	require.NotNil(t, conflict.CurrentBalance)
	requireDecimal(t, "82", *conflict.CurrentBalance)
	requireDecimal(t, "203", *conflict.Required)

	rec = f.do(t, http.MethodPost, path, tokenFor(t, user.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminCashoutPendingReturnsAccepted(t *testing.T) {
	f := newAPIFixture(t, nil)
	admin := f.seed(domain.RoleAdmin, "0900000001", "0")
	agent := f.seed(domain.RoleAgent, "0922000001", "1000")

	rec := f.do(t, http.MethodPost, "/admin/cashout", tokenFor(t, admin.ID), map[string]string{
		"agent_code": "654321",
		"amount":     "400",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var out struct {
		Status  string                   `json:"status"`
		Request domain.WithdrawalRequest `json:"request"`
	}
	decodeBody(t, rec, &out)
	require.Equal(t, "pending", out.Status)

	rec = f.do(t, http.MethodPost, "/withdrawal-requests/"+strconv.FormatInt(out.Request.ID, 10)+"/reject", tokenFor(t, agent.ID), map[string]string{"reason": "busy"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireDecimal(t, "1000", mustBalance(t, f, agent.ID))
}

func TestStatePushLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t, nil)
	sender := f.seed(domain.RoleAdmin, "0900000001", "5000")
	receiver := f.seed(domain.RoleAdmin, "0900000002", "0")
	state := f.repo.SeedStateSetting(domain.StateSetting{Name: "Central", CommissionPercent: dec("2")})

	rec := f.do(t, http.MethodPost, "/state-pushes", tokenFor(t, sender.ID), map[string]interface{}{
		"receiver_id":                   receiver.ID,
		"amount":                        "1000",
		"state_id":                      state.ID,
		"deduct_commission_from_amount": true,
		"currency_code":                 "SSP",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var record domain.Transaction
	decodeBody(t, rec, &record)
	require.Equal(t, domain.TxStatusPending, record.Status)
	requireDecimal(t, "4000", mustBalance(t, f, sender.ID))

	rec = f.do(t, http.MethodPatch, "/state-pushes/"+record.Reference, tokenFor(t, sender.ID), map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/state-pushes/"+record.Reference+"/receive", tokenFor(t, sender.ID), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/state-pushes/"+record.Reference+"/receive", tokenFor(t, receiver.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireDecimal(t, "980", mustBalance(t, f, receiver.ID))

	rec = f.do(t, http.MethodPost, "/state-pushes/"+record.Reference+"/cancel", tokenFor(t, sender.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict conflictBody
	decodeBody(t, rec, &conflict)
	require.Equal(t, domain.TxStatusCompleted, conflict.CurrentStatus)
}

type limiterStub struct {
	count int
	err   error
	calls int
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.calls++
	return l.count, 42, l.err
}

func TestMoneyRoutesAreRateLimited(t *testing.T) {
	limiter := &limiterStub{count: 6}
	f := newAPIFixture(t, limiter)
	alice := f.seed(domain.RoleUser, "0911000001", "1000")
	bob := f.seed(domain.RoleUser, "0911000002", "0")

	rec := f.do(t, http.MethodPost, "/transactions/send", tokenFor(t, alice.ID), map[string]string{
		"recipient_phone": bob.Phone,
		"amount":          "10",
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "42", rec.Header().Get("Retry-After"))
	requireDecimal(t, "1000", mustBalance(t, f, alice.ID))

	rec = f.do(t, http.MethodGet, "/balance", tokenFor(t, alice.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, limiter.calls)
}

func TestRateLimiterErrorsFailOpen(t *testing.T) {
	limiter := &limiterStub{err: context.DeadlineExceeded}
	f := newAPIFixture(t, limiter)
	alice := f.seed(domain.RoleUser, "0911000001", "1000")
	bob := f.seed(domain.RoleUser, "0911000002", "0")

	rec := f.do(t, http.MethodPost, "/transactions/send", tokenFor(t, alice.ID), map[string]string{
		"recipient_phone": bob.Phone,
		"amount":          "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateStatePushWithoutCurrencyCode(t *testing.T) {
	f := newAPIFixture(t, nil)
	sender := f.seed(domain.RoleAdmin, "0900000001", "5000")
	receiver := f.seed(domain.RoleAdmin, "0900000002", "0")
	state := f.repo.SeedStateSetting(domain.StateSetting{Name: "Central", CommissionPercent: dec("2")})

	rec := f.do(t, http.MethodPost, "/state-pushes", tokenFor(t, sender.ID), map[string]interface{}{
		"receiver_id": receiver.ID,
		"amount":      "100",
		"state_id":    state.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var record domain.Transaction
	decodeBody(t, rec, &record)
	require.Nil(t, record.CurrencyCode)

	rec = f.do(t, http.MethodPost, "/state-pushes", tokenFor(t, sender.ID), map[string]interface{}{
		"receiver_id":   receiver.ID,
		"amount":        "100",
		"state_id":      state.ID,
		"currency_code": "SS",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAccountRoutes(t *testing.T) {
	f := newAPIFixture(t, nil)
	admin := f.seed(domain.RoleAdmin, "0900000001", "0")
	user := f.seed(domain.RoleUser, "0911000001", "100")
	friend := f.seed(domain.RoleUser, "0911000002", "0")
	base := "/admin/accounts/" + strconv.FormatInt(user.ID, 10)

	rec := f.do(t, http.MethodPost, base+"/topup", tokenFor(t, admin.ID), map[string]string{"amount": "50"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var record domain.Transaction
	decodeBody(t, rec, &record)
	require.Equal(t, domain.TxTypeTopup, record.Type)
	requireDecimal(t, "150", mustBalance(t, f, user.ID))

	rec = f.do(t, http.MethodPost, base+"/withdraw", tokenFor(t, admin.ID), map[string]string{"amount": "500"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var shortfall conflictBody
	decodeBody(t, rec, &shortfall)
	require.Nil(t, shortfall.CurrentBalance, "the admin is not the short account")

	rec = f.do(t, http.MethodPost, base+"/withdraw", tokenFor(t, admin.ID), map[string]string{"amount": "30"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	requireDecimal(t, "120", mustBalance(t, f, user.ID))

	rec = f.do(t, http.MethodPost, base+"/topup", tokenFor(t, user.ID), map[string]string{"amount": "50"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/suspend", tokenFor(t, admin.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status map[string]interface{}
	decodeBody(t, rec, &status)
	require.Equal(t, true, status["is_suspended"])

	rec = f.do(t, http.MethodPost, "/transactions/send", tokenFor(t, user.ID), map[string]string{
		"recipient_phone": friend.Phone,
		"amount":          "10",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/unsuspend", tokenFor(t, admin.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/transactions/send", tokenFor(t, user.ID), map[string]string{
		"recipient_phone": friend.Phone,
		"amount":          "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAdminSummaryOverHTTP(t *testing.T) {
	f := newAPIFixture(t, nil)
	sender := f.seed(domain.RoleAdmin, "0900000001", "5000")
	receiver := f.seed(domain.RoleAdmin, "0900000002", "0")
	agent := f.seed(domain.RoleAgent, "0922000001", "1000")
	state := f.repo.SeedStateSetting(domain.StateSetting{Name: "Central", CommissionPercent: dec("2")})

	rec := f.do(t, http.MethodPost, "/state-pushes", tokenFor(t, sender.ID), map[string]interface{}{
		"receiver_id": receiver.ID,
		"amount":      "1000",
		"state_id":    state.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/admin/cashout", tokenFor(t, receiver.ID), map[string]string{
		"agent_code": "654321",
		"amount":     "300",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var pending struct {
		Request domain.WithdrawalRequest `json:"request"`
	}
	decodeBody(t, rec, &pending)
	rec = f.do(t, http.MethodPost, "/withdrawal-requests/"+strconv.FormatInt(pending.Request.ID, 10)+"/approve", tokenFor(t, agent.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary adminSummaryResponse
	rec = f.do(t, http.MethodGet, "/admin/me/summary", tokenFor(t, sender.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &summary)
	requireDecimal(t, "20", summary.CommissionEarned)
	require.True(t, summary.CashoutReceived.IsZero())
	require.Zero(t, summary.PendingStatePushes)

	rec = f.do(t, http.MethodGet, "/admin/me/summary", tokenFor(t, receiver.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &summary)
	require.True(t, summary.CommissionEarned.IsZero())
	requireDecimal(t, "300", summary.CashoutReceived)
	require.EqualValues(t, 1, summary.PendingStatePushes)

	rec = f.do(t, http.MethodGet, "/admin/me/summary", tokenFor(t, agent.ID), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
