package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func jwksServer(t *testing.T, kid string, key *rsa.PublicKey, hits *int32) *httptest.Server {
	t.Helper()
	body := map[string]interface{}{
		"keys": []map[string]string{{
			"kid": kid,
			"kty": "RSA",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func echoAccount() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := AccountIDFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]int64{"account_id": id})
	})
}

func TestAuthMiddlewareVerifiesJWKSTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var hits int32
	srv := jwksServer(t, "key-1", &key.PublicKey, &hits)

	mw := AuthMiddleware(AuthConfig{JWKSURL: srv.URL, Issuer: "https://auth.moneypay.test", Audience: "ledger"}, discardLogger())
	handler := mw(echoAccount())

	sign := func(kid, iss string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"sub": "42",
			"iss": iss,
			"aud": "ledger",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		token.Header["kid"] = kid
		signed, err := token.SignedString(key)
		require.NoError(t, err)
		return signed
	}

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		rec := call(sign("key-1", "https://auth.moneypay.test"))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]int64
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.EqualValues(t, 42, body["account_id"])
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))

	require.Equal(t, http.StatusUnauthorized, call(sign("key-1", "https://evil.test")).Code)
	require.Equal(t, http.StatusUnauthorized, call(sign("key-2", "https://auth.moneypay.test")).Code)
	require.Equal(t, http.StatusUnauthorized, call(signHS256(t, testSecret, "42", time.Now().Add(time.Hour))).Code)
}

func TestAuthMiddlewareWithoutKeysRejectsEverything(t *testing.T) {
	handler := AuthMiddleware(AuthConfig{}, discardLogger())(echoAccount())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signHS256(t, "unused", "1", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseRSAPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	n := base64.RawURLEncoding.EncodeToString(key.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())

	pub, err := parseRSAPublicKey(n, e)
	require.NoError(t, err)
	require.Equal(t, 0, key.N.Cmp(pub.N))
	require.Equal(t, key.E, pub.E)

	_, err = parseRSAPublicKey("***", e)
	require.Error(t, err)
}

func TestRedisRateLimiterIgnoresDisabledLimits(t *testing.T) {
	var limiter *RedisRateLimiter
	count, retry, err := limiter.ConsumeRateLimit(context.Background(), "money_movement", "1", 5, time.Minute)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, retry)

	limiter = NewRedisRateLimiter(nil, " moneypay: ")
	require.Equal(t, "moneypay:rate_limit", limiter.prefix)
	count, _, err = limiter.ConsumeRateLimit(context.Background(), "money_movement", "1", 5, time.Minute)
	require.NoError(t, err)
	require.Zero(t, count)
}
