/**
 * @description
 * Realtime delivery to connected clients. Events are published on a Redis
 * pub/sub channel per account (`<prefix>:user-<id>`); the websocket gateway
 * subscribed to those channels forwards them to the account's open sockets.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: pub/sub transport.
 */

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Event names understood by the mobile clients.
const (
	EventBalanceUpdated  = "balance-updated"
	EventNewNotification = "new-notification"
)

// Envelope is the message body published on an account channel.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type balancePayload struct {
	AccountID int64  `json:"account_id"`
	Balance   string `json:"balance"`
}

// redisPublisher is the slice of the go-redis client the emitter needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisEmitter publishes realtime events through Redis.
type RedisEmitter struct {
	client redisPublisher
	prefix string
	logger *slog.Logger
}

func NewRedisEmitter(client redisPublisher, prefix string, logger *slog.Logger) *RedisEmitter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "moneypay"
	}
	return &RedisEmitter{client: client, prefix: prefix, logger: logger.With("component", "realtime")}
}

// Channel returns the pub/sub channel for accountID.
func (e *RedisEmitter) Channel(accountID int64) string {
	return fmt.Sprintf("%s:user-%d", e.prefix, accountID)
}

func (e *RedisEmitter) EmitBalanceUpdated(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	return e.emit(ctx, accountID, Envelope{
		Type:    EventBalanceUpdated,
		Payload: balancePayload{AccountID: accountID, Balance: balance.StringFixed(2)},
	})
}

func (e *RedisEmitter) EmitNotification(ctx context.Context, accountID int64, payload interface{}) error {
	return e.emit(ctx, accountID, Envelope{Type: EventNewNotification, Payload: payload})
}

func (e *RedisEmitter) emit(ctx context.Context, accountID int64, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode realtime event: %w", err)
	}
	receivers, err := e.client.Publish(ctx, e.Channel(accountID), body).Result()
	if err != nil {
		return fmt.Errorf("failed to publish realtime event: %w", err)
	}
	e.logger.Debug("realtime event published", "account_id", accountID, "type", env.Type, "receivers", receivers)
	return nil
}

// LogEmitter stands in when Redis is not configured.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e LogEmitter) EmitBalanceUpdated(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	e.Logger.Info("realtime fallback", "type", EventBalanceUpdated, "account_id", accountID, "balance", balance.StringFixed(2))
	return nil
}

func (e LogEmitter) EmitNotification(ctx context.Context, accountID int64, payload interface{}) error {
	e.Logger.Info("realtime fallback", "type", EventNewNotification, "account_id", accountID)
	return nil
}
