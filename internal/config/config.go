/**
 * @description
 * This package handles the configuration management for the ledger service. It
 * uses Viper to read an optional .env file and environment variables into a
 * single Config struct.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and env binding.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all the configuration variables for the ledger service.
type Config struct {
	ServerPort                      string `mapstructure:"SERVER_PORT"`
	LogLevel                        string `mapstructure:"LOG_LEVEL"`
	DatabaseURL                     string `mapstructure:"DATABASE_URL"`
	StorageDriver                   string `mapstructure:"STORAGE_DRIVER"`
	RunMigrations                   bool   `mapstructure:"RUN_MIGRATIONS"`
	RabbitMQURL                     string `mapstructure:"RABBITMQ_URL"`
	EventsExchange                  string `mapstructure:"EVENTS_EXCHANGE"`
	RedisURL                        string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix                  string `mapstructure:"REDIS_KEY_PREFIX"`
	JWTJWKSURL                      string `mapstructure:"JWT_JWKS_URL"`
	JWTSecret                       string `mapstructure:"JWT_SECRET"`
	JWTIssuer                       string `mapstructure:"JWT_ISSUER"`
	JWTAudience                     string `mapstructure:"JWT_AUDIENCE"`
	CORSAllowedOrigins              string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	MoneyMovementRateLimitPerMinute int    `mapstructure:"MONEY_MOVEMENT_RATE_LIMIT_PER_MINUTE"`
	CommissionCacheTTLSeconds       int    `mapstructure:"COMMISSION_CACHE_TTL_SECONDS"`
	PendingTTLHours                 int    `mapstructure:"PENDING_TTL_HOURS"`
	PendingExpirySchedule           string `mapstructure:"PENDING_EXPIRY_SCHEDULE"`
	OutboxPollIntervalMS            int    `mapstructure:"OUTBOX_POLL_INTERVAL_MS"`
	OutboxBatchSize                 int    `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxRetentionHours            int    `mapstructure:"OUTBOX_RETENTION_HOURS"`
	OutboxPurgeSchedule             string `mapstructure:"OUTBOX_PURGE_SCHEDULE"`
	CurrencyLabel                   string `mapstructure:"CURRENCY_LABEL"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	viper.SetDefault("RUN_MIGRATIONS", true)
	viper.SetDefault("EVENTS_EXCHANGE", "moneypay.events")
	viper.SetDefault("REDIS_KEY_PREFIX", "moneypay")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("MONEY_MOVEMENT_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("COMMISSION_CACHE_TTL_SECONDS", 30)
	viper.SetDefault("PENDING_TTL_HOURS", 0)
	viper.SetDefault("PENDING_EXPIRY_SCHEDULE", "@every 5m")
	viper.SetDefault("OUTBOX_POLL_INTERVAL_MS", 1200)
	viper.SetDefault("OUTBOX_BATCH_SIZE", 50)
	viper.SetDefault("OUTBOX_RETENTION_HOURS", 168)
	viper.SetDefault("OUTBOX_PURGE_SCHEDULE", "@hourly")
	viper.SetDefault("CURRENCY_LABEL", "SSP")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("STORAGE_DRIVER")
	_ = viper.BindEnv("RUN_MIGRATIONS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("JWT_JWKS_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("MONEY_MOVEMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("COMMISSION_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("PENDING_TTL_HOURS")
	_ = viper.BindEnv("PENDING_EXPIRY_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_POLL_INTERVAL_MS")
	_ = viper.BindEnv("OUTBOX_BATCH_SIZE")
	_ = viper.BindEnv("OUTBOX_RETENTION_HOURS")
	_ = viper.BindEnv("OUTBOX_PURGE_SCHEDULE")
	_ = viper.BindEnv("CURRENCY_LABEL")

	// The .env file is optional.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.StorageDriver = strings.ToLower(strings.TrimSpace(config.StorageDriver))
	switch config.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		log.Printf("level=warn component=config msg=\"unknown storage driver; using postgres\" driver=%q", config.StorageDriver)
		config.StorageDriver = StorageDriverPostgres
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.Trim(strings.TrimSpace(config.RedisKeyPrefix), ":")
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "moneypay"
	}
	config.EventsExchange = strings.TrimSpace(config.EventsExchange)
	if config.EventsExchange == "" {
		config.EventsExchange = "moneypay.events"
	}
	config.CurrencyLabel = strings.TrimSpace(config.CurrencyLabel)
	if config.CurrencyLabel == "" {
		config.CurrencyLabel = "SSP"
	}

	if config.MoneyMovementRateLimitPerMinute <= 0 {
		log.Printf("level=warn component=config msg=\"invalid money movement rate limit; using default\" value=%d", config.MoneyMovementRateLimitPerMinute)
		config.MoneyMovementRateLimitPerMinute = 30
	}
	if config.CommissionCacheTTLSeconds < 0 {
		log.Printf("level=warn component=config msg=\"negative commission cache ttl; disabling cache\" value=%d", config.CommissionCacheTTLSeconds)
		config.CommissionCacheTTLSeconds = 0
	}
	if config.PendingTTLHours < 0 {
		log.Printf("level=warn component=config msg=\"negative pending ttl; pending items will not expire\" value=%d", config.PendingTTLHours)
		config.PendingTTLHours = 0
	}
	if config.OutboxPollIntervalMS <= 0 {
		config.OutboxPollIntervalMS = 1200
	}
	if config.OutboxBatchSize <= 0 {
		config.OutboxBatchSize = 50
	}
	if config.OutboxRetentionHours <= 0 {
		config.OutboxRetentionHours = 168
	}
	if strings.TrimSpace(config.PendingExpirySchedule) == "" {
		config.PendingExpirySchedule = "@every 5m"
	}
	if strings.TrimSpace(config.OutboxPurgeSchedule) == "" {
		config.OutboxPurgeSchedule = "@hourly"
	}

	return
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (c Config) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLHours) * time.Hour
}

func (c Config) OutboxPollInterval() time.Duration {
	return time.Duration(c.OutboxPollIntervalMS) * time.Millisecond
}

func (c Config) OutboxRetention() time.Duration {
	return time.Duration(c.OutboxRetentionHours) * time.Hour
}

func (c Config) CommissionCacheTTL() time.Duration {
	return time.Duration(c.CommissionCacheTTLSeconds) * time.Second
}
