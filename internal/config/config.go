/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables and an optional
 * .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the service.
type Config struct {
	ServerPort                      string `mapstructure:"SERVER_PORT"`
	StripeSecretKey                 string `mapstructure:"STRIPE_SECRET_KEY"`
	StripePublishableKey            string `mapstructure:"STRIPE_PUBLISHABLE_KEY"`
	StripeWebhookSecret             string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency                 string `mapstructure:"PAYMENT_CURRENCY"`
	PaymentMetadataTag              string `mapstructure:"PAYMENT_METADATA_TAG"`
	FirebaseProjectID               string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleCredentialsFile           string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseJWKSURL                 string `mapstructure:"FIREBASE_JWKS_URL"`
	DatabaseURL                     string `mapstructure:"DATABASE_URL"`
	RedisURL                        string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix                  string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL                     string `mapstructure:"RABBITMQ_URL"`
	EventsExchange                  string `mapstructure:"EVENTS_EXCHANGE"`
	NFTContractAddress              string `mapstructure:"NFT_CONTRACT_ADDRESS"`
	AptosNodeURL                    string `mapstructure:"APTOS_NODE_URL"`
	AIAPIKey                        string `mapstructure:"AI_API_KEY"`
	AIBaseURL                       string `mapstructure:"AI_BASE_URL"`
	AIModel                         string `mapstructure:"AI_MODEL"`
	GatePassword                    string `mapstructure:"GATE_PASSWORD"`
	CORSAllowedOrigins              string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	PaymentIntentRateLimitPerMinute int    `mapstructure:"PAYMENT_INTENT_RATE_LIMIT_PER_MINUTE"`
	SessionTTLMinutes               int    `mapstructure:"SESSION_TTL_MINUTES"`
	ReconcileSchedule               string `mapstructure:"RECONCILE_SCHEDULE"`
	ReconcilePendingAfterMinutes    int    `mapstructure:"RECONCILE_PENDING_AFTER_MINUTES"`
	SeedTrees                       bool   `mapstructure:"SEED_TREES"`
}

const (
	defaultServerPort        = "5000"
	defaultCurrency          = "INR"
	defaultMetadataTag       = "tree_adoption"
	defaultRedisKeyPrefix    = "tree_adoption"
	defaultEventsExchange    = "adoption_events"
	defaultAptosNodeURL      = "https://fullnode.testnet.aptoslabs.com"
	defaultIntentRateLimit   = 20
	defaultSessionTTLMinutes = 720
	defaultReconcileSchedule = "@every 5m"
	defaultPendingAfter      = 15
)

// LoadConfig reads configuration from environment variables and the optional
// .env file in path. logger may be nil.
func LoadConfig(path string, logger *slog.Logger) (config Config, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "config")

	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("PAYMENT_CURRENCY", defaultCurrency)
	viper.SetDefault("PAYMENT_METADATA_TAG", defaultMetadataTag)
	viper.SetDefault("REDIS_KEY_PREFIX", defaultRedisKeyPrefix)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("APTOS_NODE_URL", defaultAptosNodeURL)
	viper.SetDefault("PAYMENT_INTENT_RATE_LIMIT_PER_MINUTE", defaultIntentRateLimit)
	viper.SetDefault("SESSION_TTL_MINUTES", defaultSessionTTLMinutes)
	viper.SetDefault("RECONCILE_SCHEDULE", defaultReconcileSchedule)
	viper.SetDefault("RECONCILE_PENDING_AFTER_MINUTES", defaultPendingAfter)
	viper.SetDefault("SEED_TREES", false)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_PUBLISHABLE_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("PAYMENT_CURRENCY")
	_ = viper.BindEnv("PAYMENT_METADATA_TAG")
	_ = viper.BindEnv("FIREBASE_PROJECT_ID")
	_ = viper.BindEnv("GOOGLE_APPLICATION_CREDENTIALS")
	_ = viper.BindEnv("FIREBASE_JWKS_URL")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("NFT_CONTRACT_ADDRESS")
	_ = viper.BindEnv("APTOS_NODE_URL")
	_ = viper.BindEnv("AI_API_KEY", "AI_API_KEY", "OPENROUTER_API_KEY")
	_ = viper.BindEnv("AI_BASE_URL")
	_ = viper.BindEnv("AI_MODEL")
	_ = viper.BindEnv("GATE_PASSWORD")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("PAYMENT_INTENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_PENDING_AFTER_MINUTES")
	_ = viper.BindEnv("SEED_TREES")

	// It's okay if the config file doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Warn("failed to read config file; using environment values", "error", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.StripeSecretKey = strings.TrimSpace(config.StripeSecretKey)
	config.StripeWebhookSecret = strings.TrimSpace(config.StripeWebhookSecret)
	config.PaymentCurrency = strings.ToUpper(strings.TrimSpace(config.PaymentCurrency))
	if config.PaymentCurrency == "" {
		config.PaymentCurrency = defaultCurrency
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisKeyPrefix), ":")
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = defaultRedisKeyPrefix
	}
	config.AIAPIKey = strings.TrimSpace(config.AIAPIKey)

	if config.PaymentIntentRateLimitPerMinute < 0 {
		logger.Warn("negative payment intent rate limit configured; coercing to default", "value", config.PaymentIntentRateLimitPerMinute)
		config.PaymentIntentRateLimitPerMinute = defaultIntentRateLimit
	}
	if config.SessionTTLMinutes <= 0 {
		logger.Warn("invalid session ttl configured; coercing to default", "value", config.SessionTTLMinutes)
		config.SessionTTLMinutes = defaultSessionTTLMinutes
	}
	if config.ReconcilePendingAfterMinutes <= 0 {
		logger.Warn("invalid reconcile pending window configured; coercing to default", "value", config.ReconcilePendingAfterMinutes)
		config.ReconcilePendingAfterMinutes = defaultPendingAfter
	}
	if strings.TrimSpace(config.ReconcileSchedule) == "" {
		config.ReconcileSchedule = defaultReconcileSchedule
	}

	if config.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY is not set; payment endpoints will be unavailable")
	}
	return
}

// SessionTTL is the lifetime of a new session.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// ReconcilePendingAfter is how long an attempt may sit before the reconciler
// looks at it.
func (c Config) ReconcilePendingAfter() time.Duration {
	return time.Duration(c.ReconcilePendingAfterMinutes) * time.Minute
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS; empty means any origin.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
