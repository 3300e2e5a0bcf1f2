package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	DefaultGateway  string `env:"DEFAULT_GATEWAY" envDefault:"stripe"`
	DefaultCurrency string `env:"DEFAULT_CURRENCY" envDefault:"USD"`

	// Currencies the engine accepts, ISO 4217 alphabetic codes.
	SupportedCurrencies []string `env:"SUPPORTED_CURRENCIES" envSeparator:"," envDefault:"USD,EUR,GBP"`

	StripeAPIKey       string `env:"STRIPE_API_KEY"`
	FakeGatewayEnabled bool   `env:"FAKE_GATEWAY_ENABLED" envDefault:"false"`

	// Per-provider webhook signing secrets, e.g. "stripe:whsec1,fake:whsec2".
	WebhookSecrets       map[string]string `env:"WEBHOOK_SECRETS" envKeyValSeparator:":" envSeparator:","`
	WebhookReplayWindowS int               `env:"WEBHOOK_REPLAY_WINDOW_S" envDefault:"300"`

	// Platform fee absorbed by the payee: net = amount - fee.
	FeeBps        int   `env:"FEE_BPS" envDefault:"290"`
	FeeFixedMinor int64 `env:"FEE_FIXED_MINOR" envDefault:"30"`

	IntentTTLMinutes   int `env:"INTENT_TTL_MINUTES" envDefault:"60"`
	GatewayTimeoutS    int `env:"GATEWAY_TIMEOUT_S" envDefault:"10"`
	GatewayMaxAttempts int `env:"GATEWAY_MAX_ATTEMPTS" envDefault:"3"`

	GraceDays int `env:"GRACE_DAYS" envDefault:"7"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// WebhookSecret returns the signing secret configured for a provider, or ""
// when none is set. Ingestion rejects providers without a secret.
func (c *Config) WebhookSecret(provider string) string {
	return c.WebhookSecrets[provider]
}
