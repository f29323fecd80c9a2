// Package config defines the global configuration structure for the Larder
// entitlement service. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"larder/internal/types"
)

// Config is the top-level configuration struct for the Larder service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"larder-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Billing   BillingConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
}

// AuthConfig holds the token-verification settings. Tokens are minted by the
// identity service; this service only validates them.
type AuthConfig struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET" validate:"required"`
	Issuer    string `envconfig:"AUTH_JWT_ISSUER"`
	Audience  string `envconfig:"AUTH_JWT_AUDIENCE"`
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL of the dashboard, used to build checkout/portal redirect
	// URLs server-side (no trailing slash).
	DashboardURL string `envconfig:"DASHBOARD_URL" validate:"required,url"`

	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"` // Fail fast when pool exhausted
}

// BillingConfig holds Stripe payment integration credentials and the
// per-tier/interval price identifiers.
type BillingConfig struct {
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	// Price IDs per (tier, interval) pair. Checkout for a pair with an
	// empty price fails with internal_misconfigured_price.
	PriceProMonth    string `envconfig:"STRIPE_PRICE_PRO_MONTH"`
	PriceProYear     string `envconfig:"STRIPE_PRICE_PRO_YEAR"`
	PriceFamilyMonth string `envconfig:"STRIPE_PRICE_FAMILY_MONTH"`
	PriceFamilyYear  string `envconfig:"STRIPE_PRICE_FAMILY_YEAR"`

	StripeTimeout time.Duration `envconfig:"STRIPE_TIMEOUT" default:"20s"`
}

// PriceID returns the configured price for the tier/interval pair, or ""
// when the pair has no price (free tier, unknown interval, unset env).
func (b BillingConfig) PriceID(tier types.PlanTier, interval types.BillingInterval) string {
	switch {
	case tier == types.PlanPro && interval == types.IntervalMonth:
		return b.PriceProMonth
	case tier == types.PlanPro && interval == types.IntervalYear:
		return b.PriceProYear
	case tier == types.PlanFamily && interval == types.IntervalMonth:
		return b.PriceFamilyMonth
	case tier == types.PlanFamily && interval == types.IntervalYear:
		return b.PriceFamilyYear
	default:
		return ""
	}
}

// TierForPrice resolves a provider price ID back to its tier. Used by the
// webhook reconciler when an event carries a price but no tier metadata.
// Returns ("", false) for unknown prices.
func (b BillingConfig) TierForPrice(priceID string) (types.PlanTier, bool) {
	switch priceID {
	case "":
		return "", false
	case b.PriceProMonth, b.PriceProYear:
		return types.PlanPro, true
	case b.PriceFamilyMonth, b.PriceFamilyYear:
		return types.PlanFamily, true
	default:
		return "", false
	}
}

// TelemetryConfig holds CloudWatch metric emission settings.
type TelemetryConfig struct {
	Enabled bool   `envconfig:"TELEMETRY_ENABLED" default:"false"`
	Region  string `envconfig:"AWS_REGION" default:"us-east-1"`
}
