// Package config defines the configuration structure for the dailybrief
// newsletter worker. Configuration is loaded once at process initialization
// (Lambda cold start) and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Any missing required value or invalid format fails the process immediately
// on startup (fail fast).
package config

import (
	"time"

	"dailybrief/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the newsletter worker.
// It is populated once during process initialization and never modified.
// Components receive only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"dailybrief-worker"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Audience      AudienceConfig
	Generation    GenerationConfig
	Email         EmailConfig
	Store         StoreConfig
	Observability ObservabilityConfig
}

// AudienceConfig holds the marketing-contacts list settings.
type AudienceConfig struct {
	ListID   string `envconfig:"SENDGRID_LIST_ID" validate:"required"`
	PageSize int    `envconfig:"AUDIENCE_PAGE_SIZE" default:"1000" validate:"min=1,max=1000"`
	// MaxPages caps pagination in case the provider never stops returning
	// cursors. 50 pages at 1000 contacts each is far beyond any real list.
	MaxPages int `envconfig:"AUDIENCE_MAX_PAGES" default:"50" validate:"min=1"`
}

// GenerationConfig holds the generation provider credentials and sampling
// parameters. Defaults mirror the production newsletter tuning: low
// temperature for deterministic-leaning output and a one-month recency
// filter so content reflects current events.
type GenerationConfig struct {
	APIKey        SecretString  `envconfig:"PERPLEXITY_API_KEY"`
	Model         string        `envconfig:"GENERATION_MODEL" default:"llama-3.1-sonar-large-128k-online"`
	Temperature   float64       `envconfig:"GENERATION_TEMPERATURE" default:"0.2"`
	TopP          float64       `envconfig:"GENERATION_TOP_P" default:"0.9"`
	RecencyFilter string        `envconfig:"GENERATION_RECENCY_FILTER" default:"month"`
	Timeout       time.Duration `envconfig:"GENERATION_TIMEOUT" default:"60s"`
}

// EmailConfig holds the mail provider credentials and sender identity.
// When TemplateID is set, sends are template-bound with a dedicated reply-to
// inbox (replies feed future customizations out-of-band); otherwise messages
// are sent fully inline.
type EmailConfig struct {
	APIKey         SecretString  `envconfig:"SENDGRID_API_KEY"`
	FromAddress    string        `envconfig:"EMAIL_FROM_ADDRESS" default:"mynews@aidaily.me" validate:"required,email"`
	FromName       string        `envconfig:"EMAIL_FROM_NAME" default:"AI Daily"`
	ReplyToAddress string        `envconfig:"EMAIL_REPLY_TO_ADDRESS" default:"replies@aidaily.me" validate:"required,email"`
	TemplateID     string        `envconfig:"EMAIL_TEMPLATE_ID"`
	Timeout        time.Duration `envconfig:"EMAIL_TIMEOUT" default:"10s"`
}

// StoreConfig holds the customization object store settings. Endpoint and
// static credentials are only set when targeting an S3-compatible local
// stack; in production the default AWS credential chain applies.
type StoreConfig struct {
	Bucket    string       `envconfig:"CUSTOMIZATION_BUCKET"`
	Region    string       `envconfig:"AWS_REGION" default:"us-east-1"`
	Endpoint  string       `envconfig:"CUSTOMIZATION_ENDPOINT_URL"`
	AccessKey string       `envconfig:"CUSTOMIZATION_ACCESS_KEY"`
	SecretKey SecretString `envconfig:"CUSTOMIZATION_SECRET_KEY"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"DailyBrief"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// IsLocal reports whether the worker is running in local development mode.
// Local mode substitutes stub providers for any integration whose credentials
// are absent.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}
