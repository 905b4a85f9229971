// Package config defines the global configuration structure for Questward.
// Configuration is loaded once at process startup and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes startup to fail fast.
package config

import (
	"fmt"
	"strings"
	"time"

	"questward/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for Questward. It is populated
// once during process initialization and never modified. Sub-components
// receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"questward"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Upstream  UpstreamConfig
	Bot       BotConfig
	Scheduler SchedulerConfig
	Runner    RunnerConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds the operational HTTP server settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// UpstreamConfig holds the provider API base URL and the redundant gateway
// fleet. GatewayEndpoints maps gateway name to its base URL, e.g.
// "alpha:https://gw-a.example.com,beta:https://gw-b.example.com". An empty
// map means every run executes on the direct connection alone.
type UpstreamConfig struct {
	BaseURL          string        `envconfig:"UPSTREAM_BASE_URL" validate:"required,url"`
	GatewayEndpoints GatewayMap    `envconfig:"GATEWAY_ENDPOINTS"`
	UserAgent        string        `envconfig:"UPSTREAM_USER_AGENT" default:"Questward/1.0"`
	RequestTimeout   time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"15s"`
	ProbeTimeout     time.Duration `envconfig:"GATEWAY_PROBE_TIMEOUT" default:"5s"`
}

// GatewayMap maps gateway names to base URLs. envconfig's built-in map parsing
// splits items on every colon, which would tear apart the URL scheme, so the
// type carries its own decoder that splits each pair on the first colon only.
type GatewayMap map[string]string

// Decode implements envconfig.Decoder for the "name:url,name:url" form.
func (m *GatewayMap) Decode(value string) error {
	parsed := GatewayMap{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, endpoint, ok := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		endpoint = strings.TrimSpace(endpoint)
		if !ok || name == "" || endpoint == "" {
			return fmt.Errorf("invalid gateway entry %q, want name:url", pair)
		}
		parsed[name] = endpoint
	}
	*m = parsed
	return nil
}

// BotConfig holds the chat bot delivery channel credentials.
type BotConfig struct {
	APIURL string       `envconfig:"BOT_API_URL" validate:"required,url"`
	Token  SecretString `envconfig:"BOT_TOKEN" validate:"required"`
}

// SchedulerConfig holds the cron expressions that fire each job family.
// Defaults line up with the provider's daily reset at 04:00 UTC.
type SchedulerConfig struct {
	CheckInSpec      string `envconfig:"CRON_CHECK_IN" default:"10 4 * * *"`
	RedeemPointsSpec string `envconfig:"CRON_REDEEM_POINTS" default:"30 4 * * *"`
	RedeemCodesSpec  string `envconfig:"CRON_REDEEM_CODES" default:"0 */6 * * *"`
	RuleTickSpec     string `envconfig:"CRON_RULE_TICK" default:"*/10 * * * *"`
}

// RunnerConfig holds worker pool tuning shared by all task runs.
type RunnerConfig struct {
	FailureCeiling int           `envconfig:"RUNNER_FAILURE_CEILING" default:"10" validate:"min=1"`
	ItemDelay      time.Duration `envconfig:"RUNNER_ITEM_DELAY" default:"3s"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
