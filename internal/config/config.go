// Package config provides configuration types for the unified adapter.
//
// Configuration is read from unified-adapter.yaml, UNIFIED_ADAPTER_*
// environment variables, and the environment names used by earlier
// deployments (AUTOMATOS_API_BASE_URL, ADAPTER_AUTH_TOKEN, ...).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transports accepted by server.transport.
const (
	TransportStreamableHTTP = "streamable-http"
	TransportStdio          = "stdio"
)

// Database drivers accepted by database.driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultInstructions is sent to MCP clients during initialization.
const DefaultInstructions = "Unified Integrations Adapter for Automatos. " +
	"This server aggregates tools from Automatos and proxies to REST or MCP upstreams."

// Config is the top-level configuration.
type Config struct {
	// Server configures the listener and the MCP transport.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Auth configures bearer token authentication.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Upstream configures the central Automatos API.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// Database configures the tool catalog store.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Execution configures concurrency and retries for tool calls.
	Execution ExecutionConfig `yaml:"execution" mapstructure:"execution"`

	// Registry configures tool and document caching and allow-lists.
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`

	// Cache configures the optional shared Redis document cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Admin configures the administrative HTTP API.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Import configures bulk catalog import.
	Import ImportConfig `yaml:"import" mapstructure:"import"`

	// Telemetry configures tracing.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode disables authentication and forces debug logging.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server and MCP transport.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "0.0.0.0:8000".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// Transport selects how the MCP surface is served: "streamable-http"
	// (default) or "stdio". The admin API is only served over HTTP.
	Transport string `yaml:"transport" mapstructure:"transport" validate:"omitempty,oneof=streamable-http stdio"`

	// LogLevel sets the minimum log level. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ServiceName is the MCP server implementation name.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`

	// Instructions is returned to MCP clients on initialize.
	Instructions string `yaml:"instructions" mapstructure:"instructions"`

	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`
}

// AuthConfig configures inbound authentication. A request is accepted if
// its bearer token matches the static token or verifies as a Clerk JWT.
type AuthConfig struct {
	// Token is a static shared secret compared in constant time.
	Token string `yaml:"token" mapstructure:"token"`

	// TokenHash is an argon2id or "sha256:" hash of the shared secret.
	// It takes precedence over Token. Generate with `unified-adapter hash-token`.
	TokenHash string `yaml:"token_hash" mapstructure:"token_hash" validate:"omitempty,token_hash"`

	// Clerk configures JWT verification against a JWKS endpoint.
	Clerk ClerkConfig `yaml:"clerk" mapstructure:"clerk"`
}

// ClerkConfig configures RS256 JWT verification.
type ClerkConfig struct {
	// JWKSURL enables JWT verification when set.
	JWKSURL string `yaml:"jwks_url" mapstructure:"jwks_url" validate:"omitempty,url"`

	// Issuer, when set, must match the iss claim.
	Issuer string `yaml:"issuer" mapstructure:"issuer"`

	// Audience, when set, must be present in the aud claim.
	Audience string `yaml:"audience" mapstructure:"audience"`

	// JWKSCacheTTL is how long a fetched key set is trusted. Defaults to "1h".
	JWKSCacheTTL string `yaml:"jwks_cache_ttl" mapstructure:"jwks_cache_ttl" validate:"omitempty,duration"`
}

// UpstreamConfig configures the central API client.
type UpstreamConfig struct {
	// BaseURL is the API root, e.g. "https://api.automatos.app".
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// APIKey is sent as X-API-Key.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Timeout is the per-request timeout (e.g. "20s"). Plain numbers are seconds.
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	// VerifySSL controls TLS certificate verification. Defaults to true.
	VerifySSL bool `yaml:"verify_ssl" mapstructure:"verify_ssl"`

	// ServiceName is sent with credential resolution requests.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// DatabaseConfig configures the catalog store.
type DatabaseConfig struct {
	// Driver is "memory", "postgres" or "sqlite". When empty it is inferred
	// from the DSN scheme, falling back to "memory".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=memory postgres sqlite"`

	// DSN is the connection string for postgres or sqlite.
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// ExecutionConfig configures tool execution.
type ExecutionConfig struct {
	// MaxConcurrency is the global ceiling on in-flight executions.
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency" validate:"omitempty,min=1"`

	// RESTRetries is the number of retries after the first REST attempt.
	RESTRetries int `yaml:"rest_retries" mapstructure:"rest_retries" validate:"min=0,max=10"`

	// MessageRetries is the number of retries after the first message attempt.
	MessageRetries int `yaml:"message_retries" mapstructure:"message_retries" validate:"min=0,max=10"`

	// RequestTimeout bounds a single upstream attempt (e.g. "30s").
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty,duration"`
}

// RegistryConfig configures the tool registry.
type RegistryConfig struct {
	// ToolCacheTTL is how long a built tool list is served. Defaults to "300s".
	ToolCacheTTL string `yaml:"tool_cache_ttl" mapstructure:"tool_cache_ttl" validate:"omitempty,duration"`

	// OpenAPICacheTTL is how long a fetched document is reused. Defaults to "3600s".
	OpenAPICacheTTL string `yaml:"openapi_cache_ttl" mapstructure:"openapi_cache_ttl" validate:"omitempty,duration"`

	// ToolAllowlist keeps only tools whose composed name or provider is listed.
	ToolAllowlist []string `yaml:"tool_allowlist" mapstructure:"tool_allowlist"`

	// OperationAllowlist is merged into every REST record's operation_ids.
	OperationAllowlist []string `yaml:"operation_allowlist" mapstructure:"operation_allowlist"`
}

// CacheConfig configures the shared Redis document cache.
// The cache is disabled when RedisAddr is empty.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db" validate:"min=0"`
	KeyPrefix     string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Enabled reports whether a Redis address is configured.
func (c CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// AdminConfig configures the administrative API.
type AdminConfig struct {
	// Enabled serves /admin routes. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// RateLimitPerMinute caps admin requests per client IP. 0 disables.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute" validate:"min=0"`
}

// ImportConfig configures `unified-adapter import`.
type ImportConfig struct {
	// SeedPath is a JSON or YAML file of catalog entries used instead of
	// the upstream list endpoint.
	SeedPath string `yaml:"seed_path" mapstructure:"seed_path"`

	// CredentialMode is applied to imported records: "hosted" or "byo".
	CredentialMode string `yaml:"credential_mode" mapstructure:"credential_mode" validate:"omitempty,oneof=hosted byo"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	// Tracing exports spans to stdout when true.
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`
}

// SetDefaults applies default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:8000"
	}
	if c.Server.Transport == "" {
		c.Server.Transport = TransportStreamableHTTP
	}
	c.Server.Transport = normalizeTransport(c.Server.Transport)
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	c.Server.LogLevel = strings.ToLower(c.Server.LogLevel)
	if c.Server.ServiceName == "" {
		c.Server.ServiceName = "automatos-unified-adapter"
	}
	if c.Server.Instructions == "" {
		c.Server.Instructions = DefaultInstructions
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	if c.Auth.Clerk.JWKSCacheTTL == "" {
		c.Auth.Clerk.JWKSCacheTTL = "1h"
	}

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "http://localhost:8000"
	}
	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = "20s"
	}
	// viper.IsSet distinguishes "not set" from "explicitly false".
	if !viper.IsSet("upstream.verify_ssl") {
		c.Upstream.VerifySSL = true
	}
	if c.Upstream.ServiceName == "" {
		c.Upstream.ServiceName = c.Server.ServiceName
	}

	if c.Database.Driver == "" {
		c.Database.Driver = inferDriver(c.Database.DSN)
	}

	if c.Execution.MaxConcurrency == 0 {
		c.Execution.MaxConcurrency = 20
	}
	if !viper.IsSet("execution.rest_retries") {
		c.Execution.RESTRetries = 2
	}
	if !viper.IsSet("execution.message_retries") {
		c.Execution.MessageRetries = 1
	}
	if c.Execution.RequestTimeout == "" {
		c.Execution.RequestTimeout = "30s"
	}

	if c.Registry.ToolCacheTTL == "" {
		c.Registry.ToolCacheTTL = "300s"
	}
	if c.Registry.OpenAPICacheTTL == "" {
		c.Registry.OpenAPICacheTTL = "3600s"
	}
	c.Registry.ToolAllowlist = splitList(c.Registry.ToolAllowlist)
	c.Registry.OperationAllowlist = splitList(c.Registry.OperationAllowlist)

	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "unified-adapter:openapi:"
	}

	if !viper.IsSet("admin.enabled") {
		c.Admin.Enabled = true
	}
	if !viper.IsSet("admin.rate_limit_per_minute") {
		c.Admin.RateLimitPerMinute = 60
	}

	if c.Import.CredentialMode == "" {
		c.Import.CredentialMode = "hosted"
	}
}

// SetDevDefaults applies development overrides. Call after CLI flags
// have been applied and before Validate.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
}

// AuthConfigured reports whether any authentication method is configured.
func (c *Config) AuthConfigured() bool {
	return c.Auth.Token != "" || c.Auth.TokenHash != "" || c.Auth.Clerk.JWKSURL != ""
}

func normalizeTransport(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "http", "streamable-http", "streamablehttp":
		return TransportStreamableHTTP
	case "stdio":
		return TransportStdio
	default:
		return t
	}
}

func inferDriver(dsn string) string {
	switch {
	case dsn == "":
		return DriverMemory
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"),
		strings.HasPrefix(dsn, "host="):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// splitList flattens comma-separated entries and drops blanks, so both
// YAML lists and "a,b" environment values are accepted.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ParseDuration parses a Go duration ("5m", "300s") or a plain number of
// seconds ("300", "0.5").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// MustDuration parses a field that Validate has already checked.
func MustDuration(s string) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: unvalidated duration %q: %v", s, err))
	}
	return d
}
