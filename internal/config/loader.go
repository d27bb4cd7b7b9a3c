package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: UNIFIED_ADAPTER_SERVER_HTTP_ADDR.
const EnvPrefix = "UNIFIED_ADAPTER"

const configName = "unified-adapter"

// legacyEnv maps config keys to the environment names used by earlier
// deployments. The prefixed name always wins.
var legacyEnv = map[string][]string{
	"server.service_name":          {"SERVICE_NAME"},
	"server.transport":             {"ADAPTER_TRANSPORT"},
	"server.log_level":             {"ADAPTER_LOG_LEVEL"},
	"auth.token":                   {"ADAPTER_AUTH_TOKEN"},
	"auth.clerk.jwks_url":          {"CLERK_JWKS_URL"},
	"auth.clerk.issuer":            {"CLERK_ISSUER"},
	"auth.clerk.audience":          {"CLERK_AUDIENCE"},
	"upstream.base_url":            {"AUTOMATOS_API_BASE_URL"},
	"upstream.api_key":             {"AUTOMATOS_API_KEY"},
	"upstream.timeout":             {"AUTOMATOS_API_TIMEOUT_SECONDS"},
	"upstream.verify_ssl":          {"AUTOMATOS_API_VERIFY_SSL"},
	"database.dsn":                 {"ADAPTER_DATABASE_URL"},
	"execution.max_concurrency":    {"ADAPTER_MAX_CONCURRENCY"},
	"registry.tool_cache_ttl":      {"ADAPTER_TOOL_CACHE_SECONDS"},
	"registry.openapi_cache_ttl":   {"ADAPTER_OPENAPI_CACHE_SECONDS"},
	"registry.tool_allowlist":      {"ADAPTER_TOOL_ALLOWLIST"},
	"registry.operation_allowlist": {"ADAPTER_OPERATION_ALLOWLIST"},
	"cache.redis_addr":             {"REDIS_ADDR"},
	"import.seed_path":             {"AUTOMATOS_MCP_SEED_PATH"},
}

// boundKeys lists every key that can be overridden from the environment.
var boundKeys = []string{
	"server.http_addr",
	"server.transport",
	"server.log_level",
	"server.service_name",
	"server.instructions",
	"server.shutdown_timeout",
	"auth.token",
	"auth.token_hash",
	"auth.clerk.jwks_url",
	"auth.clerk.issuer",
	"auth.clerk.audience",
	"auth.clerk.jwks_cache_ttl",
	"upstream.base_url",
	"upstream.api_key",
	"upstream.timeout",
	"upstream.verify_ssl",
	"upstream.service_name",
	"database.driver",
	"database.dsn",
	"execution.max_concurrency",
	"execution.rest_retries",
	"execution.message_retries",
	"execution.request_timeout",
	"registry.tool_cache_ttl",
	"registry.openapi_cache_ttl",
	"registry.tool_allowlist",
	"registry.operation_allowlist",
	"cache.redis_addr",
	"cache.redis_password",
	"cache.redis_db",
	"cache.key_prefix",
	"admin.enabled",
	"admin.rate_limit_per_minute",
	"import.seed_path",
	"import.credential_mode",
	"telemetry.tracing",
	"dev_mode",
}

// InitViper initializes Viper with the configuration file and environment
// variables. A .env file in the working directory is loaded first; it
// never overrides variables already set in the process environment.
// If configFile is empty, unified-adapter.yaml/.yml is searched for in
// standard locations.
func InitViper(configFile string) {
	_ = godotenv.Load()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig will return ConfigFileNotFoundError, which callers
		// treat as "environment only".
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a config file with an
// explicit YAML extension, so a binary of the same name never matches.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, "."+configName),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, configName))
		}
	} else {
		paths = append(paths, "/etc/"+configName)
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first unified-adapter.yaml or .yml
// found in paths, or "".
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds each key to its prefixed name followed by any
// legacy names.
func bindNestedEnvKeys() {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	for _, key := range boundKeys {
		names := []string{EnvPrefix + "_" + strings.ToUpper(replacer.Replace(key))}
		names = append(names, legacyEnv[key]...)
		_ = viper.BindEnv(append([]string{key}, names...)...)
	}
}

// applyLegacyListen maps ADAPTER_HOST / ADAPTER_PORT onto server.http_addr
// when the address is not set explicitly.
func applyLegacyListen(cfg *Config) {
	if viper.IsSet("server.http_addr") {
		return
	}
	host, port := os.Getenv("ADAPTER_HOST"), os.Getenv("ADAPTER_PORT")
	if host == "" && port == "" {
		return
	}
	if host == "" {
		host = "0.0.0.0"
	}
	if port == "" {
		port = "8000"
	}
	cfg.Server.HTTPAddr = net.JoinHostPort(host, port)
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults and validates.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// does NOT apply dev defaults or validate. Use this when CLI flags may
// override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyLegacyListen(&cfg)
	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or ""
// when running from environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
