package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	CORSModeStrict     = "strict"
	CORSModePermissive = "permissive"
)

// APIPrefix is the path every backend prefix must live under.
const APIPrefix = "/api/"

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type HealthCheckConfig struct {
	Timeout string `mapstructure:"timeout"`
	Path    string `mapstructure:"path"`
}

type RetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Delay   string `mapstructure:"delay"`
}

type CircuitBreakerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Threshold int    `mapstructure:"threshold"`
	Cooldown  string `mapstructure:"cooldown"`
}

type ForwardConfig struct {
	Timeout        string               `mapstructure:"timeout"`
	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CORSConfig struct {
	Mode             string   `mapstructure:"mode"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type BackendConfig struct {
	Name      string   `mapstructure:"name"`
	Prefix    string   `mapstructure:"prefix"`
	URL       string   `mapstructure:"url"`
	RewriteTo string   `mapstructure:"rewrite_to"`
	Endpoints []string `mapstructure:"endpoints"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Forward     ForwardConfig     `mapstructure:"forward"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Backends    []BackendConfig   `mapstructure:"backends"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// HealthCheckTimeout returns the parsed per-probe timeout.
func (c *Config) HealthCheckTimeout() time.Duration {
	return mustDuration(c.HealthCheck.Timeout)
}

// ForwardTimeout returns the parsed per-request forwarding timeout.
func (c *Config) ForwardTimeout() time.Duration {
	return mustDuration(c.Forward.Timeout)
}

// RetryDelay returns the parsed delay before the single forwarding retry.
func (c *Config) RetryDelay() time.Duration {
	return mustDuration(c.Forward.Retry.Delay)
}

// BreakerCooldown returns how long an open circuit refuses requests.
func (c *Config) BreakerCooldown() time.Duration {
	return mustDuration(c.Forward.CircuitBreaker.Cooldown)
}

// Port returns the port part of the listen address.
func (c *Config) Port() string {
	_, port, err := net.SplitHostPort(c.Server.Address)
	if err != nil {
		return ""
	}
	return port
}

// Load reads config.yaml from ./config or the working directory (or the
// given paths), applies environment overrides and validates the result.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":3000")
	v.SetDefault("health_check.timeout", "3s")
	v.SetDefault("health_check.path", "/health")
	v.SetDefault("forward.timeout", "10s")
	v.SetDefault("forward.retry.enabled", false)
	v.SetDefault("forward.retry.delay", "100ms")
	v.SetDefault("forward.circuit_breaker.enabled", false)
	v.SetDefault("forward.circuit_breaker.threshold", 5)
	v.SetDefault("forward.circuit_breaker.cooldown", "30s")
	v.SetDefault("cors.mode", CORSModeStrict)
	v.SetDefault("cors.allowed_origins", []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://localhost:4173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"})
	v.SetDefault("cors.exposed_headers", []string{"X-Request-ID"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("metrics.buffer_size", 1000)
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("backends", []map[string]any{
		{
			"name":      "AUTH",
			"prefix":    "/api/auth",
			"url":       "http://localhost:3001",
			"endpoints": []string{"POST /api/auth/login", "POST /api/auth/register", "GET /api/auth/verify"},
		},
		{
			"name":      "EHR",
			"prefix":    "/api/ehr",
			"url":       "http://localhost:3002",
			"endpoints": []string{"GET /api/ehr/patients", "POST /api/ehr/patients", "GET /api/ehr/appointments"},
		},
		{
			"name":      "AI",
			"prefix":    "/api/ai",
			"url":       "http://localhost:3003",
			"endpoints": []string{"POST /api/ai/diagnose", "GET /api/ai/analytics", "GET /api/ai/insights"},
		},
	})
}

// applyEnvOverrides honours the variable names the services are deployed
// with: GATEWAY_PORT and <NAME>_SERVICE_URL.
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("GATEWAY_PORT"); port != "" {
		host, _, err := net.SplitHostPort(cfg.Server.Address)
		if err != nil {
			host = ""
		}
		cfg.Server.Address = net.JoinHostPort(host, port)
	}

	for i := range cfg.Backends {
		key := strings.ToUpper(cfg.Backends[i].Name) + "_SERVICE_URL"
		if u := os.Getenv(key); u != "" {
			cfg.Backends[i].URL = u
		}
	}
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(ValidateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Path,
						validation.Required,
						validation.By(validateAbsPath),
					),
				)
			}),
		),
		validation.Field(&c.Forward,
			validation.Required,
			validation.By(func(value interface{}) error {
				fc, ok := value.(ForwardConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ForwardConfig")
				}
				return validation.ValidateStruct(&fc,
					validation.Field(&fc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&fc.Retry,
						validation.By(func(value interface{}) error {
							rc, ok := value.(RetryConfig)
							if !ok {
								return validation.NewError("validation_invalid_type", "must be a RetryConfig")
							}
							return validation.ValidateStruct(&rc,
								validation.Field(&rc.Delay,
									validation.When(rc.Enabled, validation.Required),
									validation.By(validateDuration),
								),
							)
						}),
					),
					validation.Field(&fc.CircuitBreaker,
						validation.By(func(value interface{}) error {
							bc, ok := value.(CircuitBreakerConfig)
							if !ok {
								return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
							}
							return validation.ValidateStruct(&bc,
								validation.Field(&bc.Threshold,
									validation.When(bc.Enabled, validation.Required, validation.Min(1)),
								),
								validation.Field(&bc.Cooldown,
									validation.When(bc.Enabled, validation.Required),
									validation.By(validateDuration),
								),
							)
						}),
					),
				)
			}),
		),
		validation.Field(&c.CORS,
			validation.Required,
			validation.By(func(value interface{}) error {
				cc, ok := value.(CORSConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CORSConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.Mode,
						validation.Required,
						validation.In(CORSModeStrict, CORSModePermissive),
					),
					validation.Field(&cc.AllowedOrigins,
						validation.Each(validation.By(validateOrigin)),
					),
					validation.Field(&cc.AllowedMethods,
						validation.Required,
					),
					validation.Field(&cc.MaxAge,
						validation.Min(0),
					),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateBackendConfig)),
			validation.By(validateUniquePrefixes),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize, validation.Required, validation.Min(1)),
				)
			}),
		),
	)
}

// ValidateHostPort checks a listen address of the form host:port or :port.
func ValidateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if err := is.Port.Validate(port); err != nil {
		return validation.NewError("validation_invalid_port", "invalid port")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if durationStr == "" {
		return nil
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateAbsPath(value interface{}) error {
	p, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if !strings.HasPrefix(p, "/") {
		return validation.NewError("validation_invalid_path", "must start with /")
	}
	return nil
}

func validateOrigin(value interface{}) error {
	origin, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return validation.NewError("validation_invalid_origin", "must be scheme://host[:port]")
	}
	if u.Path != "" || u.RawQuery != "" {
		return validation.NewError("validation_invalid_origin", "origin must not carry a path or query")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "server URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validateBackendConfig(value interface{}) error {
	backend, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	return validation.ValidateStruct(&backend,
		validation.Field(&backend.Name,
			validation.Required,
			is.Alphanumeric,
		),
		validation.Field(&backend.Prefix,
			validation.Required,
			validation.By(validatePrefix),
		),
		validation.Field(&backend.URL,
			validation.By(validateServerURL),
		),
		validation.Field(&backend.RewriteTo,
			validation.When(backend.RewriteTo != "", validation.By(validateAbsPath)),
		),
	)
}

func validatePrefix(value interface{}) error {
	prefix, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if !strings.HasPrefix(prefix, APIPrefix) || len(prefix) == len(APIPrefix) {
		return validation.NewError("validation_invalid_prefix", "prefix must be a segment under /api/")
	}
	if strings.HasSuffix(prefix, "/") {
		return validation.NewError("validation_invalid_prefix", "prefix must not end with /")
	}
	return nil
}

func validateUniquePrefixes(value interface{}) error {
	backends, ok := value.([]BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a []BackendConfig")
	}

	prefixes := make(map[string]bool, len(backends))
	names := make(map[string]bool, len(backends))
	for _, b := range backends {
		if prefixes[b.Prefix] {
			return validation.NewError("validation_duplicate_prefix", "duplicate prefix "+b.Prefix)
		}
		prefixes[b.Prefix] = true

		name := strings.ToUpper(b.Name)
		if names[name] {
			return validation.NewError("validation_duplicate_name", "duplicate backend name "+b.Name)
		}
		names[name] = true
	}
	return nil
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
