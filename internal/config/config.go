// Package config loads application configuration from environment
// variables, following the plain env-var convention the rest of this
// codebase uses (no config file, no remote config service).
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pierre-platform/security-core/internal/storage"
)

// ProviderConfig is the platform-wide registration for one fitness
// provider (spec.md §6 "Provider endpoints").
type ProviderConfig struct {
	Name              string
	AuthorizeURL      string
	TokenURL          string
	DeauthorizeURL    string
	DefaultClientID   string
	DefaultSecret     string
	RateLimitPerDay   int64
}

// TierLimits is one row of the rate-limit matrix in spec.md §4.6.
type TierLimits struct {
	MonthlyLimit int64 // 0 means unbounded
	Burst        int
}

// Config holds all application configuration.
type Config struct {
	Env         string
	DatabaseURL string
	RedisURL    string // optional; empty disables the distributed counter backend

	MasterKeyHex string // 64 hex chars = 32 bytes, the C1 master key
	JWTPrivateKeyPEM string

	AllowPublicRegistration           bool
	AllowPlatformFallbackCredentials  bool // spec.md §9 Open Question #1
	UseRedisRateCounter               bool

	DefaultAppURL string

	SentryDSN string

	Providers map[string]ProviderConfig

	TierLimits map[string]TierLimits

	SafetyMargin time.Duration // spec.md §4.4 step 2, "now + safety_margin < expires_at"

	SMTP SMTPConfig

	AllowedOrigins []string // browser origins the CORS middleware reflects
}

// SMTPConfig is the platform's single outbound mail relay. Unlike the
// teacher, which looks up per-tenant SMTP credentials from
// tenants.mail_config, Pierre sends all mail (password resets,
// invitations) from one platform address, so this is loaded once at
// startup rather than per tenant.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	TLSMode  string // "starttls" or "tls"
}

// Load reads configuration from environment variables.
func Load() Config {
	cfg := Config{
		Env:                              getEnv("APP_ENV", "development"),
		DatabaseURL:                      os.Getenv("DATABASE_URL"),
		RedisURL:                         os.Getenv("REDIS_URL"),
		MasterKeyHex:                     os.Getenv("VAULT_MASTER_KEY"),
		JWTPrivateKeyPEM:                 os.Getenv("JWT_PRIVATE_KEY"),
		AllowPublicRegistration:          getEnvAsBool("ALLOW_PUBLIC_REGISTRATION", false),
		AllowPlatformFallbackCredentials: getEnvAsBool("ALLOW_PLATFORM_FALLBACK_CREDENTIALS", false),
		UseRedisRateCounter:              getEnvAsBool("USE_REDIS_RATE_COUNTER", false),
		DefaultAppURL:                    getEnv("DEFAULT_APP_URL", "https://app.pierre.example"),
		SentryDSN:                        os.Getenv("SENTRY_DSN"),
		SafetyMargin:                     getEnvAsDuration("TOKEN_SAFETY_MARGIN", 2*time.Minute),
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "Pierre <noreply@pierre.example>"),
			TLSMode:  getEnv("SMTP_TLS_MODE", "starttls"),
		},
	}

	cfg.AllowedOrigins = loadAllowedOrigins()
	cfg.Providers = loadProviders()
	cfg.TierLimits = map[string]TierLimits{
		"starter":      {MonthlyLimit: 10_000, Burst: getEnvAsInt("RATE_BURST_STARTER", 20)},
		"professional": {MonthlyLimit: 100_000, Burst: getEnvAsInt("RATE_BURST_PROFESSIONAL", 60)},
		"enterprise":   {MonthlyLimit: 0, Burst: getEnvAsInt("RATE_BURST_ENTERPRISE", 200)},
	}

	return cfg
}

// loadProviders reads PROVIDER_<NAME>_{AUTHORIZE_URL,TOKEN_URL,DEAUTHORIZE_URL,
// CLIENT_ID,CLIENT_SECRET,RATE_LIMIT_PER_DAY} for every name listed in
// PROVIDER_NAMES (comma separated). This is the platform-wide fallback
// credential source spec.md §4.4 step 3 refers to.
func loadProviders() map[string]ProviderConfig {
	names := os.Getenv("PROVIDER_NAMES")
	out := map[string]ProviderConfig{}
	if names == "" {
		return out
	}
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		prefix := "PROVIDER_" + strings.ToUpper(name) + "_"
		out[name] = ProviderConfig{
			Name:            name,
			AuthorizeURL:    os.Getenv(prefix + "AUTHORIZE_URL"),
			TokenURL:        os.Getenv(prefix + "TOKEN_URL"),
			DeauthorizeURL:  os.Getenv(prefix + "DEAUTHORIZE_URL"),
			DefaultClientID: os.Getenv(prefix + "CLIENT_ID"),
			DefaultSecret:   os.Getenv(prefix + "CLIENT_SECRET"),
			RateLimitPerDay: int64(getEnvAsInt(prefix+"RATE_LIMIT_PER_DAY", 10_000)),
		}
	}
	return out
}

// loadAllowedOrigins reads CORS_ALLOWED_ORIGINS (comma separated) and
// rejects a misconfigured list (wildcard, non-HTTPS) at startup rather
// than letting the CORS middleware reflect an insecure origin later.
func loadAllowedOrigins() []string {
	raw := os.Getenv("CORS_ALLOWED_ORIGINS")
	if raw == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	if err := storage.ValidateCORSOrigins(out); err != nil {
		log.Fatalf("config: CORS_ALLOWED_ORIGINS invalid: %v", err)
	}
	return out
}

func getEnv(name, defaultVal string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
