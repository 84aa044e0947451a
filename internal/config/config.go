package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	// Gateway merchant credentials. All three are mandatory.
	LoginID        string // AUTHNET_LOGIN_ID
	TransactionKey string // AUTHNET_TRANSACTION_KEY, keys the fingerprint HMAC
	HashSecret     string // AUTHNET_MD5_HASH, shared secret for relay validation

	// AppURL is the externally reachable base URL, e.g. https://shop.example.com.
	// Relative relay/thank-you paths are resolved against it.
	AppURL          string
	FingerprintPath string
	NoChargePath    string
	RelayPath       string
	ThankYouPath    string

	RedisURL         string
	SessionCookie    string
	SessionTTL       time.Duration
	SessionKeyPrefix string

	CORSAllowedOrigins []string
	RateLimitWindow    time.Duration
	RateLimitMax       int
	BodyLimitBytes     int64
	StaticDir          string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		LoginID:            strings.TrimSpace(k.String("AUTHNET_LOGIN_ID")),
		TransactionKey:     strings.TrimSpace(k.String("AUTHNET_TRANSACTION_KEY")),
		HashSecret:         strings.TrimSpace(k.String("AUTHNET_MD5_HASH")),
		AppURL:             strings.TrimRight(strings.TrimSpace(k.String("APP_URL")), "/"),
		FingerprintPath:    valueOrDefault(k.String("FINGERPRINT_PATH"), "/authnet/fingerprint"),
		NoChargePath:       valueOrDefault(k.String("NOCHARGE_PATH"), "/authnet/nocharge"),
		RelayPath:          valueOrDefault(k.String("RELAY_PATH"), "/authnet/relay-response"),
		ThankYouPath:       valueOrDefault(k.String("THANK_YOU_PATH"), "/thank-you"),
		RedisURL:           k.String("REDIS_URL"),
		SessionCookie:      valueOrDefault(k.String("SESSION_COOKIE"), "sid"),
		SessionTTL:         parseDuration(k.String("SESSION_TTL"), "24h"),
		SessionKeyPrefix:   valueOrDefault(k.String("SESSION_KEY_PREFIX"), "sess:"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:       parseInt(k.String("RATE_LIMIT_MAX"), 60),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64<<10)),
		StaticDir:          valueOrDefault(k.String("STATIC_DIR"), "web/static"),
	}

	// Missing credentials must stop the process before it serves a single
	// request; a fingerprint signed with an empty key is worse than no server.
	if cfg.LoginID == "" {
		return nil, errors.New("AUTHNET_LOGIN_ID is required")
	}
	if cfg.TransactionKey == "" {
		return nil, errors.New("AUTHNET_TRANSACTION_KEY is required")
	}
	if cfg.HashSecret == "" {
		return nil, errors.New("AUTHNET_MD5_HASH is required")
	}
	if cfg.AppURL == "" {
		return nil, errors.New("APP_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// AbsoluteURL resolves a configured path against AppURL. Paths that already
// carry a scheme are returned unchanged, matching how the gateway expects the
// relay URL to be spelled.
func (c *Config) AbsoluteURL(path string) string {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(strings.ToLower(trimmed), "http") {
		return trimmed
	}
	return c.AppURL + trimmed
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
