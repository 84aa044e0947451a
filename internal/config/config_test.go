package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/merchkit/dpm-relay/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"AUTHNET_LOGIN_ID":        "login123",
		"AUTHNET_TRANSACTION_KEY": "txnkey456",
		"AUTHNET_MD5_HASH":        "sharedsecret",
		"APP_URL":                 "https://shop.example.com/",
		"REDIS_URL":               "redis://localhost:6379/0",
		"PORT":                    "",
		"RELAY_PATH":              "",
		"THANK_YOU_PATH":          "",
		"SESSION_TTL":             "",
		"RATE_LIMIT_MAX":          "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "https://shop.example.com", cfg.AppURL)
	require.Equal(t, "/authnet/relay-response", cfg.RelayPath)
	require.Equal(t, "/thank-you", cfg.ThankYouPath)
	require.Equal(t, "sid", cfg.SessionCookie)
	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
	require.Equal(t, 60, cfg.RateLimitMax)
}

func TestLoadRequiresGatewayCredentials(t *testing.T) {
	for _, key := range []string{
		"AUTHNET_LOGIN_ID",
		"AUTHNET_TRANSACTION_KEY",
		"AUTHNET_MD5_HASH",
		"APP_URL",
		"REDIS_URL",
	} {
		t.Run(key, func(t *testing.T) {
			env := baseEnv()
			env[key] = ""
			_, err := config.LoadForTests(env)
			require.Error(t, err)
			require.Contains(t, err.Error(), key)
		})
	}
}

func TestAbsoluteURL(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "https://shop.example.com/authnet/relay-response", cfg.AbsoluteURL("/authnet/relay-response"))
	require.Equal(t, "https://other.example.com/relay", cfg.AbsoluteURL("https://other.example.com/relay"))
}
