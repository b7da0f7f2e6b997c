package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("fails without a token secret", func(t *testing.T) {
		t.Setenv("TOKEN_SECRET", "")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("applies defaults around the secret", func(t *testing.T) {
		t.Setenv("TOKEN_SECRET", "s3cret")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "8080", cfg.ServerPort)
		require.Equal(t, 15*time.Minute, cfg.TokenTTL)
		require.Equal(t, 10*time.Minute, cfg.OTPTTL)
		require.Equal(t, time.Duration(0), cfg.TokenLeeway)
		require.Equal(t, []string{"*"}, cfg.CORSOrigins)
	})

	t.Run("parses durations and csv origins", func(t *testing.T) {
		t.Setenv("TOKEN_SECRET", "s3cret")
		t.Setenv("TOKEN_TTL", "1h")
		t.Setenv("OTP_TTL", "5m")
		t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, time.Hour, cfg.TokenTTL)
		require.Equal(t, 5*time.Minute, cfg.OTPTTL)
		require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	})

	t.Run("requires a from address when smtp is enabled", func(t *testing.T) {
		t.Setenv("TOKEN_SECRET", "s3cret")
		t.Setenv("SMTP_HOST", "smtp.example.com")
		t.Setenv("SMTP_FROM", "")

		_, err := Load()
		require.Error(t, err)
	})
}
