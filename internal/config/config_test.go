package config

import (
	"errors"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/stexs")
	t.Setenv("ACCESS_TOKEN_SECRET", "access")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh")
	t.Setenv("SIGN_IN_CONFIRM_TOKEN_SECRET", "confirm")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected config, got %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.AuthorizationCodeTTL() != 5*time.Minute {
		t.Fatalf("expected 5 minute authorization code ttl, got %v", cfg.AuthorizationCodeTTL())
	}
	if cfg.MFAEmailCodeTTL() != 5*time.Minute {
		t.Fatalf("expected 5 minute email code ttl, got %v", cfg.MFAEmailCodeTTL())
	}
	if cfg.TOTPDigits != 6 || cfg.TOTPPeriod != 30 || cfg.TOTPAlgorithm != "SHA256" || cfg.TOTPSkew != 1 {
		t.Fatalf("unexpected totp defaults: %+v", cfg)
	}
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/stexs")
	t.Setenv("ACCESS_TOKEN_SECRET", "access")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for missing sign-in confirm secret")
	}
}

func TestLoadConfig_SharedSecretsRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REFRESH_TOKEN_SECRET", "access")

	_, err := LoadConfig()
	if !errors.Is(err, ErrSharedSigningKey) {
		t.Fatalf("expected ErrSharedSigningKey, got %v", err)
	}
}
