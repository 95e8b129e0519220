package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("BROKER", "memory")
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8081" {
		t.Errorf("Port = %q, want 8081", cfg.Port)
	}
	if cfg.JWTSecret == "" {
		t.Error("development config should fall back to a dev secret")
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want 24h", cfg.TokenTTL)
	}
	if cfg.SendBuffer != 256 || cfg.HistoryLimit != 50 {
		t.Errorf("SendBuffer=%d HistoryLimit=%d", cfg.SendBuffer, cfg.HistoryLimit)
	}
}

func TestLoadConfigRejectsUnknownBroker(t *testing.T) {
	t.Setenv("BROKER", "kafka")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown broker")
	}
}

func TestLoadConfigRequiresSecretInProduction(t *testing.T) {
	t.Setenv("BROKER", "redis")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing JWT_SECRET in production")
	}
}

func TestGetEnvIntFallsBack(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	if got := GetEnvInt("SOME_INT", 7); got != 7 {
		t.Errorf("GetEnvInt = %d, want 7", got)
	}
	t.Setenv("SOME_INT", "12")
	if got := GetEnvInt("SOME_INT", 7); got != 12 {
		t.Errorf("GetEnvInt = %d, want 12", got)
	}
}
