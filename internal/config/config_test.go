package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_USER", "nurox")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_NAME", "nurox")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL != 24*time.Hour || cfg.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected ttls %v %v", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if cfg.Port != "8080" || cfg.DBPort != "3306" || cfg.BcryptCost != 10 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.AuditEnabled || cfg.AuditLogSize != 1000 {
		t.Fatal("audit defaults not applied")
	}
}

func TestLoadReportsAllMissing(t *testing.T) {
	for _, k := range []string{"DB_USER", "DB_HOST", "DB_NAME", "JWT_SECRET"} {
		t.Setenv(k, "")
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, k := range []string{"DB_USER", "DB_HOST", "DB_NAME", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), k) {
			t.Errorf("error does not mention %s: %v", k, err)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("REFRESH_TOKEN_TTL", "48h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,,")
	t.Setenv("AUDIT_ENABLED", "off")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTTL != 15*time.Minute || cfg.RefreshTTL != 48*time.Hour {
		t.Fatalf("unexpected ttls %v %v", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.AuditEnabled {
		t.Fatal("AUDIT_ENABLED=off ignored")
	}
	if cfg.Redis.Addr != "cache:6380" {
		t.Fatalf("Redis.Addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL", "soon")
	t.Setenv("BCRYPT_COST", "99")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "ACCESS_TOKEN_TTL") || !strings.Contains(err.Error(), "BCRYPT_COST") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRefreshMustOutliveAccess(t *testing.T) {
	setRequired(t)
	t.Setenv("ACCESS_TOKEN_TTL", "48h")
	t.Setenv("REFRESH_TOKEN_TTL", "24h")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "200ms")
	t.Setenv("RATE_LIMIT_TTL", "1ms")
	cfg := LoadRateLimitConfig()
	if cfg.Capacity != 5 || cfg.RefillInterval != 200*time.Millisecond {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.TTL != time.Second {
		t.Fatalf("TTL not raised to 5 intervals: %v", cfg.TTL)
	}
	if cfg.PerSecond() != 5 {
		t.Fatalf("PerSecond = %v", cfg.PerSecond())
	}
}
