package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("SHOP_PASSWORD", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ShopPassword != "" {
		t.Fatalf("expected empty SHOP_PASSWORD when unset, got %q", cfg.ShopPassword)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_FILE", "SHOP_TIMEZONE", "BOOKING_DEDUPE_SECONDS", "ACCESS_TOKEN_TTL_MINUTES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.DataFile != "db.json" || cfg.InMemory() {
		t.Fatalf("expected db.json file store, got %q", cfg.DataFile)
	}
	if cfg.ShopTimezone != "Asia/Bahrain" {
		t.Fatalf("unexpected timezone %q", cfg.ShopTimezone)
	}
	if cfg.BookingDedupeSeconds != 60 || cfg.AccessTokenTTLMinutes != 720 {
		t.Fatalf("unexpected numeric defaults %+v", cfg)
	}
}

func TestLoadRejectsNonPositiveNumbers(t *testing.T) {
	t.Setenv("EXPIRY_SWEEP_SECONDS", "-5")
	t.Setenv("CALENDAR_TIMEOUT_SECONDS", "soon")
	t.Setenv("DATA_FILE", ":memory:")

	cfg := Load()
	if cfg.ExpirySweepSeconds != 60 {
		t.Fatalf("expected fallback sweep interval, got %d", cfg.ExpirySweepSeconds)
	}
	if cfg.CalendarTimeoutSeconds != 5 {
		t.Fatalf("expected fallback calendar timeout, got %d", cfg.CalendarTimeoutSeconds)
	}
	if !cfg.InMemory() {
		t.Fatalf("expected in-memory store")
	}
}
