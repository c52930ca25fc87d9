package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DefaultGame != "liars" {
		t.Errorf("expected default game liars, got %q", cfg.DefaultGame)
	}
	if cfg.ChatRateLimit != 20 || cfg.ChatRateWindow != 10 {
		t.Errorf("unexpected chat rate defaults: %d/%ds", cfg.ChatRateLimit, cfg.ChatRateWindow)
	}
	if cfg.ConnRateLimit != 10 {
		t.Errorf("expected conn rate limit 10, got %d", cfg.ConnRateLimit)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("DEFAULT_GAME", "guess")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("expected port 9191, got %d", cfg.Port)
	}
	if cfg.DefaultGame != "guess" {
		t.Errorf("expected game guess, got %q", cfg.DefaultGame)
	}
}

func TestLoad_RejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
