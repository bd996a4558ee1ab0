package config

import (
	"testing"
	"time"
)

func TestLoadClientDefaults(t *testing.T) {
	t.Setenv("JOURNAL_BACKEND_URL", "https://journal.example.com")
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.BackendURL != "https://journal.example.com" {
		t.Fatalf("ожидали адрес из окружения, получили %s", cfg.BackendURL)
	}
	if cfg.PollAttempts != 10 || cfg.PollInterval != time.Second {
		t.Fatalf("ожидали 10 попыток по 1s, получили %d по %s", cfg.PollAttempts, cfg.PollInterval)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("ожидали TTL 24h, получили %s", cfg.CacheTTL)
	}
}
