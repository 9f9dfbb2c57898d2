package config

import (
	"strings"
	"testing"
)

func baseConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
	}
}

func TestNormalizeRequiresToken(t *testing.T) {
	err := Normalize(&Config{})
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := baseConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run_mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
	if cfg.Storage.Driver != DriverFile || cfg.Storage.FilePath != "user_data.json" {
		t.Fatalf("storage defaults = %q %q", cfg.Storage.Driver, cfg.Storage.FilePath)
	}
	if cfg.Catalog.Binary != "yt-dlp" {
		t.Fatalf("binary = %q", cfg.Catalog.Binary)
	}
	if cfg.Catalog.SearchLimit != 10 {
		t.Fatalf("search_limit = %d", cfg.Catalog.SearchLimit)
	}
	if cfg.Catalog.SearchTimeoutSeconds != 60 || cfg.Catalog.FetchTimeoutSeconds != 180 {
		t.Fatalf("timeouts = %d %d", cfg.Catalog.SearchTimeoutSeconds, cfg.Catalog.FetchTimeoutSeconds)
	}
	if cfg.Download.QueueSize != 64 || cfg.Download.Workers != 2 {
		t.Fatalf("download defaults = %d %d", cfg.Download.QueueSize, cfg.Download.Workers)
	}
}

func TestNormalizeWebhookRequiresURL(t *testing.T) {
	cfg := baseConfig()
	cfg.Telegram.RunMode = RunModeWebhook
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected webhook.url error")
	}

	cfg.Webhook = WebhookConfig{URL: "https://bot.example.com", Listen: "0.0.0.0", Port: 8443}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize webhook: %v", err)
	}
}

func TestNormalizePollingAlias(t *testing.T) {
	cfg := baseConfig()
	cfg.Telegram.RunMode = "Polling"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run_mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
}

func TestNormalizeRejectsUnknownDriver(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.Driver = "redis"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected driver error")
	}
}

func TestNormalizePostgresRequiresHost(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.Driver = DriverPostgres
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected database.host error")
	}
	cfg.Storage.Database.Host = "localhost"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize postgres: %v", err)
	}
}

func TestNormalizeRejectsUnknownExclusion(t *testing.T) {
	cfg := baseConfig()
	cfg.RateLimit.ExcludeUpdates = []string{"Callback", "poll"}
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected exclude_updates error")
	}
	cfg.RateLimit.ExcludeUpdates = []string{"Callback", " message "}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize exclusions: %v", err)
	}
	if cfg.RateLimit.ExcludeUpdates[0] != UpdateCallback || cfg.RateLimit.ExcludeUpdates[1] != UpdateMessage {
		t.Fatalf("exclusions not canonicalized: %v", cfg.RateLimit.ExcludeUpdates)
	}
}

func TestIsAdmin(t *testing.T) {
	tg := TelegramConfig{AdminIDs: []int64{7, 42}}
	if !tg.IsAdmin(42) {
		t.Fatal("42 should be admin")
	}
	if tg.IsAdmin(8) {
		t.Fatal("8 should not be admin")
	}
	if (TelegramConfig{}).IsAdmin(42) {
		t.Fatal("empty allow-list should admit nobody")
	}
}
