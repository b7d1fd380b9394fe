package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Auth.TokenURL != "https://oauth2.googleapis.com/token" {
		t.Errorf("token url = %q", cfg.Auth.TokenURL)
	}
	if cfg.Auth.ExpiryBuffer != 5*time.Minute {
		t.Errorf("expiry buffer = %v", cfg.Auth.ExpiryBuffer)
	}
	if cfg.Sync.PageCap != 50 {
		t.Errorf("page cap = %d", cfg.Sync.PageCap)
	}
	if cfg.Sync.WindowPastDays != 7 || cfg.Sync.WindowFutureDays != 30 {
		t.Errorf("window = %d/%d", cfg.Sync.WindowPastDays, cfg.Sync.WindowFutureDays)
	}
	if cfg.Profile.UserID != "me" {
		t.Errorf("user id = %q", cfg.Profile.UserID)
	}
	if cfg.Companion.Model != "claude-haiku-4-5" {
		t.Errorf("model = %q", cfg.Companion.Model)
	}
	if cfg.Dashboard.Port != 8787 {
		t.Errorf("port = %d", cfg.Dashboard.Port)
	}
}

func TestLoadFromFileOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
data_dir: /tmp/elsewhere
sync:
  page_cap: 10
  schedule: "@every 1m"
profile:
  user_id: casey
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.DataDir != "/tmp/elsewhere" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.Sync.PageCap != 10 {
		t.Errorf("page cap = %d", cfg.Sync.PageCap)
	}
	if cfg.Sync.Schedule != "@every 1m" {
		t.Errorf("schedule = %q", cfg.Sync.Schedule)
	}
	if cfg.Profile.UserID != "casey" {
		t.Errorf("user id = %q", cfg.Profile.UserID)
	}
	// Untouched keys keep their defaults.
	if cfg.Tasks.BaseURL != "https://tasks.googleapis.com/tasks/v1" {
		t.Errorf("tasks base url = %q", cfg.Tasks.BaseURL)
	}
}

func TestLoadFromRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	content := "sync:\n  page_cap: 0\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFrom(dir); err == nil {
		t.Error("expected page_cap validation error")
	}
}

func TestLoadFromRejectsGarbageFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFrom(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("OUTKU_DASHBOARD_PORT", "9999")
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Dashboard.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Dashboard.Port)
	}
}
