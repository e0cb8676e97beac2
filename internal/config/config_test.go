package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WithDefaults(t *testing.T) {
	// Load config without a config file (use defaults)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Server.Port != 8095 {
		t.Errorf("Server.Port = %d, want 8095", cfg.Server.Port)
	}

	if cfg.Queue.URL != "nats://localhost:4222" {
		t.Errorf("Queue.URL = %q, want %q", cfg.Queue.URL, "nats://localhost:4222")
	}

	if cfg.Queue.Stream != "BATCH_JOBS" {
		t.Errorf("Queue.Stream = %q, want %q", cfg.Queue.Stream, "BATCH_JOBS")
	}

	if cfg.Queue.VisibilityTimeout != 30*time.Second {
		t.Errorf("Queue.VisibilityTimeout = %v, want 30s", cfg.Queue.VisibilityTimeout)
	}

	if cfg.Queue.PollInterval != 60*time.Second {
		t.Errorf("Queue.PollInterval = %v, want 60s", cfg.Queue.PollInterval)
	}

	if cfg.Storage.InputKeyPrefix != "input/" {
		t.Errorf("Storage.InputKeyPrefix = %q, want %q", cfg.Storage.InputKeyPrefix, "input/")
	}

	if cfg.Storage.ResultRetention != 168*time.Hour {
		t.Errorf("Storage.ResultRetention = %v, want 168h", cfg.Storage.ResultRetention)
	}

	if !cfg.Ingestion.RateLimitEnabled {
		t.Error("Ingestion.RateLimitEnabled should be true by default")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9999
  url_root: https://comets.example.org
queue:
  visibility_timeout: 45s
storage:
  bucket: comets-test
email:
  sender: sender@example.org
  admin: admin@example.org
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.URLRoot != "https://comets.example.org" {
		t.Errorf("Server.URLRoot = %q", cfg.Server.URLRoot)
	}
	if cfg.Queue.VisibilityTimeout != 45*time.Second {
		t.Errorf("Queue.VisibilityTimeout = %v, want 45s", cfg.Queue.VisibilityTimeout)
	}
	if cfg.Storage.Bucket != "comets-test" {
		t.Errorf("Storage.Bucket = %q, want comets-test", cfg.Storage.Bucket)
	}
	if cfg.Email.Admin != "admin@example.org" {
		t.Errorf("Email.Admin = %q", cfg.Email.Admin)
	}

	// Defaults still apply for unset sections
	if cfg.Queue.Consumer != "batch-processor" {
		t.Errorf("Queue.Consumer = %q, want batch-processor", cfg.Queue.Consumer)
	}
}

func TestLoad_RejectsTinyVisibilityTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("queue:\n  visibility_timeout: 1s\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() should reject a visibility timeout under 2s")
	}
}
