package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
  host: "127.0.0.1"
storage:
  dir: "/var/lib/learnsmart"
notify:
  snapshot_interval: 5000000000 # nanoseconds
auth:
  token: "sekrit"
  allowed_origins:
    - "https://app.learnsmart.example"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Storage.Dir != "/var/lib/learnsmart" {
		t.Errorf("Storage.Dir = %q, want /var/lib/learnsmart", cfg.Storage.Dir)
	}
	if cfg.Notify.SnapshotInterval != 5*time.Second {
		t.Errorf("Notify.SnapshotInterval = %v, want 5s", cfg.Notify.SnapshotInterval)
	}
	if cfg.Auth.Token != "sekrit" {
		t.Errorf("Auth.Token = %q, want sekrit", cfg.Auth.Token)
	}
	if len(cfg.Auth.AllowedOrigins) != 1 || cfg.Auth.AllowedOrigins[0] != "https://app.learnsmart.example" {
		t.Errorf("Auth.AllowedOrigins = %v, want [https://app.learnsmart.example]", cfg.Auth.AllowedOrigins)
	}
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 3000
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Notify.SnapshotInterval != 15*time.Second {
		t.Errorf("Notify.SnapshotInterval = %v, want default 15s", cfg.Notify.SnapshotInterval)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load() on missing file should fall back to defaults, got error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Auth.Token != "" {
		t.Errorf("Auth.Token = %q, want empty default", cfg.Auth.Token)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}
