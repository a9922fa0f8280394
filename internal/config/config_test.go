package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrom_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
listen:
  address: "0.0.0.0:7428"
  auth_token: "s3cret"
store:
  path: "custom.db"
  workspace_dir: "/var/lib/harborctl"
session:
  max_backlog_bytes: 1048576
  retention_size: 5000
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Listen.Address != "0.0.0.0:7428" {
		t.Errorf("Listen.Address = %q", cfg.Listen.Address)
	}
	if cfg.Listen.AuthToken != "s3cret" {
		t.Errorf("Listen.AuthToken = %q", cfg.Listen.AuthToken)
	}
	if want := filepath.Join("/var/lib/harborctl", "custom.db"); cfg.DBPath() != want {
		t.Errorf("DBPath() = %q, want relative path joined onto workspace_dir %q", cfg.DBPath(), want)
	}
	if cfg.Session.RetentionSize != 5000 {
		t.Errorf("Session.RetentionSize = %d", cfg.Session.RetentionSize)
	}
}

func TestLoadFrom_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Listen.Address != defaultListenAddress {
		t.Errorf("Listen.Address = %q, want default %q", cfg.Listen.Address, defaultListenAddress)
	}
}

func TestDBPath_RelativeJoinsWorkspaceDir(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Path: "harbor.db", WorkspaceDir: "/workspace"}}
	if got, want := cfg.DBPath(), filepath.Join("/workspace", "harbor.db"); got != want {
		t.Errorf("DBPath() = %q, want %q", got, want)
	}
}

func TestValidate_RejectsEmptyListenAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("listen:\n  address: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected validation error for empty listen address")
	}
}
