// Package config loads harborctl's serve-time configuration: the Stream
// Server's listen address and auth token, the Workspace Store's database
// path, and the background tailers' defaults. Loaded from YAML via
// gopkg.in/yaml.v3 using a fixed config-dir-plus-file-name load path.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is harborctl's top-level serve configuration.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Store   StoreConfig   `yaml:"store"`
	Session SessionConfig `yaml:"session"`
}

// ListenConfig configures the Stream Server's TCP listener.
type ListenConfig struct {
	Address string `yaml:"address"`
	// AuthToken, when set, is required on every connection's auth envelope
	// before any command is dispatched. Required when the server is bound
	// to a non-loopback address.
	AuthToken string `yaml:"auth_token"`
}

// StoreConfig configures the Workspace Store's persisted location.
type StoreConfig struct {
	// Path is the SQLite database file (`<workspaceDir>/harbor.db` default,
	// resolved relative to WorkspaceDir when not absolute).
	Path string `yaml:"path"`
	// WorkspaceDir is the directory legacy-layout migration copies into and
	// where the migration marker file lives.
	WorkspaceDir string `yaml:"workspace_dir"`
}

// SessionConfig configures per-session PTY defaults.
type SessionConfig struct {
	MaxBacklogBytes int `yaml:"max_backlog_bytes"`
	RetentionSize   int `yaml:"retention_size"`
	// NotifyDir is where a session's notify-hook JSONL file is created by
	// default when pty.start omits notifyPath
	// (`os.TempDir()/harborctl-notify-<pid>.jsonl` default).
	NotifyDir string `yaml:"notify_dir"`
}

// defaultListenAddress is loopback-only: binding to anything else requires
// an explicit address plus an auth token.
const defaultListenAddress = "127.0.0.1:7428"

// Default returns the zero-config defaults serve falls back to when no
// config file is present.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Address: defaultListenAddress},
		Store: StoreConfig{
			Path:         "harbor.db",
			WorkspaceDir: Dir(),
		},
		Session: SessionConfig{
			MaxBacklogBytes: 256 * 1024,
			RetentionSize:   20000,
			NotifyDir:       os.TempDir(),
		},
	}
}

// Dir returns harborctl's configuration/workspace directory (~/.harborctl).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".harborctl")
	}
	return filepath.Join(home, ".harborctl")
}

// Load reads harborctl's config from <Dir()>/config.yaml, falling back to
// Default() if the file does not exist.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(Dir(), "config.yaml"))
}

// LoadFrom reads config from path, falling back to Default() (with
// WorkspaceDir/Path left as-is) if the file does not exist.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Listen.Address == "" {
		return fmt.Errorf("config: listen.address must not be empty")
	}
	if c.Store.WorkspaceDir == "" {
		return fmt.Errorf("config: store.workspace_dir must not be empty")
	}
	return nil
}

// DBPath resolves the Workspace Store's database file, joining Store.Path
// onto Store.WorkspaceDir when Path is relative.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(c.Store.WorkspaceDir, c.Store.Path)
}

// MigrationMarkerPath is the flock-guarded marker file recording that
// legacy-layout migration already ran.
func (c *Config) MigrationMarkerPath() string {
	return filepath.Join(c.Store.WorkspaceDir, ".migrated-from-legacy")
}
