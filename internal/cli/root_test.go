package cli

import (
	"bytes"
	"testing"
)

func TestNewRootCmd_HasServeAndVersionSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	if !names["serve"] {
		t.Fatalf("expected a serve subcommand, got %v", names)
	}
	if !names["version"] {
		t.Fatalf("expected a version subcommand, got %v", names)
	}
}

func TestVersionCommand_PrintsDisplayVersion(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute version: %v", err)
	}
	if out.Len() == 0 {
		t.Fatalf("expected version output, got empty buffer")
	}
}

func TestLoadConfig_EmptyPathUsesDefaultLoader(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\"): %v", err)
	}
	if cfg.Listen.Address == "" {
		t.Fatalf("expected a non-empty default listen address")
	}
}
