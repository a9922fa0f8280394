package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harborctl/harborctl/internal/config"
)

func TestUsageChanged(t *testing.T) {
	cases := []struct {
		name string
		a, b processUsage
		want bool
	}{
		{"identical", processUsage{cpuPercent: 10, memMB: 50}, processUsage{cpuPercent: 10, memMB: 50}, false},
		{"within epsilon", processUsage{cpuPercent: 10, memMB: 50}, processUsage{cpuPercent: 10.5, memMB: 50.5}, false},
		{"cpu jump", processUsage{cpuPercent: 10, memMB: 50}, processUsage{cpuPercent: 20, memMB: 50}, true},
		{"mem jump", processUsage{cpuPercent: 10, memMB: 50}, processUsage{cpuPercent: 10, memMB: 80}, true},
		{"negative direction", processUsage{cpuPercent: 20, memMB: 50}, processUsage{cpuPercent: 5, memMB: 50}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := usageChanged(tc.a, tc.b); got != tc.want {
				t.Fatalf("usageChanged(%+v, %+v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestCopyLegacyState_CopiesFilesNotDirectories(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "settings.json"), []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(src, "sockets"), 0o755); err != nil {
		t.Fatalf("seed dir: %v", err)
	}

	if err := copyLegacyState(src, dst); err != nil {
		t.Fatalf("copyLegacyState: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "settings.json"))
	if err != nil {
		t.Fatalf("expected settings.json copied: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("unexpected copied content: %s", got)
	}
	if _, err := os.Stat(filepath.Join(dst, "sockets")); !os.IsNotExist(err) {
		t.Fatalf("expected directory not copied, stat err: %v", err)
	}
}

func TestMigrateLegacyLayout_IsIdempotent(t *testing.T) {
	workspaceDir := filepath.Join(t.TempDir(), "workspace")
	cfg := &config.Config{Store: config.StoreConfig{WorkspaceDir: workspaceDir}}

	if err := migrateLegacyLayout(cfg); err != nil {
		t.Fatalf("first migrateLegacyLayout: %v", err)
	}
	marker := cfg.MigrationMarkerPath()
	info, err := os.Stat(marker)
	if err != nil {
		t.Fatalf("expected marker file written: %v", err)
	}
	firstModTime := info.ModTime()

	if err := migrateLegacyLayout(cfg); err != nil {
		t.Fatalf("second migrateLegacyLayout: %v", err)
	}
	info2, err := os.Stat(marker)
	if err != nil {
		t.Fatalf("expected marker file still present: %v", err)
	}
	if !info2.ModTime().Equal(firstModTime) {
		t.Fatalf("expected second call to skip rewriting marker, mtimes differ: %v vs %v", firstModTime, info2.ModTime())
	}
}
