// Package supervisor implements the Supervisor: the process-wide binder
// of every component, the legacy-layout migration guard, the periodic
// process-usage refresher, and graceful shutdown.
package supervisor

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/harborctl/harborctl/internal/activitylog"
	"github.com/harborctl/harborctl/internal/config"
	"github.com/harborctl/harborctl/internal/gitsummary"
	"github.com/harborctl/harborctl/internal/store"
	"github.com/harborctl/harborctl/internal/streamserver"
)

// ProcessUsageInterval is the Supervisor's background refresh cadence.
const ProcessUsageInterval = 250 * time.Millisecond

// Supervisor binds the Workspace Store and Stream Server, runs the
// background process-usage refresher, and owns the process's startup and
// shutdown sequencing.
type Supervisor struct {
	cfg     *config.Config
	db      *sql.DB
	store   *store.Store
	server  *streamserver.Server
	log     *activitylog.Logger
	ln      net.Listener

	usageMu  sync.Mutex
	lastUsage map[string]processUsage
}

type processUsage struct {
	cpuPercent float64
	memMB      float64
}

// Bind opens the Workspace Store (running migrations), performs
// legacy-layout migration if needed, and constructs the Stream Server
// wired to it. It does not yet listen on a socket; call Serve for that.
func Bind(cfg *config.Config) (*Supervisor, error) {
	if err := migrateLegacyLayout(cfg); err != nil {
		return nil, fmt.Errorf("supervisor: legacy migration: %w", err)
	}

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("supervisor: open store: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("supervisor: migrate store: %w", err)
	}

	activity := activitylog.Nop()

	var srv *streamserver.Server
	st := store.New(db, func(e store.Event) { srv.PublishStoreEvent(e) })
	srv = streamserver.New(streamserver.Config{
		AuthToken:       cfg.Listen.AuthToken,
		MaxBacklogBytes: cfg.Session.MaxBacklogBytes,
		RetentionSize:   cfg.Session.RetentionSize,
	}, st, activity)

	return &Supervisor{
		cfg:       cfg,
		db:        db,
		store:     st,
		server:    srv,
		log:       activity,
		lastUsage: make(map[string]processUsage),
	}, nil
}

// Serve binds cfg.Listen.Address, starts the background process-usage
// refresher, and blocks serving connections until ctx is cancelled. On
// return (including via ctx cancellation) it runs the shutdown sequence:
// stop accepting connections, close live sessions, flush the store, then
// return.
func (sv *Supervisor) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", sv.cfg.Listen.Address)
	if err != nil {
		// Listener bind failure at startup is fatal.
		return fmt.Errorf("supervisor: listen %s: %w", sv.cfg.Listen.Address, err)
	}
	sv.ln = ln

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	go sv.runUsageRefresher(refreshCtx)

	err = sv.server.Serve(ctx, ln)
	sv.Shutdown()
	return err
}

// Shutdown runs the documented shutdown sequence: close every live
// connection and PTY via the Stream Server, then close the Workspace
// Store's database handle.
func (sv *Supervisor) Shutdown() {
	sv.server.Shutdown()
	if err := sv.db.Close(); err != nil {
		log.Printf("supervisor: close store: %v", err)
	}
}

// runUsageRefresher samples every live session's process CPU%/RSS every
// ProcessUsageInterval and publishes a "session-usage" observed event when
// the sample changed from the last one published. This event kind is
// additional to the enumerated observed-event types, since no wire shape
// for the usage refresher was otherwise specified.
func (sv *Supervisor) runUsageRefresher(ctx context.Context) {
	ticker := time.NewTicker(ProcessUsageInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sv.sampleOnce()
		}
	}
}

func (sv *Supervisor) sampleOnce() {
	for _, live := range sv.server.Sessions().List() {
		if !live.Live || live.PID <= 0 {
			continue
		}
		proc, err := gopsprocess.NewProcess(int32(live.PID))
		if err != nil {
			continue
		}
		cpuPct, err := proc.CPUPercent()
		if err != nil {
			continue
		}
		memMB := 0.0
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			memMB = float64(mem.RSS) / (1024 * 1024)
		}

		sample := processUsage{cpuPercent: cpuPct, memMB: memMB}
		sv.usageMu.Lock()
		prev, seen := sv.lastUsage[live.SessionID]
		changed := !seen || usageChanged(prev, sample)
		if changed {
			sv.lastUsage[live.SessionID] = sample
		}
		sv.usageMu.Unlock()
		if !changed {
			continue
		}

		sv.server.Bus().Publish("session-usage", live.SessionID, map[string]any{
			"cpuPercent": cpuPct,
			"memMB":      memMB,
			"status":     string(live.RuntimeStatus),
		})
	}
}

// usageChanged reports whether a and b differ enough to be worth
// publishing: more than 1 percentage point of CPU or 1 MB of RSS.
func usageChanged(a, b processUsage) bool {
	const epsilon = 1.0
	diff := func(x, y float64) float64 {
		if x > y {
			return x - y
		}
		return y - x
	}
	return diff(a.cpuPercent, b.cpuPercent) > epsilon || diff(a.memMB, b.memMB) > epsilon
}

// GitSummaryFor computes an opaque git summary for a directory, used by
// callers that attach it to a Repository's metadata or a session's status
// projection. Git facts enter the harness only as these opaque summaries.
func (sv *Supervisor) GitSummaryFor(dir string) gitsummary.Summary {
	return gitsummary.Compute(dir)
}

// migrateLegacyLayout copies a pre-existing ~/.h2 installation's local
// state into cfg.Store.WorkspaceDir the first time the Supervisor binds
// against it, guarded by a flock-protected marker file so the copy runs at
// most once and concurrent Bind calls (e.g. during a restart race) don't
// double-copy.
func migrateLegacyLayout(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Store.WorkspaceDir, 0o755); err != nil {
		return err
	}

	markerPath := cfg.MigrationMarkerPath()
	if _, err := os.Stat(markerPath); err == nil {
		return nil // already migrated
	}

	fl := flock.New(markerPath + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		// Another process is migrating concurrently; this one proceeds
		// without migrating rather than blocking the whole bind sequence.
		return nil
	}
	defer fl.Unlock()

	// Re-check after acquiring the lock: another process may have finished
	// the migration and written the marker while we waited.
	if _, err := os.Stat(markerPath); err == nil {
		return nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		legacyDir := filepath.Join(home, ".h2")
		if info, statErr := os.Stat(legacyDir); statErr == nil && info.IsDir() {
			if err := copyLegacyState(legacyDir, cfg.Store.WorkspaceDir); err != nil {
				return err
			}
		}
	}

	return os.WriteFile(markerPath, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644)
}

// copyLegacyState copies regular files one level deep from src into dst,
// skipping directories (sockets, per-session state) that have no analog in
// the new workspace-scoped layout. Best-effort: a single file's copy
// failure doesn't abort the rest.
func copyLegacyState(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, entry.Name()))
		if err != nil {
			continue
		}
		_ = os.WriteFile(filepath.Join(dst, entry.Name()), data, 0o644)
	}
	return nil
}
