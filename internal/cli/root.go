// Package cli implements harborctl's process entrypoint: a thin cobra
// command tree that loads configuration and binds the Supervisor. The rich
// interactive command surface (attach, send, ls, ...) that a TUI client
// would build on top of is out of scope here — CLI argument parsing for
// that surface and the TUI renderer itself are both external collaborators;
// this package only launches and stops the server-side subsystem. The
// cobra root carries the serve and version subcommands; serve loads the
// config in its own RunE. There is no terminal color detection.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harborctl/harborctl/internal/config"
	"github.com/harborctl/harborctl/internal/supervisor"
	"github.com/harborctl/harborctl/internal/version"
)

// NewRootCmd creates harborctl's root cobra command: "serve" binds and runs
// the Supervisor; "version" prints the build version.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "harborctl",
		Short: "Multi-agent terminal harness control plane",
		Long:  "harborctl supervises concurrent interactive agent sessions in PTYs, reconciles their lifecycle from telemetry/notify/history signals, and serves a line-JSON stream protocol to attaching clients.",
	}

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bind the Workspace Store and Stream Server and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			sv, err := supervisor.Bind(cfg)
			if err != nil {
				return fmt.Errorf("bind: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Fprintf(cmd.OutOrStdout(), "harborctl %s listening on %s\n", version.DisplayVersion(), cfg.Listen.Address)
			return sv.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(configPath, "config", "", "path to config.yaml (default: ~/.harborctl/config.yaml)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the harborctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.DisplayVersion())
			return nil
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}
