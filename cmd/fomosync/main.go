// Command fomosync drives the offline-first sync core from the command line.
//
// It queues order and profile mutations into the local SQLite store, pushes
// them to the venue service, runs the background sync loop and serves an
// in-process mock of the service for local development.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dompi123/FOMO2025PART4/internal/config"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

// rootOptions carries state shared by every subcommand.
type rootOptions struct {
	configPath string
	cfg        *config.Config
	logger     *logging.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "fomosync",
		Short:         "Offline-first order and profile sync",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logging.NewFromConfig(loggerConfig(cfg.Logging))
			logging.SetLogger(opts.logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml, json or toml)")

	root.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "dev", Title: "Development Commands:"},
	)
	root.AddCommand(
		newQueueCmd(opts),
		newSyncCmd(opts),
		newStatusCmd(opts),
		newRunCmd(opts),
		newServeMockCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
