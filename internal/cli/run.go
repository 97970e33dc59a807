package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/gametools/internal/app"
	"github.com/me/gametools/internal/config"
	"github.com/me/gametools/internal/logging"
)

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		dbPath     string
		ups        int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the runtime and its control API",
		Long: `Loads the configuration, starts the tick loop and serves the control API
until interrupted. On shutdown the runtime changes to the closed state, stops
all events and flushes the history journal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("db") {
				cfg.DBPath = dbPath
			}
			if flags.Changed("ups") {
				cfg.UpdatesPerSecond = ups
			}
			root := cmd.Root().PersistentFlags()
			if root.Changed("log-level") || flagDebug {
				cfg.LogLevel = flagLogLevel
			}
			if root.Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}

			runLogger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			a, err := app.Build(cfg, runLogger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := a.Run(ctx); err != nil {
				return fmt.Errorf("run: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration")
	cmd.Flags().StringVar(&addr, "addr", "", "Control API listen address (empty disables it)")
	cmd.Flags().StringVar(&dbPath, "db", "", "History database path (default ~/.gametools/history.db)")
	cmd.Flags().IntVar(&ups, "ups", 0, "Updates per second")

	return cmd
}
