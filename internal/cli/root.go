// Package cli implements the gametools command line: the run command hosts
// the runtime, the other commands talk to its control API.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/gametools/internal/logging"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default control API URL, checking the
// GAMETOOLS_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("GAMETOOLS_SERVER"); s != "" {
		return s
	}
	return "http://127.0.0.1:8420"
}

// NewRootCmd creates the root cobra command for the gametools CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gametools",
		Short: "gametools: fixed-rate game automation runtime",
		Long:  "gametools runs scripted events and states against a game window at a fixed tick rate, and controls a running instance.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(cmd.ErrOrStderr(), flagLogLevel, flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Control API URL (or GAMETOOLS_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newEventsCmd(),
		newHistoryCmd(),
		newStateCmd(),
		newKeyCmd(),
		newWindowCmd(),
		newConfigCmd(),
	)

	return root
}
