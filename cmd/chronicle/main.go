// Command chronicle writes, follows and inspects chronicle record logs.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to every chronicle via chronicle.Config.Logger
//   - No global slog configuration (no slog.SetDefault)
//   - Per-component levels come from the config file's log.components
package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"

	"chronicle/internal/logging"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var app *env

	rootCmd := &cobra.Command{
		Use:          "chronicle",
		Short:        "Indexed memory-mapped record log",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			app = e
			pprofAddr, _ := cmd.Flags().GetString("pprof")
			if pprofAddr != "" {
				go func() {
					app.logger.Info("pprof server listening", "addr", pprofAddr)
					if err := http.ListenAndServe(pprofAddr, nil); err != nil { //nolint:gosec // G114: debug endpoint
						app.logger.Error("pprof server error", "error", err)
					}
				}()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("home", "", "home directory (default: $CHRONICLE_HOME, else platform config dir)")
	rootCmd.PersistentFlags().String("config", "", "config file (default: <home>/chronicle.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table or json")
	rootCmd.PersistentFlags().String("data-segment-size", "", "data file growth unit and largest record, e.g. 64M")
	rootCmd.PersistentFlags().String("index-segment-size", "", "index file growth unit, e.g. 16M")
	rootCmd.PersistentFlags().String("pprof", "", "pprof HTTP server address (e.g. localhost:6060); bind to loopback only")

	appFn := func() *env { return app }

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// The version command needs no environment.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(
		newWriteCmd(appFn),
		newTailCmd(appFn),
		newStatsCmd(appFn),
		newClearCmd(appFn),
		newExportCmd(appFn),
		newImportCmd(appFn),
		newBenchCmd(appFn),
		versionCmd,
	)
	return rootCmd
}

// newBaseLogger builds the handler chain shared by every command. The
// returned filter is where per-component levels are set.
func newBaseLogger(w io.Writer, format string, level slog.Level) (*slog.Logger, *logging.ComponentFilterHandler) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug, // Allow all levels; filtering done by ComponentFilterHandler
	}
	var base slog.Handler
	if format == "json" {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}
	filter := logging.NewComponentFilterHandler(base, level)
	return slog.New(filter), filter
}
