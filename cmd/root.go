// Package cmd wires the CLI, the MCP server, and the HTTP API around the
// retrieval pipeline. No pipeline logic lives here, only composition.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/engramdev/engram/pkg/config"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfgFiles  []string
	cfgInline string
	logLevel  string

	// cfg is the merged configuration, resolved once before any command
	// runs. Precedence: files in order, then inline JSON.
	cfg *config.Accessor

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Memory retrieval for AI coding agents",
	Long: `engram stores what an agent saw and did, then retrieves it on demand:
scoped episodic events plus vector-searched facts, fused by reciprocal
rank and packed into a token budget.

Examples:
  engram write --text "Auth uses JWT with RS256" --tenant acme --project api
  engram retrieve --objective "how does auth work?" --budget 2048
  engram serve-mcp
  engram serve-api --addr :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var layers []config.Layer
		for _, path := range cfgFiles {
			layer, err := config.FileLayer(path)
			if err != nil {
				return err
			}
			layers = append(layers, layer)
		}
		if cfgInline != "" {
			layer, err := config.JSONLayer([]byte(cfgInline))
			if err != nil {
				return err
			}
			layers = append(layers, layer)
		}

		var err error
		cfg, err = config.New(layers...)
		if err != nil {
			return err
		}

		logger = newLogger(logLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&cfgFiles, "config", nil, "Config file(s), later files override earlier")
	rootCmd.PersistentFlags().StringVar(&cfgInline, "config-json", "", "Inline JSON config overlay (highest precedence)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// MCP over stdio owns stdout, so logs always go to stderr.
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
