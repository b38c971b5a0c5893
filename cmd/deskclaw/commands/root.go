// Package commands implements the DeskClaw CLI commands using cobra.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/agent"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deskclaw",
		Short: "DeskClaw - PC automation agent",
		Long: `DeskClaw turns short chat messages into actions on this computer:
collecting files, searching the disk, closing and opening apps, browsing.
Works as a CLI, an HTTP gateway and a Discord/Telegram bot.

Examples:
  deskclaw chat "retrieve all photos"
  deskclaw chat
  deskclaw serve
  deskclaw search "*.pdf"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newServeCmd(version),
		newCollectCmd(),
		newSearchCmd(),
		newBrowseCmd(),
		newConfigCmd(),
		newHealthCmd(),
		newVersionCmd(version),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	return rootCmd
}

// resolveConfig loads the --config file, or the first discovered one, or
// the defaults. The returned path is "" for defaults.
func resolveConfig(cmd *cobra.Command) (*agent.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, path, err := agent.LoadConfig(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// newLogger builds the process logger from the logging config. minLevel
// raises the floor for interactive commands that should stay quiet.
func newLogger(cmd *cobra.Command, cfg *agent.Config, out io.Writer, minLevel slog.Level) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := parseLevel(cfg.Logging.Level)
	if level < minLevel {
		level = minLevel
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
