package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/agent"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels/discord"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels/telegram"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/gateway"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/scheduler"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates `deskclaw serve`, the long-running daemon.
func newServeCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway, chat channels and scheduler",
		Long: `Start DeskClaw as a daemon: the HTTP/WebSocket gateway, the Discord and
Telegram channels whose tokens are configured, the job scheduler and the
config watcher.

Examples:
  deskclaw serve
  deskclaw serve --channel telegram
  deskclaw serve --config ./config.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version)
		},
	}

	cmd.Flags().StringSlice("channel", nil, "channels to enable (discord, telegram)")
	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg, os.Stdout, slog.LevelDebug)
	if configPath != "" {
		logger.Info("config loaded", "path", configPath)
	}
	agent.ResolveAPIKey(cfg, logger)

	a, err := agent.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := channels.NewManager(logger)
	channelFilter, _ := cmd.Flags().GetStringSlice("channel")
	registerChannels(manager, cfg, channelFilter, logger)

	sched, err := scheduler.New(cfg.Scheduler, a.JobHandler(manager.Announce), logger)
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("scheduler: %w", err)
	}
	sched.SetAnnounceHandler(manager.Announce)

	g, gctx := errgroup.WithContext(ctx)
	// Runs until a signal even when every component is disabled.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if cfg.Gateway.Enabled {
		gw := gateway.New(a, cfg.Gateway, version, logger)
		if err := gw.Start(gctx); err != nil {
			_ = a.Close(context.Background())
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return gw.Stop(sctx)
		})
	}

	if manager.HasChannels() {
		g.Go(func() error {
			defer manager.Stop()
			if err := manager.Start(gctx); err != nil {
				if errors.Is(err, channels.ErrNoChannels) {
					logger.Warn("no channel could connect, chat relay disabled")
					return nil
				}
				return err
			}
			return a.Relay(gctx, manager)
		})
	}

	if cfg.Scheduler.Enabled {
		g.Go(func() error {
			if err := sched.Start(gctx); err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			<-gctx.Done()
			sched.Stop()
			return nil
		})
	}

	if configPath != "" {
		watcher := agent.NewConfigWatcher(configPath, 0, a.ApplyConfig, logger)
		g.Go(func() error { return watcher.Start(gctx) })
	}

	logger.Info("DeskClaw running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"gateway", cfg.Gateway.Enabled,
		"channels", manager.HasChannels(),
		"jobs", len(sched.List()),
	)

	runErr := g.Wait()
	logger.Info("shutting down")

	cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(cctx); err != nil {
		logger.Warn("background tasks still running at exit", "error", err)
	}
	return runErr
}

// registerChannels adds every channel with a token that passes filter.
func registerChannels(m *channels.Manager, cfg *agent.Config, filter []string, logger *slog.Logger) {
	if shouldEnable("discord", filter) && cfg.Channels.Discord.Token != "" {
		if err := m.Register(discord.New(cfg.Channels.Discord, logger)); err != nil {
			logger.Error("failed to register Discord", "error", err)
		}
	}
	if shouldEnable("telegram", filter) && cfg.Channels.Telegram.Token != "" {
		if err := m.Register(telegram.New(cfg.Channels.Telegram, logger)); err != nil {
			logger.Error("failed to register Telegram", "error", err)
		}
	}
}

// shouldEnable reports whether name passes the --channel filter. An empty
// filter enables everything configured.
func shouldEnable(name string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == name {
			return true
		}
	}
	return false
}
