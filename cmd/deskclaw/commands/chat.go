package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/agent"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/dispatch"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/tasks"
)

var (
	colorPrompt = color.New(color.FgBlue, color.Bold)
	colorReply  = color.New(color.FgCyan)
	colorAsync  = color.New(color.FgGreen)
	colorNotice = color.New(color.FgYellow)
)

// newChatCmd creates `deskclaw chat`.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a command, or start an interactive session",
		Long: `Send one message to the agent, or start an interactive session when no
message is given. Background results (collections, searches) are printed
as they finish.

Examples:
  deskclaw chat "close all windows"
  deskclaw chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg, os.Stderr, slog.LevelWarn)
	agent.ResolveAPIKey(cfg, logger)

	a, err := agent.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = dispatch.WithSource(ctx, "cli")

	if len(args) > 0 {
		reply := a.HandleMessage(ctx, args[0], printSink(os.Stdout))
		colorReply.Println(reply)
		return closeAgent(ctx, a, os.Stdout)
	}
	return runREPL(ctx, a, cfg)
}

func runREPL(ctx context.Context, a *agent.Agent, cfg *agent.Config) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            colorPrompt.Sprint("you> "),
		HistoryFile:       historyFile(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		HistoryLimit:      1000,
	})
	if err != nil {
		return fmt.Errorf("starting line editor: %w", err)
	}
	defer rl.Close()

	out := rl.Stdout()
	fmt.Fprintln(out, colorReply.Sprint(a.HandleMessage(ctx, "", nil)))
	fmt.Fprintln(out, `Type "exit" to quit.`)
	sink := printSink(out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if err != nil {
			break
		}

		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "q":
			return closeAgent(ctx, a, out)
		}

		reply := a.HandleMessage(ctx, line, sink)
		fmt.Fprintf(out, "%s %s\n", colorPrompt.Sprint(cfg.Name+">"), colorReply.Sprint(reply))
	}
	return closeAgent(ctx, a, out)
}

// printSink prints background results in their own color.
func printSink(w io.Writer) tasks.Sink {
	return func(text string) {
		fmt.Fprintln(w, colorAsync.Sprint(text))
	}
}

// closeAgent waits for running background work unless ctx is cancelled
// first.
func closeAgent(ctx context.Context, a *agent.Agent, w io.Writer) error {
	for _, rec := range a.Tasks().List() {
		if rec.Status == tasks.StatusRunning {
			fmt.Fprintln(w, colorNotice.Sprint("Waiting for background tasks to finish (Ctrl+C to abort)..."))
			break
		}
	}
	err := a.Close(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".deskclaw_history")
}
