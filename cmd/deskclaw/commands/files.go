package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/collector"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/diskscan"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/intent"
)

// newCollectCmd creates `deskclaw collect <category>`.
func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect <category>",
		Short: "Copy every file of a category into the collection folder",
		Long: `Scan the configured roots and copy every file of the category into the
collection folder. Runs in the foreground.

Categories: photos, videos, music, documents, archives (aliases such as
"pictures" or "songs" work too).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, ok := resolveCategory(args[0])
			if !ok {
				return fmt.Errorf("unknown category %q", args[0])
			}
			scanner, err := newScanner(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Collecting %s from %d root(s)...\n", category, len(scanner.Roots()))
			report, err := scanner.Collect(ctx, category)
			if err != nil {
				return err
			}
			fmt.Println(report.String())
			return nil
		},
	}
}

// newSearchCmd creates `deskclaw search <pattern>`.
func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Find files by name",
		Long: `Find files whose name matches a glob pattern. A bare word matches any
name containing it. With --in the search runs under one directory and
honors the diskscan safety rules.

Examples:
  deskclaw search report
  deskclaw search "*.pdf" --in ~/Documents`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			pattern := intent.WidenPattern(args[0])

			if base, _ := cmd.Flags().GetString("in"); base != "" {
				disk, err := newDisk(cmd)
				if err != nil {
					return err
				}
				res, err := disk.Search(ctx, base, pattern)
				if err != nil {
					return errors.New(diskscan.Describe(err))
				}
				fmt.Println(res.String())
				return nil
			}

			scanner, err := newScanner(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			res, err := scanner.Search(ctx, pattern, limit)
			if err != nil {
				return err
			}
			fmt.Print(res.String())
			if res.Truncated {
				fmt.Println("(more results omitted)")
			}
			return nil
		},
	}
	cmd.Flags().String("in", "", "directory to search under")
	cmd.Flags().Int("limit", 0, "maximum results (default from config)")
	return cmd
}

// newBrowseCmd creates `deskclaw browse [path]`.
func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse [path]",
		Short: "List a directory, or the drives when no path is given",
		Long: `List a directory's contents, or the mounted drives when no path is
given. Requires diskscan.enabled in the config; blocked system paths are
refused.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disk, err := newDisk(cmd)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				vols, err := disk.Roots(cmdContext(cmd))
				if err != nil {
					return errors.New(diskscan.Describe(err))
				}
				fmt.Print(diskscan.FormatVolumes(vols))
				return nil
			}

			var out fmt.Stringer
			if info, _ := cmd.Flags().GetBool("info"); info {
				out, err = disk.Info(args[0])
			} else {
				out, err = disk.Browse(args[0])
			}
			if err != nil {
				return errors.New(diskscan.Describe(err))
			}
			fmt.Println(strings.TrimRight(out.String(), "\n"))
			return nil
		},
	}
	cmd.Flags().Bool("info", false, "show details about the path instead of listing it")
	return cmd
}

func newScanner(cmd *cobra.Command) (*collector.Scanner, error) {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg, os.Stderr, slog.LevelWarn)
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		cfg.Collector.SearchMaxResults = limit
	}
	return collector.New(cfg.Collector, logger), nil
}

func newDisk(cmd *cobra.Command) (*diskscan.Service, error) {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg, os.Stderr, slog.LevelWarn)
	return diskscan.New(cfg.DiskScan, logger), nil
}

// resolveCategory accepts a category name or an alias.
func resolveCategory(name string) (string, bool) {
	if rule, ok := collector.LookupCategory(name); ok {
		return rule.Name, true
	}
	return collector.CategoryFromText(strings.ToLower(name))
}

// cmdContext is cobra's context, or Background when run outside Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
