package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/tasks"
)

// newHealthCmd creates `deskclaw health`, which asks a running gateway for
// its status and background tasks. Exits non-zero when the gateway is down.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check a running DeskClaw daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			base := "http://" + cfg.Gateway.Address
			ctx, cancel := context.WithTimeout(cmdContext(cmd), 5*time.Second)
			defer cancel()

			var health map[string]any
			if err := getJSON(ctx, base+"/health", cfg.Gateway.AuthToken, &health); err != nil {
				return fmt.Errorf("gateway not reachable at %s: %w", cfg.Gateway.Address, err)
			}
			var list struct {
				Tasks []tasks.Record `json:"tasks"`
			}
			if err := getJSON(ctx, base+"/api/tasks", cfg.Gateway.AuthToken, &list); err != nil {
				return err
			}

			fmt.Printf("status: %v  version: %v  uptime: %vs  ws clients: %v\n",
				health["status"], health["version"], health["uptime_sec"], health["ws_clients"])
			if len(list.Tasks) == 0 {
				fmt.Println("no background tasks")
			}
			for _, t := range list.Tasks {
				fmt.Printf("  [%s] %s (%s)\n", t.Status, t.Description, t.StartedAt.Format(time.Kitchen))
			}
			return nil
		},
	}
}

func getJSON(ctx context.Context, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// newVersionCmd creates `deskclaw version`.
func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "deskclaw %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
