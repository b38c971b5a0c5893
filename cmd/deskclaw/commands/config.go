package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/agent"
)

// newConfigCmd creates `deskclaw config`.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration",
		Long: `Manage the DeskClaw configuration.

Examples:
  deskclaw config init
  deskclaw config show
  deskclaw config set-key`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
	)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Root().PersistentFlags().GetString("config")
			if path == "" {
				path = "config.yaml"
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := agent.SaveConfigToFile(agent.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", path)
			fmt.Println("Next steps:")
			fmt.Println("  deskclaw config set-key   # optional, enables the remote classifier")
			fmt.Println("  deskclaw chat")
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			source := agent.ResolveAPIKey(cfg, nil)

			shown := *cfg
			shown.Classifier.APIKey = maskSecret(cfg.Classifier.APIKey)
			shown.Channels.Discord.Token = maskSecret(cfg.Channels.Discord.Token)
			shown.Channels.Telegram.Token = maskSecret(cfg.Channels.Telegram.Token)
			shown.Gateway.AuthToken = maskSecret(cfg.Gateway.AuthToken)

			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			if path == "" {
				path = "(defaults)"
			}
			fmt.Printf("# source: %s\n", path)
			if source != "" {
				fmt.Printf("# api key from: %s\n", source)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the classifier API key in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !agent.KeyringAvailable() {
				return errors.New("OS keyring unavailable; set " + agent.EnvAPIKey + " instead")
			}
			key, err := agent.ReadPassword("API key: ")
			if err != nil {
				return err
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("empty key, nothing stored")
			}
			if err := agent.StoreKeyring(agent.KeyringAPIKey, key); err != nil {
				return fmt.Errorf("storing key: %w", err)
			}
			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	}
	return "****" + s[len(s)-4:]
}
