package agent

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment references in config text:
//   - ${VAR}
//   - ${VAR:-default}
//   - ${VAR:?error}
//   - $VAR (upper case only)
//
// Groups: 1 name, 2 modifier ("-" or "?"), 3 default or message, 4 bare name.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// Environment variables consulted for secrets left empty in the file.
const (
	EnvAPIKey        = "DESKCLAW_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvDiscordToken  = "DESKCLAW_DISCORD_TOKEN"
	EnvTelegramToken = "DESKCLAW_TELEGRAM_TOKEN"
	EnvGatewayToken  = "DESKCLAW_GATEWAY_TOKEN"
)

// configCandidates are searched in order by FindConfigFile.
var configCandidates = []string{
	"config.yaml",
	"config.yml",
	"deskclaw.yaml",
	"deskclaw.yml",
	"configs/config.yaml",
}

// LoadConfig loads path, or the first discovered config file when path is
// empty. Without any file the defaults are returned. The second result is
// the file actually read ("" for defaults).
func LoadConfig(path string) (*Config, string, error) {
	if path == "" {
		path = FindConfigFile()
	}
	if path == "" {
		loadEnvFiles()
		cfg := DefaultConfig()
		resolveSecrets(cfg)
		return cfg, "", nil
	}
	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadConfigFromFile reads a YAML config file over the defaults. .env files
// are loaded first and environment references are expanded before parsing.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVarsWithValidation(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)
	resolveRelativePaths(cfg, path)
	checkFilePermissions(path)
	return cfg, nil
}

// ParseConfig parses YAML over DefaultConfig. Keys absent from data keep
// their defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveConfigToFile writes cfg as YAML with owner-only permissions. Secrets
// that came from the environment are written back as references, and any
// existing file is kept as path.bak.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.Classifier.APIKey = sanitizeSecret(cfg.Classifier.APIKey, EnvAPIKey, EnvOpenAIKey)
	sanitized.Channels.Discord.Token = sanitizeSecret(cfg.Channels.Discord.Token, EnvDiscordToken)
	sanitized.Channels.Telegram.Token = sanitizeSecret(cfg.Channels.Telegram.Token, EnvTelegramToken)
	sanitized.Gateway.AuthToken = sanitizeSecret(cfg.Gateway.AuthToken, EnvGatewayToken)

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	var check map[string]any
	if err := yaml.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("config validation failed (refusing to write corrupt data): %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile returns the first existing candidate config file, or "".
func FindConfigFile() string {
	for _, path := range configCandidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// IsEnvReference reports whether s is an unexpanded environment reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "$")
}

// loadEnvFiles loads .env and .env.local. Existing variables win.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces environment references in input. Unset plain
// references are kept verbatim. An unset ${VAR:?msg} becomes an
// "ERROR:VAR:msg" marker for expandEnvVarsWithValidation to report.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, modifier, value, bare := sub[1], sub[2], sub[3], sub[4]

		if bare != "" {
			if v, ok := os.LookupEnv(bare); ok {
				return v
			}
			return match
		}

		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		switch modifier {
		case "?":
			if value == "" {
				value = "required environment variable not set"
			}
			return "ERROR:" + name + ":" + value
		case "-":
			return value
		}
		return match
	})
}

// expandEnvVarsWithValidation is expandEnvVars that fails when a required
// variable is unset.
func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	idx := strings.Index(result, "ERROR:")
	if idx < 0 {
		return result, nil
	}
	rest := result[idx+len("ERROR:"):]
	colon := strings.Index(rest, ":")
	if colon == -1 {
		return "", fmt.Errorf("config error: malformed error marker")
	}
	name := rest[:colon]
	msg := rest[colon+1:]
	if nl := strings.IndexByte(msg, '\n'); nl >= 0 {
		msg = msg[:nl]
	}
	if msg == "" {
		msg = "required environment variable not set"
	}
	return "", fmt.Errorf("config error: %s - %s", name, msg)
}

// resolveSecrets fills empty or unexpanded secrets from the environment.
func resolveSecrets(cfg *Config) {
	fill := func(dst *string, envs ...string) {
		if *dst != "" && !IsEnvReference(*dst) {
			return
		}
		for _, e := range envs {
			if v := os.Getenv(e); v != "" {
				*dst = v
				return
			}
		}
		if IsEnvReference(*dst) {
			*dst = ""
		}
	}
	fill(&cfg.Classifier.APIKey, EnvAPIKey, EnvOpenAIKey)
	fill(&cfg.Channels.Discord.Token, EnvDiscordToken)
	fill(&cfg.Channels.Telegram.Token, EnvTelegramToken)
	fill(&cfg.Gateway.AuthToken, EnvGatewayToken)
}

// resolveRelativePaths makes file paths in cfg absolute relative to the
// config file's directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	dir := filepath.Dir(configPath)
	cfg.Collector.BaseDir = resolvePathFromConfig(cfg.Collector.BaseDir, dir)
	for i, root := range cfg.Collector.Roots {
		cfg.Collector.Roots[i] = resolvePathFromConfig(root, dir)
	}
	if cfg.Database.Path != ":memory:" {
		cfg.Database.Path = resolvePathFromConfig(cfg.Database.Path, dir)
	}
	cfg.System.ScreenshotDir = resolvePathFromConfig(cfg.System.ScreenshotDir, dir)
}

// resolvePathFromConfig expands ~ and anchors relative paths at configDir.
func resolvePathFromConfig(path, configDir string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// sanitizeSecret returns a ${VAR} reference when value came from one of
// envs, and value unchanged otherwise.
func sanitizeSecret(value string, envs ...string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	for _, e := range envs {
		if os.Getenv(e) == value {
			return "${" + e + "}"
		}
	}
	return value
}

// checkFilePermissions warns when the config file is group or world
// readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
