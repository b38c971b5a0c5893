package agent

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "deskclaw"

	// KeyringAPIKey is the keyring entry holding the classifier API key.
	KeyringAPIKey = "api_key"
)

// StoreKeyring saves a secret in the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring returns a secret from the OS keyring, or "" when absent.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable reports whether the OS keyring accepts writes.
func KeyringAvailable() bool {
	const probe = "__deskclaw_probe__"
	if err := keyring.Set(keyringService, probe, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probe)
	return true
}

// ResolveAPIKey sets cfg.Classifier.APIKey from the OS keyring when an
// entry exists, otherwise keeps the value resolved from the file and
// environment. It returns where the key came from: "keyring", "config"
// or "".
func ResolveAPIKey(cfg *Config, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	if val := GetKeyring(KeyringAPIKey); val != "" {
		cfg.Classifier.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return "keyring"
	}
	if cfg.Classifier.APIKey != "" && !IsEnvReference(cfg.Classifier.APIKey) {
		logger.Debug("API key loaded from config/env")
		return "config"
	}
	if cfg.Classifier.Enabled {
		logger.Warn("classifier enabled but no API key found, using local matching only",
			"hint", "deskclaw config set-key")
	}
	return ""
}

// ReadPassword reads a secret from the terminal without echo. Piped input
// is read as is.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	password, err := term.ReadPassword(fd)
	if err != nil {
		var buf [1024]byte
		n, readErr := os.Stdin.Read(buf[:])
		if readErr != nil {
			return "", fmt.Errorf("reading password: %w", readErr)
		}
		password = buf[:n]
	}
	fmt.Fprintln(os.Stderr)

	return strings.TrimRight(string(password), "\r\n"), nil
}
