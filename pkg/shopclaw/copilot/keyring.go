// Package copilot – keyring.go stores credentials in the operating system's
// native keyring (Secret Service on Linux, Keychain on macOS, Credential
// Manager on Windows).
//
// Secrets resolve in this order: config.yaml value, environment variable
// (including .env files), OS keyring.
package copilot

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "shopclaw"

	// Keyring entry names.
	KeyringAPIKey        = "api_key"
	KeyringShopifyToken  = "shopify_access_token"
	KeyringWhatsAppToken = "whatsapp_access_token"
)

// KeyringNames maps the names accepted by `shopclaw secrets` to entries.
var KeyringNames = map[string]string{
	"api-key":        KeyringAPIKey,
	"shopify-token":  KeyringShopifyToken,
	"whatsapp-token": KeyringWhatsAppToken,
}

// SecretNames returns the accepted secret names, sorted.
func SecretNames() []string {
	names := make([]string, 0, len(KeyringNames))
	for n := range KeyringNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
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

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__shopclaw_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ReadSecret reads a value from the terminal without echo. When stdin is
// not a terminal the first line is read instead, so values can be piped.
func ReadSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
