// Package copilot – loader.go loads configuration from YAML files with
// credentials taken from environment variables, .env files or the OS keyring.
package copilot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/database"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable patterns in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error message if not set
//   - $VAR_NAME            - bare variable (no default/error support)
//
// Capture groups:
//   - Group 1: Variable name (for ${} syntax)
//   - Group 2: Modifier type ("-" for default, "?" for error)
//   - Group 3: Default value or error message
//   - Group 4: Variable name (for bare $VAR syntax)
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// Environment variables understood for deployments that predate config.yaml.
const (
	EnvStoreURL        = "SHOPIFY_STORE_URL"
	EnvShopifyToken    = "SHOPIFY_ACCESS_TOKEN"
	EnvShopifyVersion  = "SHOPIFY_API_VERSION"
	EnvGeminiKey       = "GEMINI_API_KEY"
	EnvVerifyToken     = "META_VERIFY_TOKEN"
	EnvWhatsAppToken   = "WHATSAPP_ACCESS_TOKEN"
	EnvWhatsAppPhoneID = "WHATSAPP_PHONE_NUMBER_ID"
	EnvGraphVersion    = "META_GRAPH_API_VERSION"
	EnvSocialMockMode  = "SOCIAL_MOCK_MODE"
	EnvDatabaseURL     = "DATABASE_URL"
)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Loads .env files first and expands environment variables; fails if any
// ${VAR:?error} pattern has its variable unset.
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
	checkFilePermissions(path)

	return cfg, nil
}

// LoadConfigFromEnv builds a Config from defaults, .env files and the
// environment only. Used when no config file exists.
func LoadConfigFromEnv() *Config {
	loadEnvFiles()
	cfg := DefaultConfig()
	resolveSecrets(cfg)
	return cfg
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("mapping config: %w", err)
	}

	// yaml.v3 leaves defaults in place for absent keys but cannot tell us
	// which ones were absent; look at the raw tree for the WhatsApp mode.
	if ch, ok := raw["channels"].(map[string]any); ok {
		if wa, ok := ch["whatsapp"].(map[string]any); ok {
			_, cfg.whatsappModeSet = wa["mode"]
		}
	}

	return cfg, nil
}

// SaveConfigToFile writes a Config as YAML with owner-only permissions.
// Secrets are replaced with environment variable references, and the
// existing file is backed up to <path>.bak.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.API.APIKey = sanitizeSecret(cfg.API.APIKey, EnvGeminiKey)
	sanitized.Shopify.AccessToken = sanitizeSecret(cfg.Shopify.AccessToken, EnvShopifyToken)
	sanitized.Channels.WhatsApp.AccessToken = sanitizeSecret(cfg.Channels.WhatsApp.AccessToken, EnvWhatsAppToken)

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	var check map[string]any
	if err := yaml.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("config validation failed (refusing to write corrupt data): %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"shopclaw.yaml",
		"shopclaw.yml",
		"configs/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// IsEnvReference reports whether s is an unexpanded ${VAR} or $VAR.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}

// AuditSecrets warns about secrets written in plain text in the config file.
func AuditSecrets(cfg *Config, logger *slog.Logger) {
	check := func(value, field, env string) {
		if value != "" && !IsEnvReference(value) && len(value) > 20 {
			logger.Warn("secret appears to be hardcoded in config",
				"field", field,
				"hint", fmt.Sprintf("use '${%s}' or `shopclaw secrets set`", env))
		}
	}
	check(cfg.API.APIKey, "api.api_key", EnvGeminiKey)
	check(cfg.Shopify.AccessToken, "shopify.access_token", EnvShopifyToken)
	check(cfg.Channels.WhatsApp.AccessToken, "channels.whatsapp.access_token", EnvWhatsAppToken)
}

// ---------- Internal ----------

// loadEnvFiles loads .env files. Existing variables are never overwritten.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR}, ${VAR:-default}, ${VAR:?error} and $VAR
// references with environment values. An unset ${VAR:?error} becomes the
// marker "ERROR:VAR:message" for expandEnvVarsWithValidation to report.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifier, value, bareVar := sub[1], sub[2], sub[3], sub[4]

		if bareVar != "" {
			if val, ok := os.LookupEnv(bareVar); ok {
				return val
			}
			return match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		switch modifier {
		case "?":
			if value == "" {
				value = "required environment variable not set"
			}
			return "ERROR:" + varName + ":" + value
		case "-":
			return value
		}
		return match
	})
}

// expandEnvVarsWithValidation is like expandEnvVars but returns an error
// if any ${VAR:?error} pattern has its variable unset.
func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	idx := strings.Index(result, "ERROR:")
	if idx == -1 {
		return result, nil
	}
	rest := result[idx+len("ERROR:"):]
	colon := strings.Index(rest, ":")
	if colon == -1 {
		return "", fmt.Errorf("config error: malformed error marker")
	}
	msg := rest[colon+1:]
	if nl := strings.IndexAny(msg, "\r\n"); nl != -1 {
		msg = msg[:nl]
	}
	return "", fmt.Errorf("config error: %s - %s", rest[:colon], strings.TrimSpace(msg))
}

// resolveSecrets fills empty or placeholder values from the environment
// and then from the OS keyring.
func resolveSecrets(cfg *Config) {
	fromEnv := func(dst *string, env string) {
		if *dst == "" || IsEnvReference(*dst) {
			if v := os.Getenv(env); v != "" {
				*dst = v
			}
		}
	}
	fromKeyring := func(dst *string, key string) {
		if *dst == "" || IsEnvReference(*dst) {
			if v := GetKeyring(key); v != "" {
				*dst = v
			}
		}
	}

	fromEnv(&cfg.Shopify.StoreDomain, EnvStoreURL)
	fromEnv(&cfg.Shopify.AccessToken, EnvShopifyToken)
	// The version variable only overrides the built-in default.
	if v := os.Getenv(EnvShopifyVersion); v != "" && cfg.Shopify.APIVersion == DefaultConfig().Shopify.APIVersion {
		cfg.Shopify.APIVersion = v
	}
	fromEnv(&cfg.API.APIKey, EnvGeminiKey)

	wa := &cfg.Channels.WhatsApp
	fromEnv(&wa.VerifyToken, EnvVerifyToken)
	fromEnv(&wa.AccessToken, EnvWhatsAppToken)
	fromEnv(&wa.PhoneNumberID, EnvWhatsAppPhoneID)
	if v := os.Getenv(EnvGraphVersion); v != "" {
		wa.GraphAPIVersion = v
	}
	fromEnv(&cfg.Channels.Instagram.VerifyToken, EnvVerifyToken)

	if !cfg.whatsappModeSet {
		switch strings.ToLower(os.Getenv(EnvSocialMockMode)) {
		case "false", "0", "no":
			wa.Mode = string(channels.ModeCloud)
		case "true", "1", "yes":
			wa.Mode = string(channels.ModeMock)
		}
	}

	if dsn := os.Getenv(EnvDatabaseURL); dsn != "" && cfg.Database.PostgreSQL.DSN == "" {
		cfg.Database.Backend = database.BackendPostgreSQL
		cfg.Database.PostgreSQL.DSN = dsn
	}

	fromKeyring(&cfg.API.APIKey, KeyringAPIKey)
	fromKeyring(&cfg.Shopify.AccessToken, KeyringShopifyToken)
	fromKeyring(&wa.AccessToken, KeyringWhatsAppToken)
}

// sanitizeSecret replaces a real secret with an env var reference for safe
// storage in config files.
func sanitizeSecret(value, envVar string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	return "${" + envVar + "}"
}

// checkFilePermissions warns if the config file is group or world readable.
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
			"fix", fmt.Sprintf("chmod 600 %s", path),
		)
	}
}
