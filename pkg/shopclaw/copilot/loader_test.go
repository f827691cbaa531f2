package copilot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/database"
)

func TestMain(m *testing.M) {
	// Keep tests off the real OS keyring.
	keyring.MockInit()
	os.Exit(m.Run())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SHOPCLAW_TEST_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${SHOPCLAW_TEST_SET}", "value"},
		{"$SHOPCLAW_TEST_SET", "value"},
		{"${SHOPCLAW_TEST_UNSET:-fallback}", "fallback"},
		{"${SHOPCLAW_TEST_SET:-fallback}", "value"},
		{"${SHOPCLAW_TEST_UNSET}", "${SHOPCLAW_TEST_UNSET}"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandEnvVarsWithValidation_Required(t *testing.T) {
	_, err := expandEnvVarsWithValidation("key: ${SHOPCLAW_TEST_MISSING:?set the key}\nother: x\n")
	if err == nil {
		t.Fatal("expected error for unset required variable")
	}
	if !strings.Contains(err.Error(), "SHOPCLAW_TEST_MISSING - set the key") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("SHOPCLAW_TEST_SHOP", "moda-masal.myshopify.com")
	t.Setenv(EnvGeminiKey, "gemini-secret")
	t.Setenv(EnvDatabaseURL, "")

	path := writeConfig(t, `
name: Test Butik
shopify:
  store_domain: ${SHOPCLAW_TEST_SHOP}
assistant:
  max_tool_depth: 3
channels:
  whatsapp:
    mode: disabled
`)
	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}
	if cfg.Name != "Test Butik" || cfg.Shopify.StoreDomain != "moda-masal.myshopify.com" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.API.APIKey != "gemini-secret" {
		t.Errorf("APIKey = %q, want value from %s", cfg.API.APIKey, EnvGeminiKey)
	}
	if cfg.Assistant.MaxToolDepth != 3 {
		t.Errorf("MaxToolDepth = %d", cfg.Assistant.MaxToolDepth)
	}
	if cfg.Sessions.MaxTurns != DefaultMaxTurns {
		t.Errorf("defaults not kept: MaxTurns = %d", cfg.Sessions.MaxTurns)
	}
	if cfg.Database.Backend != database.BackendSQLite {
		t.Errorf("Backend = %q", cfg.Database.Backend)
	}
}

func TestSocialMockMode(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  string
		want string
	}{
		{"env selects cloud", "name: x\n", "false", string(channels.ModeCloud)},
		{"env selects mock", "name: x\n", "true", string(channels.ModeMock)},
		{"yaml wins over env", "channels:\n  whatsapp:\n    mode: disabled\n", "false", string(channels.ModeDisabled)},
		{"unset keeps default", "name: x\n", "", string(channels.ModeMock)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvSocialMockMode, tt.env)
			cfg, err := LoadConfigFromFile(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Channels.WhatsApp.Mode != tt.want {
				t.Errorf("mode = %q, want %q", cfg.Channels.WhatsApp.Mode, tt.want)
			}
		})
	}
}

func TestDatabaseURLSelectsPostgres(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "postgres://u:p@localhost/shop")

	cfg := LoadConfigFromEnv()
	if cfg.Database.Backend != database.BackendPostgreSQL {
		t.Errorf("Backend = %q", cfg.Database.Backend)
	}
	if cfg.Database.PostgreSQL.DSN != "postgres://u:p@localhost/shop" {
		t.Errorf("DSN = %q", cfg.Database.PostgreSQL.DSN)
	}
}

func TestKeyringIsLastResort(t *testing.T) {
	t.Setenv(EnvShopifyToken, "")
	t.Setenv(EnvGeminiKey, "from-env")

	if err := StoreKeyring(KeyringShopifyToken, "from-keyring"); err != nil {
		t.Fatal(err)
	}
	if err := StoreKeyring(KeyringAPIKey, "ignored"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = DeleteKeyring(KeyringShopifyToken)
		_ = DeleteKeyring(KeyringAPIKey)
	})

	cfg := LoadConfigFromEnv()
	if cfg.Shopify.AccessToken != "from-keyring" {
		t.Errorf("AccessToken = %q", cfg.Shopify.AccessToken)
	}
	if cfg.API.APIKey != "from-env" {
		t.Errorf("APIKey = %q, env must win over keyring", cfg.API.APIKey)
	}
}

func TestSaveConfigToFile(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.API.APIKey = "real-secret-value"
	cfg.Shopify.StoreDomain = "moda.myshopify.com"
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatalf("SaveConfigToFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %04o, want 0600", perm)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "real-secret-value") {
		t.Error("secret written in plain text")
	}
	if !strings.Contains(string(data), "${"+EnvGeminiKey+"}") {
		t.Errorf("missing env reference in:\n%s", data)
	}
	if cfg.API.APIKey != "real-secret-value" {
		t.Error("SaveConfigToFile mutated the caller's config")
	}

	parsed, err := ParseConfig(data)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Shopify.StoreDomain != "moda.myshopify.com" {
		t.Errorf("round trip lost store domain: %q", parsed.Shopify.StoreDomain)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"scheme in domain", func(c *Config) { c.Shopify.StoreDomain = "https://x.myshopify.com" }, "store_domain"},
		{"bad backend", func(c *Config) { c.Database.Backend = "mysql" }, "database.backend"},
		{"cloud without token", func(c *Config) { c.Channels.WhatsApp.Mode = "cloud" }, "whatsapp"},
		{"instagram cloud", func(c *Config) { c.Channels.Instagram.Mode = "cloud" }, "instagram"},
		{"kafka without topic", func(c *Config) {
			c.Events.Kafka.Brokers = []string{"localhost:9092"}
			c.Events.Kafka.Topic = ""
		}, "topic"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	t.Parallel()

	p := SystemPrompt("Butik Ada", "")
	if !strings.Contains(p, "Butik Ada") || strings.Contains(p, shopNamePlaceholder) {
		t.Errorf("placeholder not expanded")
	}
	if !strings.Contains(p, ToolCreateDraftOrder) || !strings.Contains(p, "Stoklarımızda mevcuttur") {
		t.Error("persona rules missing")
	}
	if got := SystemPrompt("X", "Sen {{shop}} asistanısın"); got != "Sen X asistanısın" {
		t.Errorf("custom prompt = %q", got)
	}
}
