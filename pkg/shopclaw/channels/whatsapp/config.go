// Package whatsapp delivers assistant replies over WhatsApp. Two transports
// are supported: the Meta Cloud API (webhook in, Graph API out) and a linked
// device paired by QR code through whatsmeow.
package whatsapp

import (
	"errors"
	"fmt"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"
)

// Config holds WhatsApp channel configuration.
type Config struct {
	// Mode is "cloud", "linked", "mock" or "disabled" (default: mock).
	Mode string `yaml:"mode"`

	// VerifyToken answers the Meta webhook verification handshake.
	VerifyToken string `yaml:"verify_token"`

	// AccessToken is the Cloud API bearer token.
	AccessToken string `yaml:"access_token"`

	// PhoneNumberID is the Cloud API sender phone number id.
	PhoneNumberID string `yaml:"phone_number_id"`

	// GraphAPIVersion is the Graph API version (default: v17.0).
	GraphAPIVersion string `yaml:"graph_api_version"`

	// SessionDir holds the linked-device session database.
	SessionDir string `yaml:"session_dir"`

	// GraphBaseURL overrides https://graph.facebook.com. Tests only.
	GraphBaseURL string `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:            string(channels.ModeMock),
		GraphAPIVersion: "v17.0",
		SessionDir:      "./data/whatsapp",
	}
}

// Effective returns the config with defaults applied.
func (c Config) Effective() Config {
	def := DefaultConfig()
	out := c
	if out.Mode == "" {
		out.Mode = def.Mode
	}
	if out.GraphAPIVersion == "" {
		out.GraphAPIVersion = def.GraphAPIVersion
	}
	if out.SessionDir == "" {
		out.SessionDir = def.SessionDir
	}
	return out
}

// Validate checks that the selected mode has what it needs. Cloud mode
// without credentials is an error rather than a silent fallback to mock.
func (c Config) Validate() error {
	mode, err := channels.ParseMode(c.Mode)
	if err != nil {
		return fmt.Errorf("channels.whatsapp: %w", err)
	}
	if mode == channels.ModeCloud {
		var missing []error
		if c.AccessToken == "" {
			missing = append(missing, errors.New("access_token is required in cloud mode"))
		}
		if c.PhoneNumberID == "" {
			missing = append(missing, errors.New("phone_number_id is required in cloud mode"))
		}
		if len(missing) > 0 {
			return fmt.Errorf("channels.whatsapp: %w", errors.Join(missing...))
		}
	}
	return nil
}
