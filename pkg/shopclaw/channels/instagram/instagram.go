// Package instagram receives Instagram Direct messages from the Meta webhook.
// Replies go through the mock sender; the Send API is not wired.
package instagram

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"
)

// Config holds Instagram channel configuration.
type Config struct {
	// Mode is "mock" or "disabled" (default: mock).
	Mode string `yaml:"mode"`

	// VerifyToken answers the Meta webhook verification handshake.
	VerifyToken string `yaml:"verify_token"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Mode: string(channels.ModeMock)}
}

// Validate rejects modes Instagram does not support.
func (c Config) Validate() error {
	mode, err := channels.ParseMode(c.Mode)
	if err != nil {
		return fmt.Errorf("channels.instagram: %w", err)
	}
	if mode != channels.ModeMock && mode != channels.ModeDisabled {
		return fmt.Errorf("channels.instagram: mode %q is not supported (want mock or disabled)", mode)
	}
	return nil
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Timestamp int64 `json:"timestamp"`
			Message   *struct {
				MID    string `json:"mid"`
				Text   string `json:"text"`
				IsEcho bool   `json:"is_echo"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// ParseWebhook extracts text messages from entry[].messaging[]. Echoes of
// the page's own messages are skipped.
func ParseWebhook(body []byte) ([]*channels.IncomingMessage, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parsing instagram webhook: %w", err)
	}
	var out []*channels.IncomingMessage
	for _, entry := range p.Entry {
		for _, m := range entry.Messaging {
			if m.Message == nil || m.Message.IsEcho || m.Sender.ID == "" {
				continue
			}
			text := strings.TrimSpace(m.Message.Text)
			if text == "" {
				continue
			}
			ts := time.Now()
			if m.Timestamp > 0 {
				ts = time.UnixMilli(m.Timestamp)
			}
			out = append(out, &channels.IncomingMessage{
				ID:        m.Message.MID,
				Channel:   "instagram",
				From:      m.Sender.ID,
				Content:   text,
				Timestamp: ts,
			})
		}
	}
	return out, nil
}
