package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"
)

const defaultGraphBaseURL = "https://graph.facebook.com"

// CloudSender sends text messages through the WhatsApp Cloud API.
type CloudSender struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCloudSender creates a Cloud API sender. cfg must pass Validate in
// cloud mode.
func NewCloudSender(cfg Config, logger *slog.Logger) *CloudSender {
	cfg = cfg.Effective()
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.GraphBaseURL
	if base == "" {
		base = defaultGraphBaseURL
	}
	return &CloudSender{
		endpoint:   fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(base, "/"), cfg.GraphAPIVersion, cfg.PhoneNumberID),
		token:      cfg.AccessToken,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger.With("component", "whatsapp", "mode", string(channels.ModeCloud)),
	}
}

// Name returns "whatsapp".
func (s *CloudSender) Name() string { return "whatsapp" }

type cloudTextMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Send posts a text message to the recipient phone number.
func (s *CloudSender) Send(ctx context.Context, to, text string) error {
	msg := cloudTextMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = text

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", channels.ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: graph api returned %d: %s", channels.ErrSendFailed, resp.StatusCode, respBody)
	}
	s.logger.Debug("message sent", "to", to)
	return nil
}

// webhookPayload is the Cloud API notification envelope.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook extracts every text message from a Cloud API notification.
// Status updates and non-text messages are ignored.
func ParseWebhook(body []byte) ([]*channels.IncomingMessage, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parsing whatsapp webhook: %w", err)
	}

	var out []*channels.IncomingMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				text := strings.TrimSpace(m.Text.Body)
				if m.From == "" || text == "" {
					continue
				}
				out = append(out, &channels.IncomingMessage{
					ID:        m.ID,
					Channel:   "whatsapp",
					From:      m.From,
					FromName:  names[m.From],
					Content:   text,
					Timestamp: unixSeconds(m.Timestamp),
				})
			}
		}
	}
	return out, nil
}

func unixSeconds(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now()
	}
	return time.Unix(sec, 0)
}
