// Package channels defines how the assistant talks to messaging platforms.
// A Sender delivers replies; a Channel additionally connects to the platform
// and emits incoming customer messages.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Sender delivers a text reply to a recipient on one platform.
type Sender interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Send delivers text to the recipient id used by the platform.
	Send(ctx context.Context, to, text string) error
}

// Channel is a Sender that also maintains a live connection and receives
// messages (e.g. a linked WhatsApp device).
type Channel interface {
	Sender

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool
}

// IncomingMessage is a customer message received from any platform.
type IncomingMessage struct {
	// ID is the platform message id.
	ID string

	// Channel identifies the source channel (e.g. "whatsapp").
	Channel string

	// From is the sender id on the platform (phone number, IGSID).
	From string

	// FromName is the sender display name, if known.
	FromName string

	// Content is the text body.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// Mode selects how a channel delivers replies.
type Mode string

const (
	// ModeCloud uses the hosted business API (WhatsApp Cloud API).
	ModeCloud Mode = "cloud"

	// ModeLinked pairs a linked device via QR code.
	ModeLinked Mode = "linked"

	// ModeMock logs replies instead of sending them.
	ModeMock Mode = "mock"

	// ModeDisabled turns the channel off.
	ModeDisabled Mode = "disabled"
)

// ParseMode validates a mode string. Empty means mock.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeMock, nil
	case ModeCloud, ModeLinked, ModeMock, ModeDisabled:
		return m, nil
	default:
		return "", fmt.Errorf("unknown channel mode %q (want cloud, linked, mock or disabled)", s)
	}
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
)

// LogSender is the mock delivery mode: replies are logged, never sent.
type LogSender struct {
	name   string
	logger *slog.Logger
}

// NewLogSender creates a mock sender for the named channel.
func NewLogSender(name string, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{name: name, logger: logger.With("component", name, "mode", string(ModeMock))}
}

// Name returns the channel name.
func (s *LogSender) Name() string { return s.name }

// Send logs the reply.
func (s *LogSender) Send(_ context.Context, to, text string) error {
	s.logger.Info("mock send", "to", to, "chars", len([]rune(text)), "text", text)
	return nil
}

// VerifySubscription answers a Meta webhook verification request. It returns
// the challenge to echo back and true when hub.mode is "subscribe" and the
// token matches.
func VerifySubscription(q url.Values, verifyToken string) (string, bool) {
	if verifyToken == "" {
		return "", false
	}
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != verifyToken {
		return "", false
	}
	return q.Get("hub.challenge"), true
}
