package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for session store.
)

// QREvent is emitted while a linked device waits to be paired.
type QREvent struct {
	// Type is "code", "success", "timeout" or "error".
	Type string `json:"type"`
	// Code is the raw QR payload (only for Type == "code").
	Code string `json:"code,omitempty"`
}

// LinkedDevice is a WhatsApp account paired as a linked device. It both
// receives customer messages and sends replies.
type LinkedDevice struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	messages       chan *channels.IncomingMessage
	messagesClosed atomic.Bool
	connected      atomic.Bool

	qrMu sync.Mutex
	qrFn func(QREvent)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewLinkedDevice creates a linked-device channel. Call Connect to start it.
func NewLinkedDevice(cfg Config, logger *slog.Logger) *LinkedDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkedDevice{
		cfg:      cfg.Effective(),
		logger:   logger.With("component", "whatsapp", "mode", string(channels.ModeLinked)),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// OnQR registers a callback for pairing events. Without one, QR codes are
// written to the log.
func (d *LinkedDevice) OnQR(fn func(QREvent)) {
	d.qrMu.Lock()
	d.qrFn = fn
	d.qrMu.Unlock()
}

// Name returns "whatsapp".
func (d *LinkedDevice) Name() string { return "whatsapp" }

// IsConnected reports whether the device is logged in and connected.
func (d *LinkedDevice) IsConnected() bool { return d.connected.Load() }

// Receive returns incoming customer messages.
func (d *LinkedDevice) Receive() <-chan *channels.IncomingMessage { return d.messages }

// Connect opens the session store and connects. With no stored session the
// QR pairing flow runs in the background so startup is not blocked.
func (d *LinkedDevice) Connect(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := os.MkdirAll(d.cfg.SessionDir, 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	dbPath := filepath.Join(d.cfg.SessionDir, "whatsapp.db")
	container, err := sqlstore.New(d.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := firstDevice(d.ctx, container)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	store.SetOSInfo("ShopClaw", [3]uint32{1, 0, 0})
	d.client = whatsmeow.NewClient(device, waLog.Noop)
	d.client.AddEventHandler(d.handleEvent)
	d.client.EnableAutoReconnect = true

	if d.client.Store.ID == nil {
		d.logger.Info("no linked session, waiting for QR pairing")
		go func() {
			if err := d.pair(d.ctx); err != nil {
				d.logger.Warn("QR pairing did not complete", "error", err)
			}
		}()
		return nil
	}

	if err := d.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	d.connected.Store(true)
	d.logger.Info("connected (existing session)", "jid", d.client.Store.ID.String())
	return nil
}

// Disconnect closes the connection and the message stream.
func (d *LinkedDevice) Disconnect() error {
	d.connected.Store(false)
	if d.cancel != nil {
		d.cancel()
	}
	if d.client != nil {
		d.client.Disconnect()
	}
	if d.messagesClosed.CompareAndSwap(false, true) {
		close(d.messages)
	}
	d.logger.Info("disconnected")
	return nil
}

// Send delivers a text message to a phone number or JID.
func (d *LinkedDevice) Send(ctx context.Context, to, text string) error {
	if !d.connected.Load() || d.client == nil {
		return channels.ErrChannelDisconnected
	}
	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}
	if _, err := d.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)}); err != nil {
		return fmt.Errorf("%w: %v", channels.ErrSendFailed, err)
	}
	return nil
}

func firstDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

func (d *LinkedDevice) pair(ctx context.Context) error {
	qrChan, err := d.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := d.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return nil
			}
			switch evt.Event {
			case "code":
				d.emitQR(QREvent{Type: "code", Code: evt.Code})
			case "success":
				d.connected.Store(true)
				d.emitQR(QREvent{Type: "success"})
				d.logger.Info("device linked")
				return nil
			case "timeout":
				d.emitQR(QREvent{Type: "timeout"})
				return fmt.Errorf("QR code expired")
			default:
				d.emitQR(QREvent{Type: "error"})
				return fmt.Errorf("pairing failed: %s", evt.Event)
			}
		}
	}
}

func (d *LinkedDevice) emitQR(evt QREvent) {
	d.qrMu.Lock()
	fn := d.qrFn
	d.qrMu.Unlock()
	if fn != nil {
		fn(evt)
		return
	}
	if evt.Type == "code" {
		d.logger.Info("scan QR code in WhatsApp > Linked devices", "code", evt.Code)
	}
}

func (d *LinkedDevice) handleEvent(raw any) {
	switch evt := raw.(type) {
	case *events.Message:
		if msg := incomingFromEvent(evt); msg != nil {
			d.emit(msg)
		}
	case *events.Connected:
		d.connected.Store(true)
	case *events.Disconnected:
		d.connected.Store(false)
		d.logger.Warn("connection lost, auto-reconnect enabled")
	case *events.LoggedOut:
		d.connected.Store(false)
		d.logger.Error("device logged out, QR pairing required on next start")
	}
}

// incomingFromEvent converts a whatsmeow message into an IncomingMessage.
// Own messages, broadcasts, groups and non-text content yield nil.
func incomingFromEvent(evt *events.Message) *channels.IncomingMessage {
	if evt.Info.IsFromMe || evt.Info.IsGroup || evt.Info.Chat.Server == types.BroadcastServer {
		return nil
	}
	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      evt.Info.Sender.User,
		FromName:  evt.Info.PushName,
		Content:   text,
		Timestamp: evt.Info.Timestamp,
	}
}

func (d *LinkedDevice) emit(msg *channels.IncomingMessage) {
	if d.messagesClosed.Load() {
		return
	}
	select {
	case d.messages <- msg:
	case <-time.After(time.Second):
		d.logger.Warn("message channel full, dropping message", "from", msg.From)
	}
}

// parseJID accepts a full JID or a bare phone number.
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
