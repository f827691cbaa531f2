// Package copilot – assistant.go wires every component from Config and exposes
// the operations used by the gateway, the channels and the CLI.
package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/catalog"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels/whatsapp"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/database"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/metrics"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/scheduler"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/shopify"
)

// Scheduler job names.
const (
	JobSessionPrune = "session-prune"
	JobShopHealth   = "shop-health"
)

// Session id prefixes for channel conversations.
const (
	whatsappSessionPrefix  = "wa_"
	instagramSessionPrefix = "ig_"
)

// Option customizes New.
type Option func(*options)

type options struct {
	backend ReasoningBackend
}

// WithBackend replaces the HTTP reasoning backend.
func WithBackend(b ReasoningBackend) Option {
	return func(o *options) { o.backend = b }
}

// Assistant is the composed application.
type Assistant struct {
	config *Config
	logger *slog.Logger

	db        *database.DB
	shop      *shopify.Client
	catalog   *catalog.Service
	pipeline  *orders.Pipeline
	publisher *orders.KafkaPublisher
	tools     *ToolRegistry
	sessions  *MemorySessionStore
	orch      *Orchestrator
	scheduler *scheduler.Scheduler
	metrics   *metrics.Registry

	senders map[string]channels.Sender
	linked  *whatsapp.LinkedDevice

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds the assistant. It opens the database and applies the schema;
// call Stop to release it.
func New(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...Option) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &Assistant{
		config:  cfg,
		logger:  logger.With("component", "assistant"),
		senders: make(map[string]channels.Sender),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}

	shop, err := shopify.NewClient(cfg.Shopify, logger)
	if err != nil {
		return nil, fmt.Errorf("shopify: %w", err)
	}
	a.shop = shop
	a.catalog = catalog.NewService(shop, catalog.DefaultLimit, logger)

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.db = db

	pcfg := orders.PipelineConfig{
		Invoices:   shop,
		Repository: orders.NewSQLRepository(db),
		Logger:     logger,
		Observer: func(outcome orders.Outcome, elapsed time.Duration) {
			a.metrics.ObserveOrder(string(outcome), elapsed)
		},
	}
	if cfg.Events.Kafka.Enabled() {
		pub, err := orders.NewKafkaPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		a.publisher = pub
		pcfg.Events = pub
	}
	if a.pipeline, err = orders.NewPipeline(pcfg); err != nil {
		a.closeStores()
		return nil, err
	}

	a.tools = NewToolRegistry(logger)
	a.tools.SetObserver(func(tool string, ok bool) {
		status := "ok"
		if !ok {
			status = "error"
		}
		a.metrics.ObserveToolCall(tool, status)
	})
	if err := RegisterShopTools(a.tools, a.catalog, a.pipeline); err != nil {
		a.closeStores()
		return nil, err
	}

	sc := cfg.Sessions.Effective()
	a.sessions = NewMemorySessionStore(time.Duration(sc.TTLMinutes)*time.Minute, sc.MaxTurns)

	backend := o.backend
	if backend == nil {
		backend = NewLLMClient(cfg.API, cfg.Fallback, logger)
	}
	ac := cfg.Assistant.Effective()
	a.orch, err = NewOrchestrator(OrchestratorConfig{
		Backend:      backend,
		Tools:        a.tools,
		Sessions:     a.sessions,
		SystemPrompt: SystemPrompt(cfg.Name, ac.SystemPrompt),
		MaxToolDepth: ac.MaxToolDepth,
		RunTimeout:   time.Duration(ac.RunTimeoutSeconds) * time.Second,
		CallTimeout:  time.Duration(ac.LLMCallTimeoutSeconds) * time.Second,
		Logger:       logger,
		OnBackendCall: func(err error, elapsed time.Duration) {
			result := "ok"
			if err != nil {
				result = ErrorKind(err).String()
			}
			a.metrics.ObserveLLMCall(result, elapsed)
		},
	})
	if err != nil {
		a.closeStores()
		return nil, err
	}

	if err := a.setupChannels(); err != nil {
		a.closeStores()
		return nil, err
	}

	a.scheduler = scheduler.New(logger)
	if err := a.setupJobs(sc); err != nil {
		a.closeStores()
		return nil, err
	}
	return a, nil
}

func (a *Assistant) setupChannels() error {
	wa := a.config.Channels.WhatsApp.Effective()
	mode, err := channels.ParseMode(wa.Mode)
	if err != nil {
		return fmt.Errorf("channels.whatsapp: %w", err)
	}
	switch mode {
	case channels.ModeCloud:
		a.senders["whatsapp"] = whatsapp.NewCloudSender(wa, a.logger)
	case channels.ModeLinked:
		a.linked = whatsapp.NewLinkedDevice(wa, a.logger)
		a.senders["whatsapp"] = a.linked
	case channels.ModeMock:
		a.logger.Warn("whatsapp replies are logged, not sent", "mode", string(mode))
		a.senders["whatsapp"] = channels.NewLogSender("whatsapp", a.logger)
	}

	ig, err := channels.ParseMode(a.config.Channels.Instagram.Mode)
	if err != nil {
		return fmt.Errorf("channels.instagram: %w", err)
	}
	if ig == channels.ModeMock {
		a.logger.Warn("instagram replies are logged, not sent", "mode", string(ig))
		a.senders["instagram"] = channels.NewLogSender("instagram", a.logger)
	}
	return nil
}

func (a *Assistant) setupJobs(sc SessionConfig) error {
	if err := a.scheduler.Add(scheduler.Job{
		Name:     JobSessionPrune,
		Schedule: sc.PruneSchedule,
		Run: func(context.Context) error {
			n := a.sessions.Prune()
			a.metrics.SetSessions(a.sessions.Count())
			if n > 0 {
				a.logger.Info("idle sessions evicted", "count", n)
			}
			return nil
		},
	}); err != nil {
		return err
	}
	if strings.EqualFold(sc.HealthSchedule, "off") {
		return nil
	}
	return a.scheduler.Add(scheduler.Job{
		Name:     JobShopHealth,
		Schedule: sc.HealthSchedule,
		Timeout:  30 * time.Second,
		Run: func(ctx context.Context) error {
			_, err := a.shop.CheckConnection(ctx)
			return err
		},
	})
}

// Start runs the scheduler and connects the linked WhatsApp device.
func (a *Assistant) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.logger.Info("starting shopclaw",
		"name", a.config.Name,
		"database", string(a.db.Backend),
		"senders", len(a.senders),
		"events", a.publisher != nil,
	)
	a.scheduler.Start(ctx)

	if a.linked != nil {
		if err := a.linked.Connect(ctx); err != nil {
			return fmt.Errorf("whatsapp: %w", err)
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.receiveLoop(ctx, a.linked)
		}()
	}
	return nil
}

func (a *Assistant) receiveLoop(ctx context.Context, ch channels.Channel) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch.Receive():
			if !ok {
				return
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				if err := a.HandleIncoming(ctx, msg); err != nil {
					a.logger.Warn("reply not delivered", "channel", msg.Channel, "error", err)
				}
			}()
		}
	}
}

// Stop shuts the assistant down and waits for in-flight channel work.
func (a *Assistant) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.linked != nil {
		if err := a.linked.Disconnect(); err != nil {
			a.logger.Warn("whatsapp disconnect failed", "error", err)
		}
	}
	a.wg.Wait()
	a.closeStores()
	a.logger.Info("stopped")
}

func (a *Assistant) closeStores() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("closing kafka writer failed", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing database failed", "error", err)
		}
	}
}

// Chat handles a web or CLI message.
func (a *Assistant) Chat(ctx context.Context, sessionID, text string) Reply {
	a.metrics.ObserveMessage("web")
	reply := a.orch.HandleMessage(ctx, Inbound{SessionID: sessionID, Text: text, Source: orders.SourceWeb})
	a.metrics.SetSessions(a.sessions.Count())
	return reply
}

// HandleIncoming answers a channel message and sends the reply through the
// channel's sender.
func (a *Assistant) HandleIncoming(ctx context.Context, msg *channels.IncomingMessage) error {
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil
	}
	var (
		prefix string
		source orders.Source
	)
	switch msg.Channel {
	case "whatsapp":
		prefix, source = whatsappSessionPrefix, orders.SourceWhatsApp
	case "instagram":
		prefix, source = instagramSessionPrefix, orders.SourceInstagram
	default:
		return fmt.Errorf("unknown channel %q", msg.Channel)
	}

	a.metrics.ObserveMessage(msg.Channel)
	reply := a.orch.HandleMessage(ctx, Inbound{
		SessionID: prefix + msg.From,
		Text:      msg.Content,
		Source:    source,
	})
	a.metrics.SetSessions(a.sessions.Count())

	sender, ok := a.senders[msg.Channel]
	if !ok {
		a.logger.Info("channel disabled, reply dropped", "channel", msg.Channel, "to", msg.From)
		return nil
	}
	if err := sender.Send(ctx, msg.From, reply.Text); err != nil {
		return fmt.Errorf("%s send: %w", msg.Channel, err)
	}
	return nil
}

// SearchProducts runs a catalog search outside a conversation.
func (a *Assistant) SearchProducts(ctx context.Context, query string) string {
	return a.catalog.Search(ctx, query)
}

// ShopHealth checks the Shopify connection.
func (a *Assistant) ShopHealth(ctx context.Context) (shopify.Shop, error) {
	return a.shop.CheckConnection(ctx)
}

// ListOrders returns recorded orders, newest first.
func (a *Assistant) ListOrders(ctx context.Context, skip, limit int) ([]*orders.Order, error) {
	return a.pipeline.List(ctx, skip, limit)
}

// UpdateOrderStatus changes an order's status. A missing order yields
// orders.ErrNotFound.
func (a *Assistant) UpdateOrderStatus(ctx context.Context, id int64, status orders.Status) (*orders.Order, error) {
	o, err := a.pipeline.UpdateStatus(ctx, id, status)
	if err != nil && !errors.Is(err, orders.ErrNotFound) {
		a.logger.Error("order status update failed", "order_id", id, "error", err)
	}
	return o, err
}

// WhatsAppVerifyToken returns the webhook verify token.
func (a *Assistant) WhatsAppVerifyToken() string { return a.config.Channels.WhatsApp.VerifyToken }

// InstagramVerifyToken returns the webhook verify token.
func (a *Assistant) InstagramVerifyToken() string { return a.config.Channels.Instagram.VerifyToken }

// Metrics returns the registry, or nil when metrics are disabled.
func (a *Assistant) Metrics() *metrics.Registry { return a.metrics }

// Sessions exposes the session store.
func (a *Assistant) Sessions() *MemorySessionStore { return a.sessions }

// JobStatus reports the scheduler's job history.
func (a *Assistant) JobStatus() []scheduler.JobStatus { return a.scheduler.Status() }
