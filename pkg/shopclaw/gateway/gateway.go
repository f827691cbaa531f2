// Package gateway serves the shopclaw HTTP API: web chat, catalog search,
// order administration and the Meta messaging webhooks.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/copilot"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/metrics"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/shopify"
)

// Backend is what the gateway needs from the assistant.
type Backend interface {
	Chat(ctx context.Context, sessionID, text string) copilot.Reply
	SearchProducts(ctx context.Context, query string) string
	ShopHealth(ctx context.Context) (shopify.Shop, error)
	ListOrders(ctx context.Context, skip, limit int) ([]*orders.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status orders.Status) (*orders.Order, error)
	HandleIncoming(ctx context.Context, msg *channels.IncomingMessage) error
	WhatsAppVerifyToken() string
	InstagramVerifyToken() string
	Metrics() *metrics.Registry
}

// Gateway is the HTTP API server.
type Gateway struct {
	backend Backend
	config  copilot.GatewayConfig
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger

	// bg outlives individual requests; webhook work runs on it.
	bg       context.Context
	cancelBg context.CancelFunc
	inflight sync.WaitGroup
}

// New creates a gateway. Routes are registered immediately so Handler can
// be used without Start.
func New(backend Backend, cfg copilot.GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8000"
	}
	g := &Gateway{
		backend: backend,
		config:  cfg,
		logger:  logger.With("component", "gateway"),
	}
	g.bg, g.cancelBg = context.WithCancel(context.Background())
	g.handler = g.routes()
	return g
}

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET /api/v1/health", g.handleHealth)
	mux.HandleFunc("GET /api/v1/products/search", g.handleSearch)
	mux.HandleFunc("POST /api/v1/chat", g.handleChat)
	mux.HandleFunc("POST /api/v1/chat/", g.handleChat)

	mux.HandleFunc("GET /api/v1/admin/orders", g.handleListOrders)
	mux.HandleFunc("PUT /api/v1/admin/orders/{id}/status", g.handleUpdateStatus)

	mux.HandleFunc("GET /api/v1/webhooks/whatsapp", g.handleVerify(g.backend.WhatsAppVerifyToken))
	mux.HandleFunc("POST /api/v1/webhooks/whatsapp", g.handleWhatsAppWebhook)
	mux.HandleFunc("GET /api/v1/webhooks/instagram", g.handleVerify(g.backend.InstagramVerifyToken))
	mux.HandleFunc("POST /api/v1/webhooks/instagram", g.handleInstagramWebhook)

	if reg := g.backend.Metrics(); reg != nil {
		mux.Handle("GET /metrics", reg.Handler())
	}

	return g.securityHeadersMiddleware(
		g.metricsMiddleware(
			g.corsMiddleware(
				g.adminAuthMiddleware(
					g.bodyLimitMiddleware(mux)))))
}

// Handler returns the fully wrapped router.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Start listens in the background.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Address)
	if err != nil {
		return err
	}
	g.server = &http.Server{
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if g.config.AdminToken == "" {
		host, _, _ := net.SplitHostPort(g.config.Address)
		if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			g.logger.Warn("admin endpoints have no token and the gateway is not bound to loopback",
				"address", g.config.Address)
		}
	}

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", ln.Addr().String())
	return nil
}

// Stop shuts the server down and waits for background webhook work.
func (g *Gateway) Stop(ctx context.Context) error {
	var err error
	if g.server != nil {
		g.logger.Info("gateway stopping")
		err = g.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.logger.Warn("abandoning in-flight webhook replies")
	}
	g.cancelBg()
	return err
}

// dispatch processes channel messages after the webhook has been
// acknowledged. Messages from one sender run in payload order; different
// senders run concurrently.
func (g *Gateway) dispatch(msgs []*channels.IncomingMessage) {
	var order []string
	bySender := map[string][]*channels.IncomingMessage{}
	for _, msg := range msgs {
		key := msg.Channel + ":" + msg.From
		if _, ok := bySender[key]; !ok {
			order = append(order, key)
		}
		bySender[key] = append(bySender[key], msg)
	}

	for _, key := range order {
		queue := bySender[key]
		g.inflight.Add(1)
		go func() {
			defer g.inflight.Done()
			for _, msg := range queue {
				if err := g.backend.HandleIncoming(g.bg, msg); err != nil {
					g.logger.Warn("channel reply failed", "channel", msg.Channel, "from", msg.From, "error", err)
				}
			}
		}()
	}
}
