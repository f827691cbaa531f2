package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Invoice is what the external commerce platform returns for a draft order.
type Invoice struct {
	URL        string
	TotalPrice string
}

// InvoiceCreator creates a payable draft order on the commerce platform.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req Request) (Invoice, error)
}

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, skip, limit int) ([]*Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error)
}

// EventPublisher announces persisted orders to downstream consumers.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, o *Order) error
}

// Observer receives one call per finished placement. Used for metrics.
type Observer func(outcome Outcome, elapsed time.Duration)

// DefaultPersistTimeout bounds the detached save.
const DefaultPersistTimeout = 10 * time.Second

// PipelineConfig wires the pipeline's collaborators. Invoices and Events
// are optional.
type PipelineConfig struct {
	Invoices       InvoiceCreator
	Repository     Repository
	Events         EventPublisher
	Observer       Observer
	PersistTimeout time.Duration
	Logger         *slog.Logger
}

// Pipeline places orders: an optional invoice call for card payments, then
// an unconditional local record.
type Pipeline struct {
	invoices       InvoiceCreator
	repo           Repository
	events         EventPublisher
	observe        Observer
	persistTimeout time.Duration
	logger         *slog.Logger
}

// NewPipeline creates a pipeline. Repository is required.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("orders: repository is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.PersistTimeout
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	return &Pipeline{
		invoices:       cfg.Invoices,
		repo:           cfg.Repository,
		events:         cfg.Events,
		observe:        cfg.Observer,
		persistTimeout: timeout,
		logger:         logger.With("component", "orders"),
	}, nil
}

// Place runs the placement protocol. It never returns an error; failures are
// folded into the Result.
func (p *Pipeline) Place(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	defer func() {
		if p.observe != nil {
			p.observe(res.Outcome, time.Since(start))
		}
	}()

	if err := req.Validate(); err != nil {
		return Result{
			Outcome:     OutcomeRejected,
			UserMessage: fmt.Sprintf(MessageRejected, err.Error()),
			Diagnostic:  err,
		}
	}

	var (
		invoice Invoice
		diag    error
	)
	if req.PaymentMethod == PaymentCreditCard {
		invoice, diag = p.createInvoice(ctx, req)
	}

	order := newOrder(req, invoice.URL, invoice.TotalPrice)

	// The invoice may already exist upstream, so the record is written even
	// when the caller has gone away.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.persistTimeout)
	defer cancel()
	if err := p.repo.Create(saveCtx, order); err != nil {
		p.logger.Error("order save failed",
			"phone", order.Phone, "payment_method", string(order.PaymentMethod), "error", err)
		return Result{
			Outcome:     OutcomeFailed,
			UserMessage: MessageSaveFailed,
			Diagnostic:  fmt.Errorf("save order: %w", err),
		}
	}

	p.logger.Info("order placed",
		"order_id", order.ID,
		"source", string(order.Source),
		"payment_method", string(order.PaymentMethod),
		"has_invoice", order.InvoiceURL != nil,
	)
	p.publish(saveCtx, order)

	return resultFor(order, diag)
}

func (p *Pipeline) createInvoice(ctx context.Context, req Request) (Invoice, error) {
	if p.invoices == nil {
		return Invoice{}, fmt.Errorf("no invoice creator configured")
	}
	inv, err := p.invoices.CreateInvoice(ctx, req)
	if err != nil {
		p.logger.Warn("invoice creation failed, recording order without link",
			"variant_id", req.VariantID, "error", err)
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	if inv.URL == "" {
		p.logger.Warn("invoice created without url", "variant_id", req.VariantID)
		return inv, fmt.Errorf("create invoice: empty invoice url")
	}
	return inv, nil
}

func (p *Pipeline) publish(ctx context.Context, o *Order) {
	if p.events == nil {
		return
	}
	if err := p.events.PublishOrderCreated(ctx, o); err != nil {
		p.logger.Warn("order event publish failed", "order_id", o.ID, "error", err)
	}
}

// List returns stored orders, newest first.
func (p *Pipeline) List(ctx context.Context, skip, limit int) ([]*Order, error) {
	return p.repo.List(ctx, skip, limit)
}

// UpdateStatus changes an order's status.
func (p *Pipeline) UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	o, err := p.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	p.logger.Info("order status updated", "order_id", id, "status", string(status))
	return o, nil
}
