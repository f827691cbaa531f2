// Package metrics exposes the assistant's Prometheus metrics. All methods
// are safe on a nil *Registry so callers can run with metrics disabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the collectors on a private Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	Messages        *prometheus.CounterVec
	LLMCalls        *prometheus.CounterVec
	LLMLatencySec   prometheus.Histogram
	ToolCalls       *prometheus.CounterVec
	Orders          *prometheus.CounterVec
	OrderLatencySec prometheus.Histogram
	Sessions        prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
}

// NewRegistry creates and registers every collector.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopclaw_messages_total",
		Help: "Customer messages handled, by channel.",
	}, []string{"channel"})
	llmCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopclaw_llm_calls_total",
		Help: "Reasoning backend calls, by result.",
	}, []string{"result"})
	llmLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopclaw_llm_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopclaw_tool_calls_total",
		Help: "Tool dispatches, by tool and status.",
	}, []string{"tool", "status"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopclaw_orders_total",
		Help: "Order placements, by outcome.",
	}, []string{"outcome"})
	orderLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopclaw_order_placement_seconds",
		Buckets: prometheus.DefBuckets,
	})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopclaw_sessions_active",
		Help: "Live conversation sessions.",
	})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopclaw_http_requests_total",
		Help: "Gateway requests, by route and status code.",
	}, []string{"route", "code"})

	r.MustRegister(messages, llmCalls, llmLatency, toolCalls, orders, orderLatency, sessions, httpRequests)
	return &Registry{
		reg:             r,
		Messages:        messages,
		LLMCalls:        llmCalls,
		LLMLatencySec:   llmLatency,
		ToolCalls:       toolCalls,
		Orders:          orders,
		OrderLatencySec: orderLatency,
		Sessions:        sessions,
		HTTPRequests:    httpRequests,
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveMessage counts an inbound customer message.
func (r *Registry) ObserveMessage(channel string) {
	if r == nil {
		return
	}
	r.Messages.WithLabelValues(channel).Inc()
}

// ObserveLLMCall records one backend call. result is "ok" or "error".
func (r *Registry) ObserveLLMCall(result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.LLMCalls.WithLabelValues(result).Inc()
	r.LLMLatencySec.Observe(elapsed.Seconds())
}

// ObserveToolCall counts a tool dispatch. status is "ok" or "error".
func (r *Registry) ObserveToolCall(tool, status string) {
	if r == nil {
		return
	}
	r.ToolCalls.WithLabelValues(tool, status).Inc()
}

// ObserveOrder records a finished placement.
func (r *Registry) ObserveOrder(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Orders.WithLabelValues(outcome).Inc()
	r.OrderLatencySec.Observe(elapsed.Seconds())
}

// SetSessions sets the live session gauge.
func (r *Registry) SetSessions(n int) {
	if r == nil {
		return
	}
	r.Sessions.Set(float64(n))
}

// ObserveHTTP counts a gateway response.
func (r *Registry) ObserveHTTP(route string, code int) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(route, http.StatusText(code)).Inc()
}
