package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels/instagram"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels/whatsapp"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
)

const (
	minQueryLength   = 2
	defaultListLimit = 100
	maxListLimit     = 500
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, map[string]string{"detail": msg}, status)
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "shopclaw sales assistant is running"}, http.StatusOK)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	shop, err := g.backend.ShopHealth(r.Context())
	if err != nil {
		g.logger.Warn("health check failed", "error", err)
		writeError(w, "shop is unreachable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{
		"status":    "active",
		"shop_name": shop.Name,
		"domain":    shop.Domain,
	}, http.StatusOK)
}

func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(q)) < minQueryLength {
		writeError(w, "q must be at least 2 characters", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]string{"result": g.backend.SearchProducts(r.Context(), q)}, http.StatusOK)
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, "message is required", http.StatusUnprocessableEntity)
		return
	}
	reply := g.backend.Chat(r.Context(), req.SessionID, req.Message)
	writeJSON(w, chatResponse{Response: reply.Text, SessionID: reply.SessionID}, http.StatusOK)
}

func (g *Gateway) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, err := intParam(q.Get("skip"), 0)
	if err != nil || skip < 0 {
		writeError(w, "skip must be a non-negative integer", http.StatusUnprocessableEntity)
		return
	}
	limit, err := intParam(q.Get("limit"), defaultListLimit)
	if err != nil || limit <= 0 {
		writeError(w, "limit must be a positive integer", http.StatusUnprocessableEntity)
		return
	}
	limit = min(limit, maxListLimit)

	list, err := g.backend.ListOrders(r.Context(), skip, limit)
	if err != nil {
		g.logger.Error("listing orders failed", "error", err)
		writeError(w, "could not list orders", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*orders.Order{}
	}
	writeJSON(w, list, http.StatusOK)
}

func (g *Gateway) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, "order id must be an integer", http.StatusUnprocessableEntity)
		return
	}

	raw := r.URL.Query().Get("status")
	if raw == "" {
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		raw = body.Status
	}
	status, err := orders.ParseStatus(raw)
	if err != nil {
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	o, err := g.backend.UpdateOrderStatus(r.Context(), id, status)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, "Order not found", http.StatusNotFound)
	case err != nil:
		writeError(w, "could not update order", http.StatusInternalServerError)
	default:
		writeJSON(w, o, http.StatusOK)
	}
}

// handleVerify answers the Meta subscription handshake.
func (g *Gateway) handleVerify(token func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		challenge, ok := channels.VerifySubscription(r.URL.Query(), token())
		if !ok {
			writeError(w, "Invalid verify token", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, challenge)
	}
}

func (g *Gateway) handleWhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	g.handleWebhook(w, r, "whatsapp", whatsapp.ParseWebhook, "received")
}

func (g *Gateway) handleInstagramWebhook(w http.ResponseWriter, r *http.Request) {
	g.handleWebhook(w, r, "instagram", instagram.ParseWebhook, "received_mg")
}

// handleWebhook acknowledges at once and answers the messages in the
// background, since Meta retries slow deliveries.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request, channel string,
	parse func([]byte) ([]*channels.IncomingMessage, error), ack string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, "could not read body", http.StatusBadRequest)
		return
	}
	msgs, err := parse(body)
	if err != nil {
		g.logger.Warn("webhook payload rejected", "channel", channel, "error", err)
		writeJSON(w, map[string]string{"status": "error"}, http.StatusOK)
		return
	}
	g.logger.Debug("webhook received", "channel", channel, "messages", len(msgs))
	g.dispatch(msgs)
	writeJSON(w, map[string]string{"status": ack}, http.StatusOK)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
