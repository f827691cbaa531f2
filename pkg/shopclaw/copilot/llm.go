// Package copilot – llm.go talks to the reasoning backend through an
// OpenAI-compatible chat completions API, with retry, backoff and model
// fallback.
package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ReasoningBackend produces the next assistant step for a conversation.
type ReasoningBackend interface {
	CompleteWithTools(ctx context.Context, systemPrompt string, history []Turn, tools []ToolDefinition) (*LLMResponse, error)
}

// ---------- Client ----------

// LLMClient handles communication with the backend API.
type LLMClient struct {
	baseURL    string
	apiKey     string
	model      string
	fallback   FallbackConfig
	httpClient *http.Client
	logger     *slog.Logger

	// cooldowns maps a rate-limited model to the time it may be retried.
	cooldownMu sync.Mutex
	cooldowns  map[string]time.Time
}

// NewLLMClient creates a backend client.
func NewLLMClient(api APIConfig, fallback FallbackConfig, logger *slog.Logger) *LLMClient {
	api = api.Effective()
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMClient{
		baseURL:    strings.TrimRight(api.BaseURL, "/"),
		apiKey:     api.APIKey,
		model:      api.Model,
		fallback:   fallback.Effective(),
		httpClient: &http.Client{Timeout: time.Duration(api.TimeoutSeconds) * time.Second},
		logger:     logger.With("component", "llm"),
		cooldowns:  make(map[string]time.Time),
	}
}

// Model returns the primary model.
func (c *LLMClient) Model() string { return c.model }

func (c *LLMClient) chatEndpoint() string {
	return c.baseURL + "/chat/completions"
}

// ---------- Wire Types ----------

type chatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"` // string or nil
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []chatMessage    `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ToolDefinition describes a tool the backend may call.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a callable function exposed to the backend.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents a tool invocation requested by the backend.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and serialized arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// LLMResponse holds the parsed response from a chat completion.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        LLMUsage
	ModelUsed    string
}

// LLMUsage holds token usage information from the API response.
type LLMUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ---------- Error Classification ----------

// LLMErrorKind classifies API errors for retry/fallback decisions.
type LLMErrorKind int

const (
	LLMErrorRetryable  LLMErrorKind = iota // generic retryable (transient 5xx)
	LLMErrorRateLimit                      // 429, respect Retry-After
	LLMErrorOverloaded                     // 529 or "overloaded" in body
	LLMErrorTimeout                        // request timeout / deadline exceeded
	LLMErrorAuth                           // 401, 403
	LLMErrorBilling                        // 402 or quota exhausted
	LLMErrorContext                        // context length exceeded
	LLMErrorBadRequest                     // 400
	LLMErrorFatal                          // everything else
)

// String returns a label for the error kind.
func (k LLMErrorKind) String() string {
	switch k {
	case LLMErrorRetryable:
		return "retryable"
	case LLMErrorRateLimit:
		return "rate_limit"
	case LLMErrorOverloaded:
		return "overloaded"
	case LLMErrorTimeout:
		return "timeout"
	case LLMErrorAuth:
		return "auth"
	case LLMErrorBilling:
		return "billing"
	case LLMErrorContext:
		return "context"
	case LLMErrorBadRequest:
		return "bad_request"
	case LLMErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// IsRetryableKind returns true if the error kind warrants retrying.
func (k LLMErrorKind) IsRetryableKind() bool {
	return k == LLMErrorRetryable || k == LLMErrorRateLimit || k == LLMErrorOverloaded || k == LLMErrorTimeout
}

// apiError captures HTTP status, body and optional Retry-After.
type apiError struct {
	statusCode    int
	body          string
	retryAfterSec int
	model         string
}

func (e *apiError) Error() string {
	if e.model != "" {
		return fmt.Sprintf("%s: API returned %d: %s", e.model, e.statusCode, truncate(e.body, 200))
	}
	return fmt.Sprintf("API returned %d: %s", e.statusCode, truncate(e.body, 200))
}

// ErrorKind classifies any error returned by the client. Transport errors
// and deadlines count as timeouts.
func ErrorKind(err error) LLMErrorKind {
	var apierr *apiError
	if errors.As(err, &apierr) {
		return classifyAPIError(apierr.statusCode, apierr.body)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return LLMErrorTimeout
	}
	return LLMErrorFatal
}

// classifyAPIError determines the error kind from status code and body.
func classifyAPIError(statusCode int, body string) LLMErrorKind {
	bodyLower := strings.ToLower(body)

	if strings.Contains(bodyLower, "context_length_exceeded") ||
		strings.Contains(bodyLower, "maximum context length") {
		return LLMErrorContext
	}

	if statusCode == 402 ||
		strings.Contains(bodyLower, "billing") ||
		strings.Contains(bodyLower, "insufficient_quota") ||
		strings.Contains(bodyLower, "payment required") {
		return LLMErrorBilling
	}

	if statusCode == 429 ||
		strings.Contains(bodyLower, "rate_limit") ||
		strings.Contains(bodyLower, "rate limit") ||
		strings.Contains(bodyLower, "resource_exhausted") ||
		strings.Contains(bodyLower, "too many requests") {
		return LLMErrorRateLimit
	}

	if statusCode == 529 ||
		strings.Contains(bodyLower, "overloaded") ||
		strings.Contains(bodyLower, "capacity") {
		return LLMErrorOverloaded
	}

	if statusCode == 408 || statusCode == 504 ||
		strings.Contains(bodyLower, "timeout") ||
		strings.Contains(bodyLower, "deadline") ||
		strings.Contains(bodyLower, "timed out") {
		return LLMErrorTimeout
	}

	switch statusCode {
	case 400:
		return LLMErrorBadRequest
	case 401, 403:
		return LLMErrorAuth
	default:
		if statusCode >= 500 {
			return LLMErrorRetryable
		}
		return LLMErrorFatal
	}
}

// ---------- Public Methods ----------

// CompleteWithTools sends the system prompt, the conversation and the tool
// catalog, with retry and fallback.
func (c *LLMClient) CompleteWithTools(ctx context.Context, systemPrompt string, history []Turn, tools []ToolDefinition) (*LLMResponse, error) {
	return c.CompleteWithFallback(ctx, buildMessages(systemPrompt, history), tools)
}

// buildMessages converts stored turns into chat messages.
func buildMessages(systemPrompt string, history []Turn) []chatMessage {
	msgs := make([]chatMessage, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, t := range history {
		switch t.Role {
		case RoleUser:
			msgs = append(msgs, chatMessage{Role: "user", Content: t.Content})
		case RoleAssistant:
			m := chatMessage{Role: "assistant", Content: t.Content}
			if t.ToolCall != nil {
				m.ToolCalls = []ToolCall{*t.ToolCall}
				if t.Content == "" {
					m.Content = nil
				}
			}
			msgs = append(msgs, m)
		case RoleTool:
			msgs = append(msgs, chatMessage{
				Role:       "tool",
				Content:    t.Content,
				ToolCallID: t.ToolCallID,
				Name:       t.ToolName,
			})
		}
	}
	return msgs
}

// completeOnce performs a single chat completion request.
func (c *LLMClient) completeOnce(ctx context.Context, model string, messages []chatMessage, tools []ToolDefinition) (*LLMResponse, error) {
	reqBody := chatRequest{Model: model, Messages: messages}
	if len(tools) > 0 {
		reqBody.Tools = tools
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatEndpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("sending chat completion",
		"model", model,
		"messages", len(messages),
		"tools", len(tools),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	bodyStr := string(respBody)

	if resp.StatusCode != http.StatusOK {
		apierr := &apiError{statusCode: resp.StatusCode, body: bodyStr, model: model}
		if resp.StatusCode == http.StatusTooManyRequests {
			if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && sec > 0 {
				apierr.retryAfterSec = sec
			}
		}
		c.logger.Error("API error",
			"model", model,
			"status", resp.StatusCode,
			"body", truncate(bodyStr, 500),
		)
		return nil, apierr
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, &apiError{statusCode: 400, body: chatResp.Error.Message, model: model}
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	choice := chatResp.Choices[0]
	c.logger.Info("chat completion done",
		"model", model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason,
		"tool_calls", len(choice.Message.ToolCalls),
	)

	return &LLMResponse{
		Content:      strings.TrimSpace(choice.Message.Content),
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		ModelUsed:    model,
		Usage: LLMUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}, nil
}

// isRetryableStatus reports whether statusCode is in the retry list.
// Transport errors (status 0) are always retried.
func (c *LLMClient) isRetryableStatus(statusCode int) bool {
	if statusCode == 0 {
		return true
	}
	for _, code := range c.fallback.RetryOnStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

// --- Rate-limit cooldown ---

// setCooldown records that a model hit a rate limit.
func (c *LLMClient) setCooldown(model string, retryAfterSec int) {
	d := time.Duration(retryAfterSec) * time.Second
	if d < 60*time.Second {
		d = 60 * time.Second
	}
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}

	c.cooldownMu.Lock()
	c.cooldowns[model] = time.Now().Add(d)
	c.cooldownMu.Unlock()

	c.logger.Info("model rate-limited, entering cooldown",
		"model", model,
		"cooldown_seconds", int(d.Seconds()),
	)
}

// isInCooldown returns true if the model is currently rate-limited.
func (c *LLMClient) isInCooldown(model string) bool {
	c.cooldownMu.Lock()
	defer c.cooldownMu.Unlock()
	until, ok := c.cooldowns[model]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.cooldowns, model)
		return false
	}
	return true
}

// CompleteWithFallback tries the primary model and then each fallback
// model, retrying retryable errors with exponential backoff.
func (c *LLMClient) CompleteWithFallback(ctx context.Context, messages []chatMessage, tools []ToolDefinition) (*LLMResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured. Set %s or run `shopclaw secrets set api-key`", EnvGeminiKey)
	}

	models := make([]string, 0, 1+len(c.fallback.Models))
	models = append(models, c.model)
	models = append(models, c.fallback.Models...)

	initialBackoff := time.Duration(c.fallback.InitialBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(c.fallback.MaxBackoffMs) * time.Millisecond

	var lastErr error
	for _, model := range models {
		if c.isInCooldown(model) {
			c.logger.Debug("skipping model in cooldown", "model", model)
			continue
		}

		for attempt := 0; attempt <= c.fallback.MaxRetries; attempt++ {
			resp, err := c.completeOnce(ctx, model, messages, tools)
			if err == nil {
				return resp, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return nil, fmt.Errorf("backend call cancelled: %w", err)
			}

			statusCode, retryAfterSec := 0, 0
			var apierr *apiError
			if errors.As(err, &apierr) {
				statusCode = apierr.statusCode
				retryAfterSec = apierr.retryAfterSec
			}
			kind := ErrorKind(err)
			if statusCode == 0 {
				kind = LLMErrorTimeout
			}

			// Rate limit: cool the model down and move on. With no other
			// model left, fall through to an ordinary retry.
			if kind == LLMErrorRateLimit && len(models) > 1 {
				if retryAfterSec <= 0 {
					retryAfterSec = 60
				}
				c.setCooldown(model, retryAfterSec)
				break
			}

			if !kind.IsRetryableKind() || !c.isRetryableStatus(statusCode) {
				c.logger.Warn("non-retryable backend error, failing immediately",
					"model", model,
					"attempt", attempt+1,
					"kind", kind.String(),
					"error", err,
				)
				return nil, err
			}

			if attempt >= c.fallback.MaxRetries {
				c.logger.Warn("exhausted retries for model, trying next fallback",
					"model", model,
					"attempts", attempt+1,
					"error", err,
				)
				break
			}

			backoff := initialBackoff << attempt
			if backoff > maxBackoff || backoff <= 0 {
				backoff = maxBackoff
			}
			if retryAfterSec > 0 {
				if server := min(time.Duration(retryAfterSec)*time.Second, maxBackoff); server > backoff {
					backoff = server
				}
			}

			c.logger.Info("retrying after retryable error",
				"model", model,
				"attempt", attempt+1,
				"kind", kind.String(),
				"backoff_ms", backoff.Milliseconds(),
			)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	if lastErr == nil {
		return nil, errors.New("all models are cooling down after rate limits")
	}
	return nil, fmt.Errorf("all models and retries exhausted: %w", lastErr)
}

// truncate shortens s to at most n bytes, appending "..." when cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
