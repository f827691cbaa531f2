// Package copilot – orchestrator.go drives one customer message through the
// backend/tool loop until a final reply is produced.
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
)

// DefaultMaxToolDepth caps tool calls per customer message.
const DefaultMaxToolDepth = 5

// Fixed replies.
const (
	MessageTechnicalDifficulty = "Şu anda teknik bir sorun yaşıyoruz 🙏 Lütfen birkaç dakika sonra tekrar deneyiniz."
	MessageApology             = "Üzgünüm efendim isteğinizi şu anda tamamlayamadım 🌸 Lütfen tekrar yazar mısınız?"
)

// State is a step of the conversation loop.
type State int

const (
	StateAwaitingModel State = iota
	StateToolRequested
	StateToolDispatched
	StateFinal
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateToolRequested:
		return "tool_requested"
	case StateToolDispatched:
		return "tool_dispatched"
	case StateFinal:
		return "final"
	default:
		return "unknown"
	}
}

// ReplyOutcome says how a message run ended.
type ReplyOutcome string

const (
	ReplyAnswered      ReplyOutcome = "answered"
	ReplyBackendError  ReplyOutcome = "backend_error"
	ReplyDepthExceeded ReplyOutcome = "depth_exceeded"
	ReplyEmpty         ReplyOutcome = "empty_reply"
	ReplyUnavailable   ReplyOutcome = "unavailable"
)

// Inbound is a customer message.
type Inbound struct {
	// SessionID is empty for a new conversation.
	SessionID string
	Text      string
	Source    orders.Source
}

// Reply is what the customer sees.
type Reply struct {
	SessionID string       `json:"session_id"`
	Text      string       `json:"response"`
	Outcome   ReplyOutcome `json:"outcome"`
}

// OrchestratorConfig wires the orchestrator.
type OrchestratorConfig struct {
	Backend      ReasoningBackend
	Tools        *ToolRegistry
	Sessions     SessionStore
	SystemPrompt string
	MaxToolDepth int
	RunTimeout   time.Duration
	CallTimeout  time.Duration
	Logger       *slog.Logger

	// OnBackendCall is invoked after every backend call. Optional.
	OnBackendCall func(err error, elapsed time.Duration)
}

// Orchestrator is the per-message state machine.
type Orchestrator struct {
	backend      ReasoningBackend
	tools        *ToolRegistry
	sessions     SessionStore
	systemPrompt string
	maxDepth     int
	runTimeout   time.Duration
	callTimeout  time.Duration
	onCall       func(error, time.Duration)
	logger       *slog.Logger
}

// NewOrchestrator creates an orchestrator. Backend, Tools and Sessions are
// required.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Backend == nil || cfg.Tools == nil || cfg.Sessions == nil {
		return nil, fmt.Errorf("orchestrator needs a backend, a tool registry and a session store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		backend:      cfg.Backend,
		tools:        cfg.Tools,
		sessions:     cfg.Sessions,
		systemPrompt: cfg.SystemPrompt,
		maxDepth:     cfg.MaxToolDepth,
		runTimeout:   cfg.RunTimeout,
		callTimeout:  cfg.CallTimeout,
		onCall:       cfg.OnBackendCall,
		logger:       logger.With("component", "orchestrator"),
	}
	if o.maxDepth <= 0 {
		o.maxDepth = DefaultMaxToolDepth
	}
	if o.runTimeout <= 0 {
		o.runTimeout = 2 * time.Minute
	}
	if o.callTimeout <= 0 {
		o.callTimeout = time.Minute
	}
	return o, nil
}

// HandleMessage processes one customer message. It always returns a reply;
// failures become one of the fixed messages and are recorded in the
// session so the conversation stays usable.
func (o *Orchestrator) HandleMessage(ctx context.Context, in Inbound) Reply {
	id, _ := o.sessions.GetOrCreate(in.SessionID)
	logger := o.logger.With("session", id)

	unlock, err := o.sessions.Lock(ctx, id)
	if err != nil {
		logger.Warn("could not acquire session", "error", err)
		return Reply{SessionID: id, Text: MessageTechnicalDifficulty, Outcome: ReplyUnavailable}
	}
	defer unlock()

	runCtx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()
	runCtx = ContextWithOrderSource(ContextWithSession(runCtx, id), in.Source)

	if err := o.sessions.Append(id, Turn{Role: RoleUser, Content: in.Text}); err != nil {
		logger.Error("recording user turn failed", "error", err)
		return Reply{SessionID: id, Text: MessageTechnicalDifficulty, Outcome: ReplyUnavailable}
	}

	start := time.Now()
	var (
		state = StateAwaitingModel
		resp  *LLMResponse
		call  ToolCall
		depth int
	)
	for {
		switch state {
		case StateAwaitingModel:
			resp, err = o.callBackend(runCtx, id)
			if err != nil {
				logger.Error("backend call failed", "depth", depth, "kind", ErrorKind(err).String(), "error", err)
				return o.finish(id, MessageTechnicalDifficulty, ReplyBackendError)
			}
			if len(resp.ToolCalls) == 0 {
				state = StateFinal
			} else {
				state = StateToolRequested
			}

		case StateToolRequested:
			if depth >= o.maxDepth {
				logger.Warn("tool depth limit reached", "max_depth", o.maxDepth)
				return o.finish(id, MessageApology, ReplyDepthExceeded)
			}
			if n := len(resp.ToolCalls); n > 1 {
				logger.Warn("multiple tool calls in one step, only the first is run", "requested", n)
			}
			call = resp.ToolCalls[0]
			if call.ID == "" {
				call.ID = "call_" + uuid.NewString()
			}
			if call.Type == "" {
				call.Type = "function"
			}
			if err := o.sessions.Append(id, Turn{Role: RoleAssistant, Content: resp.Content, ToolCall: &call}); err != nil {
				logger.Error("recording tool call failed", "error", err)
				return Reply{SessionID: id, Text: MessageTechnicalDifficulty, Outcome: ReplyUnavailable}
			}
			state = StateToolDispatched

		case StateToolDispatched:
			result := o.tools.Dispatch(runCtx, call)
			depth++
			if err := o.sessions.Append(id, Turn{
				Role:       RoleTool,
				Content:    result.Content,
				ToolCallID: call.ID,
				ToolName:   call.Function.Name,
			}); err != nil {
				logger.Error("recording tool result failed", "error", err)
				return Reply{SessionID: id, Text: MessageTechnicalDifficulty, Outcome: ReplyUnavailable}
			}
			state = StateAwaitingModel

		case StateFinal:
			text := strings.TrimSpace(resp.Content)
			if text == "" {
				logger.Warn("backend returned an empty reply")
				return o.finish(id, MessageApology, ReplyEmpty)
			}
			logger.Info("message handled",
				"tool_calls", depth,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return o.finish(id, text, ReplyAnswered)
		}
	}
}

func (o *Orchestrator) callBackend(ctx context.Context, id string) (*LLMResponse, error) {
	history, err := o.sessions.History(id)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.backend.CompleteWithTools(callCtx, o.systemPrompt, history, o.tools.Definitions())
	if o.onCall != nil {
		o.onCall(err, time.Since(start))
	}
	if err == nil && resp == nil {
		err = fmt.Errorf("backend returned no response")
	}
	return resp, err
}

// finish records the assistant reply and returns it.
func (o *Orchestrator) finish(id, text string, outcome ReplyOutcome) Reply {
	if err := o.sessions.Append(id, Turn{Role: RoleAssistant, Content: text}); err != nil {
		o.logger.Error("recording assistant turn failed", "session", id, "error", err)
	}
	return Reply{SessionID: id, Text: text, Outcome: outcome}
}
