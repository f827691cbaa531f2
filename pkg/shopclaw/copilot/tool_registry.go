// Package copilot – tool_registry.go holds the tools the backend may call and
// dispatches tool calls to their handlers.
package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
)

// ToolHandlerFunc executes a tool with parsed arguments.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// ToolResult is the outcome of one dispatch. Content is always set: on
// failure it is the JSON error document fed back to the backend.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

type registeredTool struct {
	def      ToolDefinition
	required []string
	handler  ToolHandlerFunc
}

// ToolRegistry maps tool names to handlers.
type ToolRegistry struct {
	mu       sync.RWMutex
	tools    map[string]*registeredTool
	order    []string
	logger   *slog.Logger
	observer func(tool string, ok bool)
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		tools:  make(map[string]*registeredTool),
		logger: logger.With("component", "tools"),
	}
}

// SetObserver installs a callback invoked after every dispatch.
func (r *ToolRegistry) SetObserver(fn func(tool string, ok bool)) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// Register adds a tool. required lists argument names that must be present
// and non-empty before the handler runs.
func (r *ToolRegistry) Register(def ToolDefinition, required []string, handler ToolHandlerFunc) error {
	name := def.Function.Name
	if name == "" || handler == nil {
		return fmt.Errorf("tool registration needs a name and a handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = &registeredTool{def: def, required: required, handler: handler}
	r.order = append(r.order, name)
	return nil
}

// Definitions returns the tool catalog in registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Dispatch runs a tool call. Errors never escape: unknown tools, bad
// arguments and handler failures all become error results.
func (r *ToolRegistry) Dispatch(ctx context.Context, call ToolCall) ToolResult {
	name := call.Function.Name
	res := ToolResult{CallID: call.ID, Name: name}

	r.mu.RLock()
	tool, ok := r.tools[name]
	observe := r.observer
	r.mu.RUnlock()

	start := time.Now()
	content, err := r.run(ctx, tool, ok, call)
	if err != nil {
		res.Content = formatToolError(name, err)
		res.IsError = true
		r.logger.Warn("tool failed",
			"tool", name,
			"session", SessionIDFromContext(ctx),
			"error", err,
		)
	} else {
		res.Content = content
		r.logger.Info("tool executed",
			"tool", name,
			"session", SessionIDFromContext(ctx),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	if observe != nil {
		observe(name, !res.IsError)
	}
	return res
}

func (r *ToolRegistry) run(ctx context.Context, tool *registeredTool, known bool, call ToolCall) (string, error) {
	if !known {
		return "", fmt.Errorf("unknown tool %q", call.Function.Name)
	}
	args, err := parseToolArgs(call.Function.Arguments)
	if err != nil {
		return "", err
	}
	var missing []string
	for _, key := range tool.required {
		if isEmptyArg(args[key]) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required arguments: %s", strings.Join(missing, ", "))
	}
	return tool.handler(ctx, args)
}

func isEmptyArg(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

// ---------- Context ----------

type ctxKeySessionID struct{}

type ctxKeyOrderSource struct{}

// ContextWithSession returns a new context carrying the given session ID.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID{}, sessionID)
}

// SessionIDFromContext extracts the session ID, or "".
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySessionID{}).(string); ok {
		return v
	}
	return ""
}

// ContextWithOrderSource records the channel a conversation came from, so
// orders placed by tools are attributed to it.
func ContextWithOrderSource(ctx context.Context, src orders.Source) context.Context {
	return context.WithValue(ctx, ctxKeyOrderSource{}, src)
}

// OrderSourceFromContext extracts the order source, defaulting to Web.
func OrderSourceFromContext(ctx context.Context) orders.Source {
	if v, ok := ctx.Value(ctxKeyOrderSource{}).(orders.Source); ok && v != "" {
		return v
	}
	return orders.SourceWeb
}

// ---------- Helpers ----------

// MakeToolDefinition builds a function tool definition from a JSON schema.
func MakeToolDefinition(name, description string, params map[string]any) ToolDefinition {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	if params != nil {
		schema = params
	}
	schemaJSON, _ := json.Marshal(schema)
	return ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  schemaJSON,
		},
	}
}

// formatToolError renders a tool failure as the JSON document the backend
// sees as the tool result.
func formatToolError(toolName string, err error) string {
	errMsg := err.Error()
	if len(errMsg) > 2000 {
		errMsg = errMsg[:2000] + "... (truncated)"
	}
	b, _ := json.Marshal(map[string]string{
		"status": "error",
		"tool":   toolName,
		"error":  errMsg,
	})
	return string(b)
}

// parseToolArgs decodes the JSON argument object. Numbers are kept as
// json.Number so large ids survive intact.
func parseToolArgs(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	if args == nil {
		return nil, fmt.Errorf("invalid JSON arguments: expected an object")
	}
	return args, nil
}

// argString returns args[key] as a trimmed string. Numbers are formatted.
func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// argInt coerces a numeric argument to int64. It accepts JSON numbers,
// Go integer and float types, and numeric strings. Fractional values are
// rejected.
func argInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x.String())
		}
		return floatToInt(f)
	case float64:
		return floatToInt(x)
	case float32:
		return floatToInt(float64(x))
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return floatToInt(f)
	case nil:
		return 0, fmt.Errorf("value is missing")
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("out of range: %v", f)
	}
	return int64(f), nil
}
