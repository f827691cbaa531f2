package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
)

func echoRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	reg := NewToolRegistry(discardLogger)
	def := MakeToolDefinition("echo", "Echo the text.", map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []string{"text"},
	})
	err := reg.Register(def, []string{"text"}, func(ctx context.Context, args map[string]any) (string, error) {
		if argString(args, "text") == "fail" {
			return "", errors.New("handler exploded")
		}
		return argString(args, "text") + "@" + SessionIDFromContext(ctx), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func call(name, args string) ToolCall {
	return ToolCall{ID: "call_1", Type: "function", Function: FunctionCall{Name: name, Arguments: args}}
}

func TestToolRegistry_Register(t *testing.T) {
	t.Parallel()
	reg := echoRegistry(t)

	dup := MakeToolDefinition("echo", "again", nil)
	if err := reg.Register(dup, nil, func(context.Context, map[string]any) (string, error) { return "", nil }); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := reg.Register(MakeToolDefinition("", "x", nil), nil, nil); err == nil {
		t.Error("nameless registration should fail")
	}
	defs := reg.Definitions()
	if len(defs) != 1 || defs[0].Function.Name != "echo" {
		t.Errorf("Definitions() = %+v", defs)
	}
	var schema map[string]any
	if err := json.Unmarshal(defs[0].Function.Parameters, &schema); err != nil || schema["type"] != "object" {
		t.Errorf("schema = %s (%v)", defs[0].Function.Parameters, err)
	}
}

func TestToolRegistry_Dispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		call      ToolCall
		wantErr   bool
		wantInOut string
	}{
		{"ok", call("echo", `{"text":"merhaba"}`), false, "merhaba@s1"},
		{"unknown tool", call("nope", `{}`), true, `unknown tool`},
		{"bad json", call("echo", `{"text":`), true, "invalid JSON arguments"},
		{"non-object json", call("echo", `[1,2]`), true, "invalid JSON arguments"},
		{"missing required", call("echo", `{}`), true, "missing required arguments: text"},
		{"blank required", call("echo", `{"text":"  "}`), true, "missing required arguments: text"},
		{"handler error", call("echo", `{"text":"fail"}`), true, "handler exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := echoRegistry(t)
			res := reg.Dispatch(ContextWithSession(context.Background(), "s1"), tt.call)
			if res.IsError != tt.wantErr {
				t.Fatalf("IsError = %v, content %q", res.IsError, res.Content)
			}
			if !strings.Contains(res.Content, tt.wantInOut) {
				t.Errorf("content = %q, want it to contain %q", res.Content, tt.wantInOut)
			}
			if res.CallID != "call_1" {
				t.Errorf("CallID = %q", res.CallID)
			}
			if tt.wantErr {
				var doc map[string]string
				if err := json.Unmarshal([]byte(res.Content), &doc); err != nil || doc["status"] != "error" {
					t.Errorf("error content is not a JSON error document: %q", res.Content)
				}
			}
		})
	}
}

func TestToolRegistry_Observer(t *testing.T) {
	t.Parallel()
	reg := echoRegistry(t)

	var seen []string
	reg.SetObserver(func(tool string, ok bool) {
		if ok {
			seen = append(seen, tool+":ok")
		} else {
			seen = append(seen, tool+":error")
		}
	})
	reg.Dispatch(context.Background(), call("echo", `{"text":"a"}`))
	reg.Dispatch(context.Background(), call("missing", `{}`))

	if strings.Join(seen, ",") != "echo:ok,missing:error" {
		t.Errorf("observer saw %v", seen)
	}
}

func TestArgInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      any
		want    int64
		wantErr bool
	}{
		{"json integer", json.Number("44012345678901"), 44012345678901, false},
		{"json whole float", json.Number("3.0"), 3, false},
		{"json fraction", json.Number("2.5"), 0, true},
		{"float64", float64(7), 7, false},
		{"float32", float32(2), 2, false},
		{"int", 5, 5, false},
		{"int64", int64(9), 9, false},
		{"numeric string", " 12 ", 12, false},
		{"float string", "4.0", 4, false},
		{"word", "iki", 0, true},
		{"nil", nil, 0, true},
		{"bool", true, 0, true},
		{"infinity", math.Inf(1), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := argInt(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("argInt(%v) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("argInt(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestOrderSourceFromContext(t *testing.T) {
	t.Parallel()
	if got := OrderSourceFromContext(context.Background()); got != orders.SourceWeb {
		t.Errorf("default source = %q", got)
	}
	ctx := ContextWithOrderSource(context.Background(), orders.SourceInstagram)
	if got := OrderSourceFromContext(ctx); got != orders.SourceInstagram {
		t.Errorf("source = %q", got)
	}
}
