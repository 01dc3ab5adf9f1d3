// Package tools executes voice-triggered function calls against the
// wireposts platform. Every dispatch produces an answer string for the AI
// session, failures included, so the assistant can always speak an outcome.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/voxline/voxline/pkg/bridge/identity"
)

// Result is the uniform tool outcome returned to the AI session.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSON renders the result for a function_call_output item.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"internal encoding failure"}`
	}
	return string(b)
}

func failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Executor is one callable tool.
type Executor interface {
	Name() string
	Description() string
	Parameters() map[string]any
	RequiresAuth() bool
	Execute(ctx context.Context, args map[string]any, ident *identity.Identity) Result
}

// Definition is the schema shape advertised to the AI session.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Dispatcher routes tool calls by name and enforces the authentication
// boundary before any executor runs.
type Dispatcher struct {
	byName map[string]Executor
	log    *slog.Logger
}

func NewDispatcher(log *slog.Logger, executors ...Executor) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{byName: make(map[string]Executor, len(executors)), log: log}
	for _, ex := range executors {
		if ex == nil {
			continue
		}
		d.byName[ex.Name()] = ex
	}
	return d
}

// Definitions lists the advertised tool schemas in stable order.
func (d *Dispatcher) Definitions() []Definition {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		ex := d.byName[name]
		defs = append(defs, Definition{
			Name:        ex.Name(),
			Description: ex.Description(),
			Parameters:  ex.Parameters(),
		})
	}
	return defs
}

// Dispatch runs one tool call and always returns an answer string. Unknown
// tools, missing authentication, executor panics, and executor errors all
// come back as structured failures rather than Go errors.
func (d *Dispatcher) Dispatch(ctx context.Context, callID, name string, args map[string]any, ident *identity.Identity) (out string) {
	log := d.log.With("call_id", callID, "tool", name)

	defer func() {
		if r := recover(); r != nil {
			log.Error("tool panicked", "panic", r)
			out = failure("the %s tool failed unexpectedly", name).JSON()
		}
	}()

	if d == nil {
		return failure("no tools are configured").JSON()
	}
	ex, ok := d.byName[strings.TrimSpace(name)]
	if !ok {
		log.Warn("unknown tool requested")
		return failure("unknown tool %q", name).JSON()
	}
	if ex.RequiresAuth() && (ident == nil || !ident.Authenticated) {
		log.Info("tool requires a linked account")
		return failure("this action requires a linked account; ask the caller to link their account on the website first").JSON()
	}

	res := ex.Execute(ctx, args, ident)
	if res.Success {
		log.Info("tool dispatched")
	} else {
		log.Warn("tool returned failure", "error", res.Error)
	}
	return res.JSON()
}

// Has reports whether a tool name is registered.
func (d *Dispatcher) Has(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.byName[strings.TrimSpace(name)]
	return ok
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, key string, fallback int) int {
	if args == nil {
		return fallback
	}
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
