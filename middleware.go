package autotool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Middleware wraps a Tool with cross-cutting behavior (logging, recovery, timeout).
type Middleware func(Tool) Tool

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Tool) Tool {
		return &loggingTool{toolBase: toolBase{next: next}, logger: logger}
	}
}

// WithRecovery returns a middleware that turns panics into InvocationErrors.
// The Bridge already recovers; this keeps the panic inside the chain so outer
// middlewares observe an ordinary error.
func WithRecovery() Middleware {
	return func(next Tool) Tool {
		return &recoveryTool{toolBase{next: next}}
	}
}

// WithTimeoutMiddleware returns a middleware that bounds every call of the
// wrapped tool. When the call also carries Call.Timeout, the shorter wins.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Tool) Tool {
		return &timeoutTool{toolBase: toolBase{next: next}, timeout: d}
	}
}

// toolBase delegates Descriptor to the wrapped Tool; embedded by middleware wrappers.
type toolBase struct{ next Tool }

func (b *toolBase) Descriptor() ToolDescriptor { return b.next.Descriptor() }

type loggingTool struct {
	toolBase
	logger *slog.Logger
}

func (m *loggingTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	id := m.next.Descriptor().ID
	m.logger.InfoContext(ctx, "tool start", "tool", id)
	start := time.Now()
	res, err := m.next.Call(ctx, args)
	dur := time.Since(start)
	if err != nil {
		m.logger.ErrorContext(ctx, "tool error", "tool", id, "duration", dur, "kind", KindOf(err), "error", err)
		return nil, err
	}
	m.logger.InfoContext(ctx, "tool end", "tool", id, "duration", dur)
	return res, nil
}

type recoveryTool struct{ toolBase }

func (r *recoveryTool) Call(ctx context.Context, args json.RawMessage) (res any, err error) {
	defer func() {
		if p := recover(); p != nil {
			pe := &panicError{p: p}
			res = nil
			err = &Error{Kind: InvocationError, Tool: r.next.Descriptor().ID, Message: pe.Error(), Err: pe}
		}
	}()
	return r.next.Call(ctx, args)
}

type timeoutTool struct {
	toolBase
	timeout time.Duration
}

func (t *timeoutTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	if t.timeout <= 0 {
		return t.next.Call(ctx, args)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Call(ctx, args)
}

// Use stores the given middlewares and reapplies them from scratch to all tools (onion order:
// first middleware is outermost). Calling Use again replaces the chain without double-wrapping.
func (b *Bridge) Use(middlewares ...Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = middlewares
	for id, raw := range b.rawTools {
		t := raw
		for i := len(middlewares) - 1; i >= 0; i-- {
			t = middlewares[i](t)
		}
		b.tools[id] = t
	}
}
