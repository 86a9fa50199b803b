// Package autotoolotel traces Bridge tool calls with OpenTelemetry.
package autotoolotel

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/autotool"
)

const instrumentationName = "github.com/skosovsky/autotool/ext/autotoolotel"

// Option configures the middleware.
type Option func(*config)

type config struct {
	provider trace.TracerProvider
}

// WithTracerProvider sets the provider spans are created from. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.provider = tp }
}

// Middleware starts one span per tool call, named "autotool.call <id>".
func Middleware(opts ...Option) autotool.Middleware {
	c := config{}
	for _, opt := range opts {
		opt(&c)
	}
	if c.provider == nil {
		c.provider = otel.GetTracerProvider()
	}
	tracer := c.provider.Tracer(instrumentationName)
	return func(next autotool.Tool) autotool.Tool {
		return &tracedTool{next: next, tracer: tracer}
	}
}

type tracedTool struct {
	next   autotool.Tool
	tracer trace.Tracer
}

func (t *tracedTool) Descriptor() autotool.ToolDescriptor { return t.next.Descriptor() }

func (t *tracedTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	d := t.next.Descriptor()
	ctx, span := t.tracer.Start(ctx, "autotool.call "+d.ID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("autotool.tool.id", d.ID),
			attribute.String("autotool.tool.category", string(d.Category)),
			attribute.String("autotool.tool.owner", d.Owner),
			attribute.Bool("autotool.tool.destructive", d.Flags.Has(autotool.FlagDestructive)),
			attribute.Int("autotool.args.size", len(args)),
		))
	defer span.End()

	res, err := t.next.Call(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind := autotool.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("autotool.error.kind", string(kind)))
		}
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return res, nil
}
