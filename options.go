package autotool

import (
	"context"
	"log/slog"
)

// BridgeOption configures a Bridge.
type BridgeOption func(*bridgeOptions)

type bridgeOptions struct {
	maxConcurrency int
	strictArgs     bool
	serialize      SerializeOptions
	auth           map[string]any
	logger         *slog.Logger
	onBefore       func(context.Context, Call)
	onAfter        func(context.Context, Call, Result)
}

// WithMaxConcurrency limits concurrent invocations (semaphore).
// Pass 0 or negative to disable the semaphore; this is the default.
func WithMaxConcurrency(n int) BridgeOption {
	return func(o *bridgeOptions) {
		o.maxConcurrency = n
	}
}

// WithStrictArguments validates raw arguments against the tool's input schema
// before coercion. Numeric or boolean text then fails instead of converting.
func WithStrictArguments() BridgeOption {
	return func(o *bridgeOptions) {
		o.strictArgs = true
	}
}

// WithSerializeOptions sets result size limits.
func WithSerializeOptions(so SerializeOptions) BridgeOption {
	return func(o *bridgeOptions) {
		o.serialize = so
	}
}

// WithAuthConfig overrides the overlay's auth configuration passed to handle
// initialization.
func WithAuthConfig(auth map[string]any) BridgeOption {
	return func(o *bridgeOptions) {
		o.auth = auth
	}
}

// WithBridgeLogger sets the logger for shutdown and handle teardown.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(o *bridgeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOnBeforeInvoke sets a hook called before each invocation.
func WithOnBeforeInvoke(fn func(context.Context, Call)) BridgeOption {
	return func(o *bridgeOptions) {
		o.onBefore = fn
	}
}

// WithOnAfterInvoke sets a hook called after each invocation with its result,
// including NotFound and shutdown results.
func WithOnAfterInvoke(fn func(context.Context, Call, Result)) BridgeOption {
	return func(o *bridgeOptions) {
		o.onAfter = fn
	}
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	maxTools   int
	overlay    OverlayResolver
	discover   []DiscoverOption
	selectOpts []SelectOption
	synthOpts  []SynthOption
	logger     *slog.Logger
}

// DefaultMaxTools is the overall cap applied by Build.
const DefaultMaxTools = 128

// WithMaxTools caps the number of published tools; 0 or negative removes the cap.
func WithMaxTools(n int) BuildOption {
	return func(o *buildOptions) {
		o.maxTools = n
	}
}

// WithOverlay uses a fixed overlay instead of resolving one.
func WithOverlay(ov *Overlay) BuildOption {
	return func(o *buildOptions) {
		o.overlay = StaticOverlay{Overlay: ov}
	}
}

// WithOverlayResolver resolves the overlay after discovery, e.g. a hints.Loader.
func WithOverlayResolver(r OverlayResolver) BuildOption {
	return func(o *buildOptions) {
		o.overlay = r
	}
}

// WithDiscoverOptions passes options to Discover.
func WithDiscoverOptions(opts ...DiscoverOption) BuildOption {
	return func(o *buildOptions) {
		o.discover = append(o.discover, opts...)
	}
}

// WithSelectOptions passes options to Select.
func WithSelectOptions(opts ...SelectOption) BuildOption {
	return func(o *buildOptions) {
		o.selectOpts = append(o.selectOpts, opts...)
	}
}

// WithSynthOptions passes options to the Synthesizer.
func WithSynthOptions(opts ...SynthOption) BuildOption {
	return func(o *buildOptions) {
		o.synthOpts = append(o.synthOpts, opts...)
	}
}

// WithLogger sets the pipeline logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) BuildOption {
	return func(o *buildOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
