package autotool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// Tool is one invocable entry of a Bridge. Call receives raw JSON arguments and
// returns the callable's unserialized result. Middlewares wrap Tools.
type Tool interface {
	Descriptor() ToolDescriptor
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Call is a single invocation request. ID is generated when empty. Timeout,
// when positive, bounds this call only; there is no default timeout.
type Call struct {
	ID      string
	Tool    string
	Args    json.RawMessage
	Timeout time.Duration
}

// Result is the outcome of one invocation: a serialized value or a structured
// error, never both.
type Result struct {
	CallID    string        `json:"callId"`
	Tool      string        `json:"tool"`
	Value     any           `json:"value,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Error     *Error        `json:"error,omitempty"`
	Duration  time.Duration `json:"-"`
}

// Err returns Error as an error interface, nil on success.
func (r Result) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// Bridge resolves tool ids through a Toolset's resolution table, coerces
// arguments, invokes the provider and serializes results. It is safe for
// concurrent use; invocations never block each other unless WithMaxConcurrency
// is set.
type Bridge struct {
	provider    Provider
	toolset     *Toolset
	tools       map[string]Tool // wrapped with middlewares, used by Invoke
	rawTools    map[string]Tool // unwrapped, used by Use() to re-apply middlewares from scratch
	handles     *HandleCache
	serializer  *Serializer
	sem         chan struct{}
	opts        bridgeOptions
	done        chan struct{}
	running     sync.WaitGroup
	mu          sync.Mutex
	middlewares []Middleware
}

// NewBridge builds the Bridge for ts. Providers implementing Initializer get
// a HandleCache; owned callables then receive a cached handle.
func NewBridge(p Provider, ts *Toolset, opts ...BridgeOption) *Bridge {
	o := bridgeOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.auth == nil && ts.Overlay != nil {
		o.auth = ts.Overlay.AuthConfig
	}
	var sem chan struct{}
	if o.maxConcurrency > 0 {
		sem = make(chan struct{}, o.maxConcurrency)
	}
	b := &Bridge{
		provider:   p,
		toolset:    ts,
		tools:      make(map[string]Tool, len(ts.Tools)),
		rawTools:   make(map[string]Tool, len(ts.Tools)),
		serializer: NewSerializer(o.serialize),
		sem:        sem,
		opts:       o,
		done:       make(chan struct{}),
	}
	if init, ok := p.(Initializer); ok {
		b.handles = NewHandleCache(init.NewHandle)
	}
	for _, td := range ts.Tools {
		bt := &boundTool{desc: td, capability: ts.table[td.ID].desc, provider: p, handles: b.handles, auth: o.auth}
		if o.strictArgs {
			if r, err := td.InputSchema.Resolve(nil); err == nil {
				bt.validator = r
			}
		}
		b.rawTools[td.ID] = bt
		b.tools[td.ID] = bt
	}
	return b
}

// Tools returns the published descriptors in selection order.
func (b *Bridge) Tools() []ToolDescriptor {
	out := make([]ToolDescriptor, len(b.toolset.Tools))
	copy(out, b.toolset.Tools)
	return out
}

// Tool returns the tool with the given id after middlewares are applied.
func (b *Bridge) Tool(id string) (Tool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tools[id]
	return t, ok
}

// Handles exposes the handle cache, nil when the provider has no Initializer.
func (b *Bridge) Handles() *HandleCache { return b.handles }

// Invoke runs one call and returns its result. Unknown ids return NotFound
// without touching the provider. On timeout or cancellation the Result is
// returned immediately; the callable sees a canceled context and may keep
// running in the background.
func (b *Bridge) Invoke(ctx context.Context, call Call) (res Result) {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	res = Result{CallID: call.ID, Tool: call.Tool}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if b.opts.onAfter != nil {
			b.opts.onAfter(ctx, call, res)
		}
	}()

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		res.Error = &Error{Kind: ShutdownError, Tool: call.Tool, Message: ErrShutdown.Error()}
		return res
	default:
	}
	tool, ok := b.tools[call.Tool]
	if !ok {
		b.mu.Unlock()
		res.Error = &Error{Kind: NotFoundError, Tool: call.Tool, Message: "no tool with this id"}
		return res
	}
	b.running.Add(1)
	b.mu.Unlock()
	defer b.running.Done()

	if call.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}
	if err := b.acquireSemaphore(ctx); err != nil {
		res.Error = contextError(call.Tool, err)
		return res
	}
	defer b.releaseSemaphore()

	if b.opts.onBefore != nil {
		b.opts.onBefore(ctx, call)
	}
	v, err := run(ctx, tool, call.Args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			res.Error = contextError(call.Tool, err)
		} else {
			res.Error = asError(call.Tool, err)
		}
		return res
	}
	res.Value, res.Truncated = b.serializer.Serialize(v)
	return res
}

// run executes the tool on its own goroutine so the caller can stop waiting.
func run(ctx context.Context, tool Tool, args json.RawMessage) (any, error) {
	type outcome struct {
		v   any
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				pe := &panicError{p: p}
				ch <- outcome{err: &Error{Kind: InvocationError, Message: pe.Error(), Err: pe}}
			}
		}()
		v, err := tool.Call(ctx, args)
		ch <- outcome{v: v, err: err}
	}()
	select {
	case out := <-ch:
		return out.v, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func contextError(tool string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: TimeoutError, Tool: tool, Message: ErrTimeout.Error(), Err: err}
	}
	return &Error{Kind: CanceledError, Tool: tool, Message: ErrCanceled.Error(), Err: err}
}

func (b *Bridge) acquireSemaphore(ctx context.Context) error {
	if b.sem == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) releaseSemaphore() {
	if b.sem != nil {
		<-b.sem
	}
}

// InvokeBatch runs all calls in parallel and returns their results in input
// order. One failure does not affect the others.
func (b *Bridge) InvokeBatch(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Go(func() {
			results[i] = b.Invoke(ctx, call)
		})
	}
	wg.Wait()
	return results
}

// Shutdown closes the bridge for new calls and waits for in-flight invocations or ctx to cancel.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		return nil
	default:
		close(b.done)
	}
	b.mu.Unlock()
	done := make(chan struct{})
	go func() {
		b.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the bridge down and tears down cached handles.
func (b *Bridge) Close(ctx context.Context) error {
	err := b.Shutdown(ctx)
	if b.handles != nil {
		if herr := b.handles.Close(); herr != nil {
			b.opts.logger.Warn("handle teardown failed", "root", b.toolset.Root, "error", herr)
			err = errors.Join(err, herr)
		}
	}
	return err
}

// boundTool is the resolution-table entry for one tool id.
type boundTool struct {
	desc       ToolDescriptor
	capability CapabilityDescriptor
	provider   Provider
	handles    *HandleCache
	auth       map[string]any
	validator  *jsonschema.Resolved
}

func (t *boundTool) Descriptor() ToolDescriptor { return t.desc }

func (t *boundTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	if t.validator != nil {
		if err := validateArguments(t.desc.ID, t.validator, raw); err != nil {
			return nil, err
		}
	}
	args, err := bindArguments(t.desc.ID, t.capability.Parameters, raw)
	if err != nil {
		return nil, err
	}
	var handle any
	if t.handles != nil && t.capability.Owner != "" {
		handle, err = t.handles.Get(ctx, t.capability.Handle, t.auth)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &Error{Kind: InvocationError, Tool: t.desc.ID, Message: "handle initialization: " + err.Error(), Err: err}
		}
	}
	v, err := t.provider.Invoke(ctx, t.capability.Handle, handle, args)
	if err != nil {
		return nil, t.invocationError(ctx, err)
	}
	if aw, ok := v.(Awaitable); ok {
		v, err = aw.Await(ctx)
		if err != nil {
			return nil, t.invocationError(ctx, err)
		}
	}
	return v, nil
}

// invocationError tags a callable's failure with the tool id so middlewares
// see its kind. Context errors caused by ctx stay raw.
func (t *boundTool) invocationError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return asError(t.desc.ID, err)
}
