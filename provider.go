package autotool

import "context"

// MemberKind distinguishes callables from namespaces that can be traversed.
type MemberKind int

const (
	KindCallable MemberKind = iota
	KindNamespace
)

func (k MemberKind) String() string {
	if k == KindNamespace {
		return "namespace"
	}
	return "callable"
}

// MemberHandle is an opaque reference to a provider member. Path must be stable
// for the same member across enumerations; it is the visited-set identity.
// Package is the declaring package, used to keep traversal inside the root.
type MemberHandle struct {
	Name    string
	Path    string
	Package string
	Kind    MemberKind
	Owner   string
	Ref     any
}

// Metadata is what a provider reports for a callable member.
type Metadata struct {
	Name           string
	Parameters     []ParameterDescriptor
	ReturnType     string
	Documentation  string
	IsAsynchronous bool
}

// Arguments carries coerced arguments to Provider.Invoke. Positional holds one
// entry per non-variadic parameter (nil when omitted and optional), Named holds
// only supplied or defaulted values.
type Arguments struct {
	Positional []any
	Named      map[string]any
	Variadic   []any
}

// Provider is the Capability Provider boundary: it resolves a root identifier
// into a traversable graph and invokes members of it.
type Provider interface {
	Resolve(ctx context.Context, root string) (MemberHandle, error)
	EnumerateMembers(node MemberHandle) ([]MemberHandle, error)
	ReadMetadata(h MemberHandle) (Metadata, error)
	// Invoke calls h. handle is the owner instance obtained from Initializer,
	// or nil for module-level members and providers without one.
	Invoke(ctx context.Context, h MemberHandle, handle any, args Arguments) (any, error)
}

// Initializer is implemented by providers whose owned callables need a
// constructed client or handle. The Bridge caches results per owner and auth.
type Initializer interface {
	NewHandle(ctx context.Context, member MemberHandle, auth map[string]any) (any, error)
}

// Awaitable is returned by asynchronous callables; the Bridge awaits it with
// the caller's context.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// AwaitFunc adapts a function to Awaitable.
type AwaitFunc func(ctx context.Context) (any, error)

func (f AwaitFunc) Await(ctx context.Context) (any, error) { return f(ctx) }
