// Package testutil provides test helpers for autotool: an in-memory Provider
// whose graph, failures and counters are set up directly by tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/skosovsky/autotool"
)

// Func is a callable exposed by Provider.
type Func struct {
	Name       string
	Params     []autotool.ParameterDescriptor
	ReturnType string
	Doc        string
	Async      bool  // Invoke returns an Awaitable that runs Fn
	ReadErr    error // ReadMetadata fails with this error
	Fn         func(ctx context.Context, handle any, args autotool.Arguments) (any, error)
}

// Namespace is a node of the provider graph. Children may form cycles.
// Callables of a child namespace are owned by Owner, or Name when Owner is
// empty; callables of the root are module-level.
type Namespace struct {
	Name     string
	Package  string
	Owner    string
	Funcs    []*Func
	Children []*Namespace
	EnumErr  error // EnumerateMembers fails with this error
}

// Provider is a configurable autotool.Provider and autotool.Initializer.
type Provider struct {
	Roots map[string]*Namespace
	// NewHandleFn builds owner handles; nil yields a nil handle.
	NewHandleFn func(ctx context.Context, owner string, auth map[string]any) (any, error)

	inits atomic.Int64
	calls atomic.Int64
}

// NewProvider returns a Provider with a single root.
func NewProvider(root string, ns *Namespace) *Provider {
	return &Provider{Roots: map[string]*Namespace{root: ns}}
}

// Inits returns how many times NewHandle ran.
func (p *Provider) Inits() int64 { return p.inits.Load() }

// Calls returns how many times Invoke reached a Func.
func (p *Provider) Calls() int64 { return p.calls.Load() }

func path(ns *Namespace) string { return ns.Package + ":" + ns.Name }

// Resolve returns the root namespace registered under root.
func (p *Provider) Resolve(_ context.Context, root string) (autotool.MemberHandle, error) {
	ns, ok := p.Roots[root]
	if !ok {
		return autotool.MemberHandle{}, fmt.Errorf("unknown root %q", root)
	}
	return autotool.MemberHandle{Name: ns.Name, Path: path(ns), Package: ns.Package, Kind: autotool.KindNamespace, Ref: ns}, nil
}

// EnumerateMembers lists a namespace's funcs and children.
func (p *Provider) EnumerateMembers(node autotool.MemberHandle) ([]autotool.MemberHandle, error) {
	ns, ok := node.Ref.(*Namespace)
	if !ok {
		return nil, fmt.Errorf("not a namespace: %s", node.Path)
	}
	if ns.EnumErr != nil {
		return nil, ns.EnumErr
	}
	out := make([]autotool.MemberHandle, 0, len(ns.Funcs)+len(ns.Children))
	for _, f := range ns.Funcs {
		out = append(out, autotool.MemberHandle{
			Name: f.Name, Path: path(ns) + "." + f.Name, Package: ns.Package,
			Kind: autotool.KindCallable, Owner: node.Owner, Ref: f,
		})
	}
	for _, c := range ns.Children {
		owner := c.Owner
		if owner == "" {
			owner = c.Name
		}
		out = append(out, autotool.MemberHandle{
			Name: c.Name, Path: path(c), Package: c.Package,
			Kind: autotool.KindNamespace, Owner: owner, Ref: c,
		})
	}
	return out, nil
}

// ReadMetadata reports a Func's metadata or its ReadErr.
func (p *Provider) ReadMetadata(h autotool.MemberHandle) (autotool.Metadata, error) {
	f, ok := h.Ref.(*Func)
	if !ok {
		return autotool.Metadata{}, fmt.Errorf("not a callable: %s", h.Path)
	}
	if f.ReadErr != nil {
		return autotool.Metadata{}, f.ReadErr
	}
	return autotool.Metadata{
		Name:           f.Name,
		Parameters:     f.Params,
		ReturnType:     f.ReturnType,
		Documentation:  f.Doc,
		IsAsynchronous: f.Async,
	}, nil
}

// Invoke runs the Func's Fn, directly or behind an Awaitable for Async funcs.
func (p *Provider) Invoke(ctx context.Context, h autotool.MemberHandle, handle any, args autotool.Arguments) (any, error) {
	f, ok := h.Ref.(*Func)
	if !ok {
		return nil, fmt.Errorf("not a callable: %s", h.Path)
	}
	p.calls.Add(1)
	if f.Fn == nil {
		return nil, nil
	}
	if f.Async {
		return autotool.AwaitFunc(func(ctx context.Context) (any, error) {
			return f.Fn(ctx, handle, args)
		}), nil
	}
	return f.Fn(ctx, handle, args)
}

// NewHandle counts the initialization and delegates to NewHandleFn.
func (p *Provider) NewHandle(ctx context.Context, member autotool.MemberHandle, auth map[string]any) (any, error) {
	p.inits.Add(1)
	if p.NewHandleFn == nil {
		return nil, nil
	}
	return p.NewHandleFn(ctx, member.Owner, auth)
}

var (
	_ autotool.Provider    = (*Provider)(nil)
	_ autotool.Initializer = (*Provider)(nil)
)
