// Package reflectprovider implements autotool.Provider over ordinary Go values
// using reflection.
//
// A root is either a pointer to a struct, whose exported methods become
// callables owned by the struct type and whose exported pointer-to-struct
// fields become nested namespaces, or a Namespace map of functions and nested
// values. Namespaces are identified by their canonical type path, so graphs
// that refer back to themselves terminate.
package reflectprovider

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/skosovsky/autotool"
)

// Namespace groups functions and nested namespaces under names. Values may be
// functions, Namespaces or pointers to structs.
type Namespace map[string]any

// Constructor builds the client handle for an owner from the overlay's auth
// configuration.
type Constructor func(ctx context.Context, auth map[string]any) (any, error)

// Option configures a registered root.
type Option func(*rootConfig)

type rootConfig struct {
	pkg          string
	docs         map[string]string
	paramNames   map[string][]string
	constructors map[string]Constructor
}

// WithDoc documents a member. Methods are keyed "Owner.Method", functions by
// name, nested functions "child.name".
func WithDoc(member, doc string) Option {
	return func(c *rootConfig) { c.docs[member] = doc }
}

// WithDocs documents several members at once; see WithDoc.
func WithDocs(docs map[string]string) Option {
	return func(c *rootConfig) {
		for k, v := range docs {
			c.docs[k] = v
		}
	}
}

// WithParamNames names the positional parameters of a member, skipping an
// injected context. Unnamed positions keep argN.
func WithParamNames(member string, names ...string) Option {
	return func(c *rootConfig) { c.paramNames[member] = names }
}

// WithConstructor registers how handles of owner are built. Without one, an
// owner's handle is the instance found during registration.
func WithConstructor(owner string, fn Constructor) Option {
	return func(c *rootConfig) { c.constructors[owner] = fn }
}

// WithPackage sets the package reported for Namespace maps. It defaults to
// empty, which disables package containment checks below a map root.
func WithPackage(pkg string) Option {
	return func(c *rootConfig) { c.pkg = pkg }
}

type rootEntry struct {
	name  string
	value reflect.Value
	cfg   rootConfig

	mu        sync.Mutex
	instances map[string]reflect.Value // owner -> registered receiver
}

// Provider serves registered Go values. It is safe for concurrent use.
type Provider struct {
	mu    sync.RWMutex
	roots map[string]*rootEntry
}

var (
	_ autotool.Provider    = (*Provider)(nil)
	_ autotool.Initializer = (*Provider)(nil)
)

// New returns an empty Provider.
func New() *Provider {
	return &Provider{roots: make(map[string]*rootEntry)}
}

// Register exposes value under root. value must be a non-nil pointer to a
// struct or a Namespace.
func (p *Provider) Register(root string, value any, opts ...Option) error {
	v := reflect.ValueOf(value)
	switch {
	case isStructPtr(v):
	case v.IsValid() && v.Type() == namespaceType && !v.IsNil():
	default:
		return fmt.Errorf("reflectprovider: root %q must be a struct pointer or Namespace, got %T", root, value)
	}
	e := &rootEntry{
		name:  root,
		value: v,
		cfg: rootConfig{
			docs:         make(map[string]string),
			paramNames:   make(map[string][]string),
			constructors: make(map[string]Constructor),
		},
		instances: make(map[string]reflect.Value),
	}
	for _, opt := range opts {
		opt(&e.cfg)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roots[root] = e
	return nil
}

// Roots lists registered root names in sorted order.
func (p *Provider) Roots() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.roots))
	for name := range p.roots {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

var (
	namespaceType = reflect.TypeFor[Namespace]()
	contextType   = reflect.TypeFor[context.Context]()
	errorType     = reflect.TypeFor[error]()
)

func isStructPtr(v reflect.Value) bool {
	return v.IsValid() && v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct
}

// nsRef is the Ref of a namespace handle.
type nsRef struct {
	root      *rootEntry
	value     reflect.Value // struct pointer or Namespace
	docPrefix string        // prefix for WithDoc keys of map functions
	ancestors []uintptr     // map identities above this node
}

// fnRef is the Ref of a callable handle.
type fnRef struct {
	root  *rootEntry
	key   string        // WithDoc / WithParamNames key
	fn    reflect.Value // plain function; invalid for methods
	recv  reflect.Value // registered receiver for methods
	name  string        // method name
	owner string

	once sync.Once
	sig  *signature
	err  error
}

func (p *Provider) Resolve(_ context.Context, root string) (autotool.MemberHandle, error) {
	p.mu.RLock()
	e, ok := p.roots[root]
	p.mu.RUnlock()
	if !ok {
		return autotool.MemberHandle{}, fmt.Errorf("reflectprovider: unknown root %q", root)
	}
	ref := &nsRef{root: e, value: e.value}
	if e.value.Kind() == reflect.Map {
		ref.ancestors = []uintptr{e.value.Pointer()}
		return autotool.MemberHandle{Name: root, Path: root, Package: e.cfg.pkg, Kind: autotool.KindNamespace, Ref: ref}, nil
	}
	t := e.value.Type().Elem()
	e.remember(t.Name(), e.value)
	return autotool.MemberHandle{
		Name: root, Path: typePath(t), Package: t.PkgPath(),
		Kind: autotool.KindNamespace, Owner: t.Name(), Ref: ref,
	}, nil
}

func typePath(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func (e *rootEntry) remember(owner string, v reflect.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.instances[owner]; !ok {
		e.instances[owner] = v
	}
}

func (e *rootEntry) instance(owner string) (reflect.Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.instances[owner]
	return v, ok
}

func (p *Provider) EnumerateMembers(node autotool.MemberHandle) ([]autotool.MemberHandle, error) {
	ref, ok := node.Ref.(*nsRef)
	if !ok {
		return nil, fmt.Errorf("reflectprovider: %s is not a namespace", node.Path)
	}
	if ref.value.Kind() == reflect.Map {
		return p.mapMembers(node, ref), nil
	}
	return p.structMembers(node, ref), nil
}

func (p *Provider) structMembers(node autotool.MemberHandle, ref *nsRef) []autotool.MemberHandle {
	v := ref.value
	t := v.Type()
	owner := t.Elem().Name()
	var out []autotool.MemberHandle
	for i := range t.NumMethod() {
		m := t.Method(i)
		out = append(out, autotool.MemberHandle{
			Name: m.Name, Path: node.Path + "." + m.Name, Package: node.Package,
			Kind: autotool.KindCallable, Owner: owner,
			Ref: &fnRef{root: ref.root, key: owner + "." + m.Name, recv: v, name: m.Name, owner: owner},
		})
	}
	st := t.Elem()
	for i := range st.NumField() {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		if h, ok := p.child(ref, node.Path, f.Name, v.Elem().Field(i)); ok {
			out = append(out, h)
		}
	}
	return out
}

func (p *Provider) mapMembers(node autotool.MemberHandle, ref *nsRef) []autotool.MemberHandle {
	ns := ref.value.Interface().(Namespace)
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var out []autotool.MemberHandle
	for _, k := range keys {
		v := reflect.ValueOf(ns[k])
		if v.Kind() == reflect.Func && !v.IsNil() {
			out = append(out, autotool.MemberHandle{
				Name: k, Path: node.Path + "." + k, Package: node.Package,
				Kind: autotool.KindCallable, Owner: node.Owner,
				Ref: &fnRef{root: ref.root, key: ref.docPrefix + k, fn: v, owner: node.Owner},
			})
			continue
		}
		if h, ok := p.child(ref, node.Path, k, v); ok {
			out = append(out, h)
		}
	}
	return out
}

// child turns a field or map value into a nested namespace handle.
func (p *Provider) child(parent *nsRef, parentPath, name string, v reflect.Value) (autotool.MemberHandle, bool) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	switch {
	case isStructPtr(v):
		t := v.Type().Elem()
		parent.root.remember(t.Name(), v)
		return autotool.MemberHandle{
			Name: name, Path: typePath(t), Package: t.PkgPath(),
			Kind: autotool.KindNamespace, Owner: t.Name(),
			Ref: &nsRef{root: parent.root, value: v},
		}, true
	case v.IsValid() && v.Type() == namespaceType && !v.IsNil():
		id := v.Pointer()
		if slices.Contains(parent.ancestors, id) {
			return autotool.MemberHandle{}, false
		}
		return autotool.MemberHandle{
			Name: name, Path: parentPath + "." + name, Package: parent.root.cfg.pkg,
			Kind: autotool.KindNamespace, Owner: name,
			Ref: &nsRef{root: parent.root, value: v, docPrefix: parent.docPrefix + name + ".", ancestors: append(slices.Clone(parent.ancestors), id)},
		}, true
	}
	return autotool.MemberHandle{}, false
}

func (p *Provider) ReadMetadata(h autotool.MemberHandle) (autotool.Metadata, error) {
	ref, ok := h.Ref.(*fnRef)
	if !ok {
		return autotool.Metadata{}, fmt.Errorf("reflectprovider: %s is not callable", h.Path)
	}
	sig, err := ref.signature()
	if err != nil {
		return autotool.Metadata{}, err
	}
	return autotool.Metadata{
		Name:           h.Name,
		Parameters:     slices.Clone(sig.params),
		ReturnType:     sig.returnType,
		Documentation:  ref.root.cfg.docs[ref.key],
		IsAsynchronous: sig.async,
	}, nil
}

func (r *fnRef) signature() (*signature, error) {
	r.once.Do(func() {
		fn := r.fn
		if !fn.IsValid() {
			fn = r.recv.MethodByName(r.name)
		}
		r.sig, r.err = analyze(fn.Type(), r.root.cfg.paramNames[r.key])
	})
	return r.sig, r.err
}

// Invoke calls the member. For methods a handle of the receiver's type, when
// given, replaces the registered receiver.
func (p *Provider) Invoke(ctx context.Context, h autotool.MemberHandle, handle any, args autotool.Arguments) (any, error) {
	ref, ok := h.Ref.(*fnRef)
	if !ok {
		return nil, fmt.Errorf("reflectprovider: %s is not callable", h.Path)
	}
	sig, err := ref.signature()
	if err != nil {
		return nil, err
	}
	fn := ref.fn
	if !fn.IsValid() {
		recv := ref.recv
		if hv := reflect.ValueOf(handle); handle != nil && hv.Type() == recv.Type() && !hv.IsNil() {
			recv = hv
		}
		fn = recv.MethodByName(ref.name)
	}
	in, err := sig.bind(ctx, args)
	if err != nil {
		return nil, err
	}
	return sig.results(fn.Call(in))
}

// NewHandle builds the handle for member's owner: a registered Constructor,
// else the instance seen during discovery, else nil.
func (p *Provider) NewHandle(ctx context.Context, member autotool.MemberHandle, auth map[string]any) (any, error) {
	ref, ok := member.Ref.(*fnRef)
	if !ok {
		return nil, nil
	}
	if c, ok := ref.root.cfg.constructors[member.Owner]; ok {
		return c(ctx, auth)
	}
	if v, ok := ref.root.instance(member.Owner); ok {
		return v.Interface(), nil
	}
	return nil, nil
}
