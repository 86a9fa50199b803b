package autotool

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
)

// DefaultMaxDepth bounds namespace recursion below the root.
const DefaultMaxDepth = 10

// Discovery is the result of one discovery run. Skipped counts members whose
// metadata or children could not be read; SkipErrors holds their MemberReadErrors.
type Discovery struct {
	Root        string
	Package     string
	Descriptors []CapabilityDescriptor
	Skipped     int
	SkipErrors  []error
	Duplicates  int
}

// DiscoverOption configures Discover.
type DiscoverOption func(*discoverOptions)

type discoverOptions struct {
	maxDepth int
	exclude  []*regexp.Regexp
	logger   *slog.Logger
}

// WithMaxDepth overrides DefaultMaxDepth. Values below 1 are ignored.
func WithMaxDepth(n int) DiscoverOption {
	return func(o *discoverOptions) {
		if n > 0 {
			o.maxDepth = n
		}
	}
}

// WithExcludePatterns skips members whose name matches any of the regular
// expressions. It panics on an invalid pattern; call it at startup.
func WithExcludePatterns(patterns ...string) DiscoverOption {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return func(o *discoverOptions) {
		o.exclude = append(o.exclude, res...)
	}
}

// WithDiscoverLogger sets the logger for skipped members. Defaults to slog.Default().
func WithDiscoverLogger(l *slog.Logger) DiscoverOption {
	return func(o *discoverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

type queued struct {
	h     MemberHandle
	depth int
}

// Discover walks the provider's graph from root breadth-first and returns one
// descriptor per distinct (owner, name, parameter names) triple. Children are
// visited in name order, so the output is reproducible. Only a failure to
// resolve root is returned as an error (LoadError); unreadable members are
// skipped and counted.
func Discover(ctx context.Context, p Provider, root string, opts ...DiscoverOption) (*Discovery, error) {
	o := discoverOptions{maxDepth: DefaultMaxDepth, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	rh, err := p.Resolve(ctx, root)
	if err != nil {
		return nil, &Error{Kind: LoadError, Root: root, Message: err.Error(), Err: err}
	}
	if rh.Kind != KindNamespace {
		return nil, &Error{Kind: LoadError, Root: root, Message: "root is not a namespace"}
	}

	out := &Discovery{Root: root, Package: rh.Package}
	visited := map[string]struct{}{identity(rh): {}}
	seen := make(map[string]struct{})
	skip := func(h MemberHandle, err error) {
		out.Skipped++
		out.SkipErrors = append(out.SkipErrors, &Error{Kind: MemberReadError, Root: root, Path: h.Path, Message: err.Error(), Err: err})
		o.logger.Debug("member skipped", "root", root, "path", h.Path, "error", err)
	}

	queue := []queued{{h: rh}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Kind: CanceledError, Root: root, Message: err.Error(), Err: err}
		}
		cur := queue[0]
		queue = queue[1:]

		members, err := enumerate(p, cur.h)
		if err != nil {
			skip(cur.h, err)
			continue
		}
		slices.SortStableFunc(members, func(a, b MemberHandle) int {
			return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Path, b.Path))
		})
		for _, m := range members {
			if o.excluded(m.Name) {
				continue
			}
			switch m.Kind {
			case KindNamespace:
				if cur.depth+1 > o.maxDepth || !contained(rh.Package, m.Package) {
					continue
				}
				id := identity(m)
				if _, ok := visited[id]; ok {
					continue
				}
				visited[id] = struct{}{}
				queue = append(queue, queued{h: m, depth: cur.depth + 1})
			case KindCallable:
				md, err := readMetadata(p, m)
				if err != nil {
					skip(m, err)
					continue
				}
				d := describe(m, md)
				key := d.Key()
				if _, dup := seen[key]; dup {
					out.Duplicates++
					continue
				}
				seen[key] = struct{}{}
				out.Descriptors = append(out.Descriptors, d)
			}
		}
	}
	return out, nil
}

func (o *discoverOptions) excluded(name string) bool {
	if strings.HasPrefix(name, "__") {
		return true
	}
	for _, re := range o.exclude {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func identity(h MemberHandle) string {
	if h.Path != "" {
		return h.Path
	}
	return h.Package + "." + h.Name
}

// contained reports whether pkg is the root package or nested below it. An
// empty root package means the provider does not report packages.
func contained(rootPkg, pkg string) bool {
	if rootPkg == "" || pkg == rootPkg {
		return true
	}
	return strings.HasPrefix(pkg, rootPkg+"/") || strings.HasPrefix(pkg, rootPkg+".")
}

// enumerate and readMetadata turn provider panics into errors so a single
// bad member cannot abort the run.
func enumerate(p Provider, h MemberHandle) (members []MemberHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			members, err = nil, &panicError{p: r}
		}
	}()
	return p.EnumerateMembers(h)
}

func readMetadata(p Provider, h MemberHandle) (md Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			md, err = Metadata{}, &panicError{p: r}
		}
	}()
	md, err = p.ReadMetadata(h)
	if err == nil && md.Name == "" && h.Name == "" {
		err = fmt.Errorf("member at %q has no name", h.Path)
	}
	return md, err
}

func describe(h MemberHandle, md Metadata) CapabilityDescriptor {
	name := md.Name
	if name == "" {
		name = h.Name
	}
	params := make([]ParameterDescriptor, len(md.Parameters))
	for i, p := range md.Parameters {
		params[i] = p.normalized()
	}
	path := h.Path
	if path == "" {
		path = identity(h)
	}
	return CapabilityDescriptor{
		Name:           name,
		QualifiedPath:  path,
		Owner:          h.Owner,
		Parameters:     params,
		ReturnType:     md.ReturnType,
		Documentation:  strings.TrimSpace(md.Documentation),
		IsAsynchronous: md.IsAsynchronous,
		Handle:         h,
	}
}
