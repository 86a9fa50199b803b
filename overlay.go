package autotool

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// OverlaySource records which precedence tier produced an Overlay.
type OverlaySource string

const (
	SourceExplicit OverlaySource = "explicit"
	SourceAuto     OverlaySource = "auto"
	SourceDefault  OverlaySource = "default"
)

// PatternTarget selects what a Pattern is matched against.
type PatternTarget string

const (
	TargetAny   PatternTarget = "any"
	TargetName  PatternTarget = "name"
	TargetOwner PatternTarget = "owner"
)

// Pattern is a case-insensitive regular expression matched against a
// descriptor's name, owner or either. Weight is the magnitude applied by
// Score; its sign is ignored.
type Pattern struct {
	Match  string        `json:"match"`
	Target PatternTarget `json:"target,omitempty"`
	Weight float64       `json:"weight"`
}

type compiledPattern struct {
	re     *regexp.Regexp
	target PatternTarget
	weight float64
}

func (p compiledPattern) matches(name, owner string) bool {
	switch p.target {
	case TargetName:
		return p.re.MatchString(name)
	case TargetOwner:
		return owner != "" && p.re.MatchString(owner)
	default:
		return p.re.MatchString(name) || (owner != "" && p.re.MatchString(owner))
	}
}

// Overlay is the named configuration adjusting scoring, classification and
// invocation for one root. It is read-only once Compile has run; a nil
// *Overlay behaves like the universal default.
type Overlay struct {
	Name                string            `json:"name,omitempty"`
	Source              OverlaySource     `json:"source"`
	BoostPatterns       []Pattern         `json:"boostPatterns,omitempty"`
	PenalizePatterns    []Pattern         `json:"penalizePatterns,omitempty"`
	ImportantOwners     []string          `json:"importantOwners,omitempty"`
	PrioritizedNames    []string          `json:"prioritizedNames,omitempty"`
	TierLimits          map[string]int    `json:"tierLimits,omitempty"`
	DestructivePatterns []string          `json:"destructivePatterns,omitempty"`
	Descriptions        map[string]string `json:"descriptions,omitempty"`
	AuthConfig          map[string]any    `json:"authConfig,omitempty"`

	once        sync.Once
	compileErr  error
	boost       []compiledPattern
	penalize    []compiledPattern
	destructive []*regexp.Regexp
	owners      map[string]struct{}
	prioritized map[string]struct{}
}

// DefaultOverlay returns the empty universal overlay.
func DefaultOverlay() *Overlay {
	return &Overlay{Source: SourceDefault}
}

// Compile validates and compiles the overlay's patterns. It runs once; later
// calls return the first result.
func (o *Overlay) Compile() error {
	if o == nil {
		return nil
	}
	o.once.Do(func() {
		var errs []error
		compile := func(kind string, ps []Pattern) []compiledPattern {
			out := make([]compiledPattern, 0, len(ps))
			for i, p := range ps {
				re, err := regexp.Compile("(?i)" + p.Match)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s[%d] %q: %w", kind, i, p.Match, err))
					continue
				}
				w := p.Weight
				if w < 0 {
					w = -w
				}
				out = append(out, compiledPattern{re: re, target: p.Target, weight: w})
			}
			return out
		}
		o.boost = compile("boostPatterns", o.BoostPatterns)
		o.penalize = compile("penalizePatterns", o.PenalizePatterns)
		for i, m := range o.DestructivePatterns {
			re, err := regexp.Compile("(?i)" + m)
			if err != nil {
				errs = append(errs, fmt.Errorf("destructivePatterns[%d] %q: %w", i, m, err))
				continue
			}
			o.destructive = append(o.destructive, re)
		}
		o.owners = lowerSet(o.ImportantOwners)
		o.prioritized = lowerSet(o.PrioritizedNames)
		for name, n := range o.TierLimits {
			if n < 0 {
				errs = append(errs, fmt.Errorf("tierLimits[%s]: negative limit %d", name, n))
			}
		}
		o.compileErr = errors.Join(errs...)
	})
	return o.compileErr
}

func lowerSet(vals []string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[strings.ToLower(v)] = struct{}{}
	}
	return m
}

func (o *Overlay) ready() bool {
	if o == nil {
		return false
	}
	_ = o.Compile()
	return true
}

func (o *Overlay) boostFor(name, owner string) float64 {
	if !o.ready() {
		return 0
	}
	var sum float64
	for _, p := range o.boost {
		if p.matches(name, owner) {
			sum += p.weight
		}
	}
	return sum
}

func (o *Overlay) penaltyFor(name, owner string) float64 {
	if !o.ready() {
		return 0
	}
	var sum float64
	for _, p := range o.penalize {
		if p.matches(name, owner) {
			sum += p.weight
		}
	}
	return sum
}

func (o *Overlay) isImportantOwner(owner string) bool {
	if owner == "" || !o.ready() {
		return false
	}
	lo := strings.ToLower(owner)
	return inSet(o.owners, lo) || inSet(o.owners, strings.ToLower(lastSegment(owner)))
}

func (o *Overlay) isPrioritized(name string) bool {
	return o.ready() && inSet(o.prioritized, strings.ToLower(name))
}

func (o *Overlay) forcesDestructive(name string) bool {
	if !o.ready() {
		return false
	}
	return slices.ContainsFunc(o.destructive, func(re *regexp.Regexp) bool { return re.MatchString(name) })
}

func (o *Overlay) tierLimit(tier string) (int, bool) {
	if o == nil {
		return 0, false
	}
	n, ok := o.TierLimits[tier]
	return n, ok
}

// description returns an override keyed by tool id, then by callable name.
func (o *Overlay) description(id, name string) (string, bool) {
	if o == nil {
		return "", false
	}
	if d, ok := o.Descriptions[id]; ok && d != "" {
		return d, true
	}
	d, ok := o.Descriptions[name]
	return d, ok && d != ""
}

// SourceOrDefault reports the overlay's precedence tier.
func (o *Overlay) SourceOrDefault() OverlaySource {
	if o == nil || o.Source == "" {
		return SourceDefault
	}
	return o.Source
}

// Sample is the bounded view of a discovery run given to overlay resolvers
// and the LLM auto-configurator.
type Sample struct {
	Root   string   `json:"root"`
	Names  []string `json:"names"`
	Owners []string `json:"owners"`
}

const (
	sampleNames  = 50
	sampleOwners = 10
)

// NewSample takes up to 50 distinct names and 10 distinct owners, sorted.
func NewSample(root string, descs []CapabilityDescriptor) Sample {
	names := map[string]struct{}{}
	owners := map[string]struct{}{}
	for _, d := range descs {
		names[d.Name] = struct{}{}
		if d.Owner != "" {
			owners[d.Owner] = struct{}{}
		}
	}
	return Sample{Root: root, Names: sortedCapped(names, sampleNames), Owners: sortedCapped(owners, sampleOwners)}
}

func sortedCapped(m map[string]struct{}, n int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// OverlayResolver produces the overlay for a root. Implementations must never
// fail: any problem degrades to a lower-precedence overlay.
type OverlayResolver interface {
	Resolve(ctx context.Context, root string, sample Sample) *Overlay
}

// StaticOverlay resolves every root to the same overlay.
type StaticOverlay struct{ Overlay *Overlay }

func (s StaticOverlay) Resolve(context.Context, string, Sample) *Overlay {
	if s.Overlay == nil {
		return DefaultOverlay()
	}
	return s.Overlay
}
