package autotool

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

// Weights holds the tunable magnitudes of the scoring rule table. Penalties are
// stored as negative numbers and added like bonuses.
type Weights struct {
	VerbPrefix      float64
	ImportantOwner  float64
	PrioritizedName float64
	PrivateMarker   float64
	MissingDocs     float64
	Deprecated      float64
}

// DefaultWeights returns the stock rule weights.
func DefaultWeights() Weights {
	return Weights{
		VerbPrefix:      10,
		ImportantOwner:  5,
		PrioritizedName: 8,
		PrivateMarker:   -10,
		MissingDocs:     -2,
		Deprecated:      -20,
	}
}

// Tier is a score band. Items with score >= MinScore fall in the first tier
// that admits them; Limit caps how many are taken (0 means unbounded).
type Tier struct {
	Name     string
	MinScore float64
	Limit    int
}

// DefaultTiers returns p1..p5 with thresholds 10, 5, 0, -5 and a catch-all.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "p1", MinScore: 10},
		{Name: "p2", MinScore: 5, Limit: 500},
		{Name: "p3", MinScore: 0, Limit: 100},
		{Name: "p4", MinScore: -5, Limit: 50},
		{Name: "p5", MinScore: math.Inf(-1), Limit: 20},
	}
}

var (
	scoredVerbs   = wordSet("read", "list", "get", "create", "update", "delete")
	lowValueWords = wordSet("deprecated", "internal", "debug")
)

type scoreRule struct {
	name  string
	apply func(d CapabilityDescriptor, o *Overlay, w Weights) float64
}

// scoreRules is evaluated top to bottom; the order is part of the contract.
var scoreRules = []scoreRule{
	{"verb_prefix", func(d CapabilityDescriptor, _ *Overlay, w Weights) float64 {
		words := splitWords(d.Name)
		if len(words) > 0 && inSet(scoredVerbs, words[0]) {
			return w.VerbPrefix
		}
		return 0
	}},
	{"important_owner", func(d CapabilityDescriptor, o *Overlay, w Weights) float64 {
		if o.isImportantOwner(d.Owner) {
			return w.ImportantOwner
		}
		return 0
	}},
	{"prioritized_name", func(d CapabilityDescriptor, o *Overlay, w Weights) float64 {
		if o.isPrioritized(d.Name) {
			return w.PrioritizedName
		}
		return 0
	}},
	{"boost_patterns", func(d CapabilityDescriptor, o *Overlay, _ Weights) float64 {
		return o.boostFor(d.Name, d.Owner)
	}},
	{"penalize_patterns", func(d CapabilityDescriptor, o *Overlay, _ Weights) float64 {
		return -o.penaltyFor(d.Name, d.Owner)
	}},
	{"private_marker", func(d CapabilityDescriptor, _ *Overlay, w Weights) float64 {
		if strings.HasPrefix(d.Name, "_") {
			return w.PrivateMarker
		}
		return 0
	}},
	{"missing_docs", func(d CapabilityDescriptor, _ *Overlay, w Weights) float64 {
		if strings.TrimSpace(d.Documentation) == "" {
			return w.MissingDocs
		}
		return 0
	}},
	{"deprecated", func(d CapabilityDescriptor, _ *Overlay, w Weights) float64 {
		if anyInSet(lowValueWords, splitWords(d.Name)) || deprecatedDoc(d.Documentation) {
			return w.Deprecated
		}
		return 0
	}},
}

// deprecatedDoc reports a paragraph starting with "Deprecated:".
func deprecatedDoc(doc string) bool {
	for para := range strings.SplitSeq(doc, "\n\n") {
		if strings.HasPrefix(strings.TrimSpace(para), "Deprecated:") {
			return true
		}
	}
	return false
}

// Score evaluates the rule table for d. A nil overlay applies universal rules only.
func Score(d CapabilityDescriptor, o *Overlay, w Weights) float64 {
	var s float64
	for _, r := range scoreRules {
		s += r.apply(d, o, w)
	}
	return s
}

// SelectOption configures Select.
type SelectOption func(*selectOptions)

type selectOptions struct {
	weights Weights
	tiers   []Tier
}

// WithWeights replaces DefaultWeights.
func WithWeights(w Weights) SelectOption {
	return func(o *selectOptions) { o.weights = w }
}

// WithTiers replaces DefaultTiers. Tiers must be ordered by descending MinScore.
func WithTiers(tiers ...Tier) SelectOption {
	return func(o *selectOptions) { o.tiers = slices.Clone(tiers) }
}

// Select scores descs and returns at most maxCount copies ordered by score
// descending, then name, owner and qualified path ascending. Items are taken
// tier by tier; overlay tier limits override the configured ones by tier name,
// and an overlay limit of 0 drops the tier.
// maxCount <= 0 means no overall cap. descs is not modified.
func Select(descs []CapabilityDescriptor, o *Overlay, maxCount int, opts ...SelectOption) []CapabilityDescriptor {
	so := selectOptions{weights: DefaultWeights(), tiers: DefaultTiers()}
	for _, opt := range opts {
		opt(&so)
	}
	scored := make([]CapabilityDescriptor, len(descs))
	for i, d := range descs {
		d.PriorityScore = Score(d, o, so.weights)
		scored[i] = d
	}
	slices.SortStableFunc(scored, compareSelected)

	limits := make([]int, len(so.tiers))
	for i, t := range so.tiers {
		limits[i] = t.Limit
		if t.Limit <= 0 {
			limits[i] = -1
		}
		if n, ok := o.tierLimit(t.Name); ok {
			limits[i] = n
		}
	}
	taken := make([]int, len(so.tiers))
	out := make([]CapabilityDescriptor, 0, min(len(scored), capOr(maxCount, len(scored))))
	for _, d := range scored {
		if maxCount > 0 && len(out) >= maxCount {
			break
		}
		ti := tierOf(so.tiers, d.PriorityScore)
		if ti < 0 {
			continue
		}
		if limits[ti] >= 0 && taken[ti] >= limits[ti] {
			continue
		}
		taken[ti]++
		out = append(out, d)
	}
	return out
}

func capOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

func compareSelected(a, b CapabilityDescriptor) int {
	return cmp.Or(
		cmp.Compare(b.PriorityScore, a.PriorityScore),
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.Owner, b.Owner),
		cmp.Compare(a.QualifiedPath, b.QualifiedPath),
	)
}

// tierOf returns the index of the first tier admitting score, or -1.
func tierOf(tiers []Tier, score float64) int {
	for i, t := range tiers {
		if score >= t.MinScore {
			return i
		}
	}
	return -1
}
