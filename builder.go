package autotool

import (
	"context"
	"log/slog"
	"slices"
)

// Toolset is the published result of one pipeline run over a root: the tools
// in selection order plus the resolution table the Bridge invokes through.
// It is read-only after Build returns.
type Toolset struct {
	Root       string
	Tools      []ToolDescriptor
	Groups     []ResourceGroup
	Analysis   Analysis
	Overlay    *Overlay
	Discovered int
	Skipped    int

	table map[string]binding
}

// binding is one row of the resolution table.
type binding struct {
	tool ToolDescriptor
	desc CapabilityDescriptor
}

// Lookup returns the tool with the given id.
func (ts *Toolset) Lookup(id string) (ToolDescriptor, bool) {
	b, ok := ts.table[id]
	return b.tool, ok
}

// Capability returns the classified descriptor a tool id resolves to.
func (ts *Toolset) Capability(id string) (CapabilityDescriptor, bool) {
	b, ok := ts.table[id]
	return b.desc, ok
}

// Build runs discovery, overlay resolution, selection, recognition and
// synthesis for root. Only a LoadError (or cancellation during discovery)
// fails the run.
func Build(ctx context.Context, p Provider, root string, opts ...BuildOption) (*Toolset, error) {
	o := buildOptions{maxTools: DefaultMaxTools, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	disc, err := Discover(ctx, p, root, append([]DiscoverOption{WithDiscoverLogger(o.logger)}, o.discover...)...)
	if err != nil {
		return nil, err
	}

	overlay := DefaultOverlay()
	if o.overlay != nil {
		if ov := o.overlay.Resolve(ctx, root, NewSample(root, disc.Descriptors)); ov != nil {
			overlay = ov
		}
	}
	if err := overlay.Compile(); err != nil {
		o.logger.Warn("overlay partially invalid", "root", root, "source", overlay.SourceOrDefault(), "error", err)
	}

	selected := Select(disc.Descriptors, overlay, o.maxTools, o.selectOpts...)
	classified, analysis := NewRecognizer(overlay).Recognize(selected)

	// Ids are issued in discovery order so collision suffixes do not depend on scores.
	order := make(map[string]int, len(disc.Descriptors))
	for i, d := range disc.Descriptors {
		order[d.Key()] = i
	}
	byDiscovery := slices.Clone(classified)
	slices.SortStableFunc(byDiscovery, func(a, b CapabilityDescriptor) int { return order[a.Key()] - order[b.Key()] })

	synth := NewSynthesizer(root, o.synthOpts...)
	ids := make(map[string]ToolDescriptor, len(byDiscovery))
	ts := &Toolset{
		Root:       root,
		Analysis:   analysis,
		Overlay:    overlay,
		Discovered: len(disc.Descriptors),
		Skipped:    disc.Skipped,
		table:      make(map[string]binding, len(byDiscovery)),
	}
	for _, d := range byDiscovery {
		td, err := synth.Synthesize(d)
		if err != nil {
			ts.Skipped++
			o.logger.Warn("tool skipped", "root", root, "path", d.QualifiedPath, "error", err)
			continue
		}
		if desc, ok := overlay.description(td.ID, d.Name); ok {
			td.Description = desc
		}
		ids[d.Key()] = td
		ts.table[td.ID] = binding{tool: td, desc: d}
	}
	for _, d := range classified {
		if td, ok := ids[d.Key()]; ok {
			ts.Tools = append(ts.Tools, td)
		}
	}
	ts.Groups = GroupResources(ts.Tools)
	o.logger.Info("toolset built", "root", root, "discovered", ts.Discovered, "skipped", ts.Skipped,
		"published", len(ts.Tools), "overlay", overlay.SourceOrDefault())
	return ts, nil
}
