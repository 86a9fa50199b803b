package autotool

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	// MaxIDLength caps a tool id before any collision suffix.
	MaxIDLength = 64
	// maxDescription caps generated descriptions, in bytes.
	maxDescription = 200
	unknownNote    = "Type could not be determined; the value is validated when the tool runs."
)

// Synthesizer converts classified descriptors into ToolDescriptors. Apart from
// the set of ids already issued, it is a pure function of its input; feed it
// descriptors in discovery order so collision suffixes are reproducible.
// A Synthesizer is not safe for concurrent use.
type Synthesizer struct {
	root   string
	strict bool
	used   map[string]struct{}
}

// SynthOption configures a Synthesizer.
type SynthOption func(*Synthesizer)

// WithStrictSchemas sets additionalProperties: false on every input schema.
func WithStrictSchemas() SynthOption {
	return func(s *Synthesizer) { s.strict = true }
}

// NewSynthesizer returns a Synthesizer for one run over root. Module-level
// callables take their id prefix from root.
func NewSynthesizer(root string, opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{root: root, used: make(map[string]struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize builds the ToolDescriptor for d. The returned id is unique among
// ids issued by s.
func (s *Synthesizer) Synthesize(d CapabilityDescriptor) (ToolDescriptor, error) {
	schema, err := s.inputSchema(d)
	if err != nil {
		return ToolDescriptor{}, &Error{Kind: MemberReadError, Path: d.QualifiedPath, Message: "input schema: " + err.Error(), Err: err}
	}
	return ToolDescriptor{
		ID:            s.issueID(d),
		Description:   describeTool(d, s.root),
		InputSchema:   schema,
		Flags:         d.Flags,
		Category:      d.Category,
		Resource:      d.Resource,
		Owner:         d.Owner,
		QualifiedPath: d.QualifiedPath,
	}, nil
}

// ToolID returns the collision-free base id for d: slug(owner or root) + "_" + slug(name).
func ToolID(root string, d CapabilityDescriptor) string {
	prefix := slug(lastSegment(d.Owner))
	if prefix == "" {
		prefix = slug(lastSegment(root))
	}
	name := slug(d.Name)
	if name == "" {
		name = "call"
	}
	id := name
	if prefix != "" {
		id = prefix + "_" + name
	}
	if len(id) > MaxIDLength {
		h := fnv.New32a()
		h.Write([]byte(id))
		tail := fmt.Sprintf("_%08x", h.Sum32())
		id = strings.TrimRight(id[:MaxIDLength-len(tail)], "_") + tail
	}
	return id
}

func (s *Synthesizer) issueID(d CapabilityDescriptor) string {
	base := ToolID(s.root, d)
	id := base
	for n := 2; ; n++ {
		if _, taken := s.used[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
	s.used[id] = struct{}{}
	return id
}

func (s *Synthesizer) inputSchema(d CapabilityDescriptor) (*jsonschema.Schema, error) {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(d.Parameters)),
	}
	for _, p := range d.Parameters {
		if _, dup := schema.Properties[p.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", p.Name)
		}
		schema.Properties[p.Name] = parameterSchema(p)
		if p.Required && !p.HasDefault && !p.Variadic {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	if s.strict {
		schema.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
	}
	if _, err := schema.Resolve(nil); err != nil {
		return nil, err
	}
	return schema, nil
}

func parameterSchema(p ParameterDescriptor) *jsonschema.Schema {
	ps := typeSchema(p.Type)
	if p.Variadic {
		ps = &jsonschema.Schema{Type: "array", Items: ps}
	}
	var notes []string
	if p.Description != "" {
		notes = append(notes, p.Description)
	}
	switch {
	case p.Type == TypeUnknown:
		notes = append(notes, unknownNote)
	case p.Type == TypeBytes:
		notes = append(notes, "Text is passed as bytes.")
	}
	ps.Description = strings.Join(notes, " ")
	if p.HasDefault && p.Default != nil {
		if raw, err := json.Marshal(p.Default); err == nil {
			ps.Default = raw
		}
	}
	return ps
}

func typeSchema(t TypeTag) *jsonschema.Schema {
	switch t {
	case TypeString, TypeBytes:
		return &jsonschema.Schema{Type: "string"}
	case TypeInteger:
		return &jsonschema.Schema{Type: "integer"}
	case TypeNumber:
		return &jsonschema.Schema{Type: "number"}
	case TypeBoolean:
		return &jsonschema.Schema{Type: "boolean"}
	case TypeCollection:
		return &jsonschema.Schema{Type: "array"}
	case TypeMapping:
		return &jsonschema.Schema{Type: "object"}
	}
	return &jsonschema.Schema{}
}

// describeTool uses the first documentation paragraph, else a fallback naming
// the category, operation and owner.
func describeTool(d CapabilityDescriptor, root string) string {
	if doc := firstParagraph(d.Documentation); doc != "" {
		return truncateText(doc, maxDescription)
	}
	owner := d.Owner
	if owner == "" {
		owner = root
	}
	cat := d.Category
	if cat == "" {
		cat = CategoryOther
	}
	return fmt.Sprintf("%s operation %s on %s", cat, d.Name, owner)
}

func firstParagraph(doc string) string {
	doc = strings.TrimSpace(doc)
	if i := strings.Index(doc, "\n\n"); i >= 0 {
		doc = doc[:i]
	}
	return strings.Join(strings.Fields(doc), " ")
}

// truncateText cuts s to at most n bytes on a rune boundary, marking the cut.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	const ellipsis = "..."
	cut := n - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
