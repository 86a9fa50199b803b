package autotool

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// TypeTag is the semantic type a provider reports for a parameter.
type TypeTag string

const (
	TypeString     TypeTag = "string"
	TypeInteger    TypeTag = "integer"
	TypeNumber     TypeTag = "number"
	TypeBoolean    TypeTag = "boolean"
	TypeCollection TypeTag = "collection"
	TypeMapping    TypeTag = "mapping"
	TypeBytes      TypeTag = "bytes"
	TypeUnknown    TypeTag = "unknown"
)

// IsPrimitive reports whether t is one of string, integer, number or boolean.
func (t TypeTag) IsPrimitive() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		return true
	}
	return false
}

func (t TypeTag) known() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeCollection, TypeMapping, TypeBytes, TypeUnknown:
		return true
	}
	return false
}

// Category is the CRUD classification assigned by the Recognizer.
type Category string

const (
	CategoryCreate Category = "create"
	CategoryRead   Category = "read"
	CategoryUpdate Category = "update"
	CategoryDelete Category = "delete"
	CategorySearch Category = "search"
	CategoryAuth   Category = "auth"
	CategoryOther  Category = "other"
)

// Flags is the set of safety and shape flags attached to a capability.
type Flags uint8

const (
	FlagDestructive Flags = 1 << iota
	FlagPaginated
	FlagLongRunning
	FlagRequiresAuth
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagDestructive, "destructive"},
	{FlagPaginated, "paginated"},
	{FlagLongRunning, "longRunning"},
	{FlagRequiresAuth, "requiresAuth"},
}

// Has reports whether every bit of x is set in f.
func (f Flags) Has(x Flags) bool { return f&x == x }

// Names returns the names of the set flags in a fixed order.
func (f Flags) Names() []string {
	var out []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			out = append(out, fn.name)
		}
	}
	return out
}

func (f Flags) String() string { return strings.Join(f.Names(), ",") }

// MarshalJSON encodes flags as an object of booleans, e.g. {"destructive":true,...}.
func (f Flags) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, fn := range flagNames {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`"` + fn.name + `":`)
		if f.Has(fn.flag) {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// UnmarshalJSON accepts the object form produced by MarshalJSON.
func (f *Flags) UnmarshalJSON(data []byte) error {
	var m map[string]bool
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*f = 0
	for _, fn := range flagNames {
		if m[fn.name] {
			*f |= fn.flag
		}
	}
	return nil
}

// ParameterDescriptor describes one parameter of a discovered callable, in call order.
type ParameterDescriptor struct {
	Name        string  `json:"name"`
	Type        TypeTag `json:"type"`
	Required    bool    `json:"required"`
	Default     any     `json:"default,omitempty"`
	HasDefault  bool    `json:"hasDefault,omitempty"`
	Variadic    bool    `json:"variadic,omitempty"` // Type is the element type
	Description string  `json:"description,omitempty"`
}

func (p ParameterDescriptor) normalized() ParameterDescriptor {
	if !p.Type.known() {
		p.Type = TypeUnknown
	}
	if p.HasDefault || p.Variadic {
		p.Required = false
	}
	return p
}

// CapabilityDescriptor is the record of one discovered callable member.
//
// PriorityScore is written by Select, and Flags, Category and Resource by the
// Recognizer. Both return copies; the discovered descriptors are never mutated.
type CapabilityDescriptor struct {
	Name           string                `json:"name"`
	QualifiedPath  string                `json:"qualifiedPath"`
	Owner          string                `json:"owner,omitempty"`
	Parameters     []ParameterDescriptor `json:"parameters"`
	ReturnType     string                `json:"returnType,omitempty"`
	Documentation  string                `json:"documentation,omitempty"`
	IsAsynchronous bool                  `json:"isAsynchronous,omitempty"`
	PriorityScore  float64               `json:"priorityScore"`
	Flags          Flags                 `json:"flags"`
	Category       Category              `json:"category,omitempty"`
	Resource       string                `json:"resource,omitempty"`

	// Handle is the provider member the descriptor was read from.
	Handle MemberHandle `json:"-"`
}

// Key returns the (owner, name, parameter names) identity used for deduplication.
func (d CapabilityDescriptor) Key() string {
	names := make([]string, len(d.Parameters))
	for i, p := range d.Parameters {
		names[i] = p.Name
	}
	return d.Owner + "\x00" + d.Name + "\x00" + strings.Join(names, "\x01")
}

// ToolDescriptor is the externally published description of an invocable operation.
// QualifiedPath is kept for the Bridge and never marshaled.
type ToolDescriptor struct {
	ID            string             `json:"id"`
	Description   string             `json:"description"`
	InputSchema   *jsonschema.Schema `json:"inputSchema"`
	Flags         Flags              `json:"flags"`
	Category      Category           `json:"category"`
	Resource      string             `json:"resource,omitempty"`
	Owner         string             `json:"owner,omitempty"`
	QualifiedPath string             `json:"-"`
}

// Parameters returns the input schema as a generic map, the shape LLM tool
// definitions expect.
func (t ToolDescriptor) Parameters() map[string]any {
	out := map[string]any{"type": "object", "properties": map[string]any{}}
	if t.InputSchema == nil {
		return out
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return out
	}
	return m
}

// ResourceGroup clusters tool ids that share a resource noun. Presentation only.
type ResourceGroup struct {
	Name  string   `json:"name"`
	Tools []string `json:"tools"`
}

// GroupResources groups tools by resource noun, sorted by group name. Tools
// without a resource are left out.
func GroupResources(tools []ToolDescriptor) []ResourceGroup {
	byName := make(map[string][]string)
	for _, t := range tools {
		if t.Resource == "" {
			continue
		}
		byName[t.Resource] = append(byName[t.Resource], t.ID)
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	slices.Sort(names)
	out := make([]ResourceGroup, 0, len(names))
	for _, n := range names {
		out = append(out, ResourceGroup{Name: n, Tools: byName[n]})
	}
	return out
}
