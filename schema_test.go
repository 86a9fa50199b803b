package autotool

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_IDs(t *testing.T) {
	s := NewSynthesizer("root")
	list, err := s.Synthesize(CapabilityDescriptor{Name: "list_items"})
	require.NoError(t, err)
	assert.Equal(t, "root_list_items", list.ID)

	owned, err := s.Synthesize(CapabilityDescriptor{Name: "GetItem", Owner: "inventory.ItemService"})
	require.NoError(t, err)
	assert.Equal(t, "item_service_get_item", owned.ID)

	// Same owner and name with a different signature collides on the base id.
	a, err := s.Synthesize(CapabilityDescriptor{Name: "get", Owner: "Repo", Parameters: []ParameterDescriptor{{Name: "id", Type: TypeString}}})
	require.NoError(t, err)
	b, err := s.Synthesize(CapabilityDescriptor{Name: "get", Owner: "Repo", Parameters: []ParameterDescriptor{{Name: "slug", Type: TypeString}}})
	require.NoError(t, err)
	c, err := s.Synthesize(CapabilityDescriptor{Name: "Get", Owner: "repo"})
	require.NoError(t, err)
	assert.Equal(t, "repo_get", a.ID)
	assert.Equal(t, "repo_get_2", b.ID)
	assert.Equal(t, "repo_get_3", c.ID)
}

func TestSynthesize_IDsUniqueAndDeterministic(t *testing.T) {
	descs := []CapabilityDescriptor{
		{Name: "get", Owner: "A"}, {Name: "get", Owner: "A", Parameters: []ParameterDescriptor{{Name: "x"}}},
		{Name: "a_get"}, {Name: "get", Owner: "A_"}, {Name: "list"}, {Name: "List"},
	}
	run := func() []string {
		s := NewSynthesizer("a")
		var ids []string
		for _, d := range descs {
			td, err := s.Synthesize(d)
			require.NoError(t, err)
			ids = append(ids, td.ID)
		}
		return ids
	}
	first := run()
	seen := map[string]bool{}
	for _, id := range first {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, first, run())
}

func TestToolID_Capped(t *testing.T) {
	d := CapabilityDescriptor{Name: strings.Repeat("very_long_operation_name_", 6), Owner: "SomeQuiteLongServiceClient"}
	id := ToolID("root", d)
	assert.LessOrEqual(t, len(id), MaxIDLength)
	assert.Equal(t, id, ToolID("root", d))
	other := d
	other.Name += "x"
	assert.NotEqual(t, id, ToolID("root", other))
}

func TestSynthesize_InputSchema(t *testing.T) {
	d := CapabilityDescriptor{
		Name: "create_item",
		Parameters: []ParameterDescriptor{
			{Name: "name", Type: TypeString, Required: true},
			{Name: "count", Type: TypeInteger, HasDefault: true, Default: 1},
			{Name: "payload", Type: TypeBytes, Required: true},
			{Name: "meta", Type: TypeUnknown, Required: true},
			{Name: "tags", Type: TypeString, Variadic: true},
		},
	}
	td, err := NewSynthesizer("root").Synthesize(d)
	require.NoError(t, err)
	s := td.InputSchema
	require.NotNil(t, s)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"name", "payload", "meta"}, s.Required)

	assert.Equal(t, "integer", s.Properties["count"].Type)
	assert.JSONEq(t, `1`, string(s.Properties["count"].Default))
	assert.Equal(t, "string", s.Properties["payload"].Type)
	assert.Empty(t, s.Properties["meta"].Type)
	assert.Contains(t, s.Properties["meta"].Description, "validated when the tool runs")
	assert.Equal(t, "array", s.Properties["tags"].Type)
	assert.Equal(t, "string", s.Properties["tags"].Items.Type)

	_, err = s.Resolve(nil)
	require.NoError(t, err)
}

func TestSynthesize_RequiredFieldCorrectness(t *testing.T) {
	for _, typ := range []TypeTag{TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeCollection, TypeMapping, TypeBytes, TypeUnknown} {
		d := CapabilityDescriptor{Name: "op", Parameters: []ParameterDescriptor{
			{Name: "def", Type: typ, Required: true, HasDefault: true},
			{Name: "rest", Type: typ, Required: true, Variadic: true},
		}}
		td, err := NewSynthesizer("r").Synthesize(d)
		require.NoError(t, err)
		assert.Empty(t, td.InputSchema.Required, typ)
	}
}

func TestSynthesize_Description(t *testing.T) {
	s := NewSynthesizer("root")
	td, err := s.Synthesize(CapabilityDescriptor{Name: "get", Documentation: "Get returns\nthe item.\n\nMore detail."})
	require.NoError(t, err)
	assert.Equal(t, "Get returns the item.", td.Description)

	td, err = s.Synthesize(CapabilityDescriptor{Name: "delete_item", Category: CategoryDelete})
	require.NoError(t, err)
	assert.Equal(t, "delete operation delete_item on root", td.Description)

	td, err = s.Synthesize(CapabilityDescriptor{Name: "x", Documentation: strings.Repeat("é", 300)})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(td.Description), maxDescription)
	assert.True(t, strings.HasSuffix(td.Description, "..."))
}

func TestSynthesize_StrictSchemas(t *testing.T) {
	td, err := NewSynthesizer("root", WithStrictSchemas()).Synthesize(CapabilityDescriptor{Name: "get"})
	require.NoError(t, err)
	require.NotNil(t, td.InputSchema.AdditionalProperties)
	data, err := json.Marshal(td.InputSchema)
	require.NoError(t, err)
	assert.Contains(t, string(data), "additionalProperties")
}

func TestSynthesize_DuplicateParameter(t *testing.T) {
	_, err := NewSynthesizer("root").Synthesize(CapabilityDescriptor{Name: "get", Parameters: []ParameterDescriptor{{Name: "a"}, {Name: "a"}}})
	require.Error(t, err)
	assert.Equal(t, MemberReadError, KindOf(err))
}
