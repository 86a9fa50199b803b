package autotool_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/autotool"
	"github.com/skosovsky/autotool/testutil"
)

func itemsProvider() *testutil.Provider {
	return testutil.NewProvider("root", &testutil.Namespace{
		Name:    "root",
		Package: "root",
		Funcs: []*testutil.Func{
			{Name: "list_items", Doc: "List every item.", ReturnType: "[]Item"},
			{Name: "delete_item", Params: []autotool.ParameterDescriptor{{Name: "id", Type: autotool.TypeInteger, Required: true}}},
		},
	})
}

func toolIDs(tools []autotool.ToolDescriptor) []string {
	out := make([]string, len(tools))
	for i, td := range tools {
		out[i] = td.ID
	}
	return out
}

func TestBuild_Scenario(t *testing.T) {
	ts, err := autotool.Build(context.Background(), itemsProvider(), "root")
	require.NoError(t, err)

	assert.Equal(t, []string{"root_list_items", "root_delete_item"}, toolIDs(ts.Tools))
	del, ok := ts.Lookup("root_delete_item")
	require.True(t, ok)
	assert.True(t, del.Flags.Has(autotool.FlagDestructive))
	assert.Equal(t, autotool.CategoryDelete, del.Category)
	assert.Equal(t, []string{"id"}, del.InputSchema.Required)
	assert.Equal(t, "delete operation delete_item on root", del.Description)

	list, ok := ts.Lookup("root_list_items")
	require.True(t, ok)
	assert.False(t, list.Flags.Has(autotool.FlagDestructive))
	assert.Equal(t, "List every item.", list.Description)

	assert.Equal(t, autotool.SourceDefault, ts.Overlay.Source)
	assert.Equal(t, 2, ts.Discovered)
	assert.Equal(t, []autotool.ResourceGroup{{Name: "Item", Tools: []string{"root_list_items", "root_delete_item"}}}, ts.Groups)

	_, ok = ts.Lookup("does_not_exist")
	assert.False(t, ok)
}

func TestBuild_OverlayDescriptionsAndLimits(t *testing.T) {
	ov := &autotool.Overlay{
		Source:       autotool.SourceExplicit,
		Descriptions: map[string]string{"root_delete_item": "Remove an item by id.", "list_items": "All items."},
	}
	ts, err := autotool.Build(context.Background(), itemsProvider(), "root", autotool.WithOverlay(ov))
	require.NoError(t, err)
	d, _ := ts.Lookup("root_delete_item")
	assert.Equal(t, "Remove an item by id.", d.Description)
	l, _ := ts.Lookup("root_list_items")
	assert.Equal(t, "All items.", l.Description)
	assert.Same(t, ov, ts.Overlay)

	ts, err = autotool.Build(context.Background(), itemsProvider(), "root", autotool.WithMaxTools(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"root_list_items"}, toolIDs(ts.Tools))
}

type recordingResolver struct{ sample autotool.Sample }

func (r *recordingResolver) Resolve(_ context.Context, _ string, s autotool.Sample) *autotool.Overlay {
	r.sample = s
	return &autotool.Overlay{Source: autotool.SourceAuto, PrioritizedNames: []string{"delete_item"}}
}

func TestBuild_OverlayResolverSeesSample(t *testing.T) {
	r := &recordingResolver{}
	ts, err := autotool.Build(context.Background(), itemsProvider(), "root", autotool.WithOverlayResolver(r))
	require.NoError(t, err)
	assert.Equal(t, []string{"delete_item", "list_items"}, r.sample.Names)
	assert.Equal(t, autotool.SourceAuto, ts.Overlay.Source)
	assert.Equal(t, "root_delete_item", ts.Tools[0].ID, "prioritized name ranks first")
}

func TestBuild_IDsFollowDiscoveryOrder(t *testing.T) {
	// Two owners slug to the same prefix; suffixes follow discovery order, not score.
	root := &testutil.Namespace{Name: "lib", Package: "lib", Children: []*testutil.Namespace{
		{Name: "a", Package: "lib", Owner: "ItemStore", Funcs: []*testutil.Func{{Name: "get"}}},
		{Name: "b", Package: "lib", Owner: "item_store", Funcs: []*testutil.Func{{Name: "get", Doc: "Documented."}}},
	}}
	ts, err := autotool.Build(context.Background(), testutil.NewProvider("lib", root), "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"item_store_get_2", "item_store_get"}, toolIDs(ts.Tools))
	c, ok := ts.Capability("item_store_get")
	require.True(t, ok)
	assert.Equal(t, "ItemStore", c.Owner)
}

func TestBuild_LoadError(t *testing.T) {
	_, err := autotool.Build(context.Background(), itemsProvider(), "nope")
	assert.ErrorIs(t, err, autotool.ErrLoad)
}

func TestBuild_Deterministic(t *testing.T) {
	var funcs []*testutil.Func
	for i := range 40 {
		funcs = append(funcs, &testutil.Func{Name: fmt.Sprintf("get_%02d", 39-i), Doc: "x"})
	}
	p := testutil.NewProvider("lib", &testutil.Namespace{Name: "lib", Funcs: funcs})
	first, err := autotool.Build(context.Background(), p, "lib", autotool.WithMaxTools(10))
	require.NoError(t, err)
	for range 3 {
		again, err := autotool.Build(context.Background(), p, "lib", autotool.WithMaxTools(10))
		require.NoError(t, err)
		assert.Equal(t, toolIDs(first.Tools), toolIDs(again.Tools))
	}
	assert.Equal(t, "lib_get_00", first.Tools[0].ID)
}
