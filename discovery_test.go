package autotool_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/autotool"
	"github.com/skosovsky/autotool/testutil"
)

func descriptorNames(ds []autotool.CapabilityDescriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

func TestDiscover_CycleTerminates(t *testing.T) {
	a := &testutil.Namespace{Name: "A", Package: "lib", Funcs: []*testutil.Func{{Name: "get_a"}}}
	b := &testutil.Namespace{Name: "B", Package: "lib", Funcs: []*testutil.Func{{Name: "get_b"}}}
	a.Children = []*testutil.Namespace{b}
	b.Children = []*testutil.Namespace{a}
	root := &testutil.Namespace{Name: "lib", Package: "lib", Children: []*testutil.Namespace{a}}

	disc, err := autotool.Discover(context.Background(), testutil.NewProvider("lib", root), "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"get_a", "get_b"}, descriptorNames(disc.Descriptors))
}

func TestDiscover_SkipsUnreadableMembers(t *testing.T) {
	root := &testutil.Namespace{Name: "lib", Package: "lib",
		Funcs: []*testutil.Func{
			{Name: "ok"},
			{Name: "broken", ReadErr: errors.New("no signature")},
		},
		Children: []*testutil.Namespace{{Name: "Sub", Package: "lib", EnumErr: errors.New("import failed")}},
	}
	disc, err := autotool.Discover(context.Background(), testutil.NewProvider("lib", root), "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, descriptorNames(disc.Descriptors))
	assert.Equal(t, 2, disc.Skipped)
	require.Len(t, disc.SkipErrors, 2)
	for _, e := range disc.SkipErrors {
		assert.ErrorIs(t, e, autotool.ErrMemberRead)
	}
}

type panickyProvider struct{ *testutil.Provider }

func (p panickyProvider) ReadMetadata(h autotool.MemberHandle) (autotool.Metadata, error) {
	if h.Name == "explode" {
		panic("metadata exploded")
	}
	return p.Provider.ReadMetadata(h)
}

func TestDiscover_PanicIsSkipped(t *testing.T) {
	root := &testutil.Namespace{Name: "lib", Funcs: []*testutil.Func{{Name: "explode"}, {Name: "fine"}}}
	disc, err := autotool.Discover(context.Background(), panickyProvider{testutil.NewProvider("lib", root)}, "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"fine"}, descriptorNames(disc.Descriptors))
	assert.Equal(t, 1, disc.Skipped)
}

func TestDiscover_Dedup(t *testing.T) {
	shared := &testutil.Func{Name: "get", Params: []autotool.ParameterDescriptor{{Name: "id", Type: autotool.TypeString}}}
	x := &testutil.Namespace{Name: "X", Package: "lib", Owner: "Client", Funcs: []*testutil.Func{shared}}
	y := &testutil.Namespace{Name: "Y", Package: "lib", Owner: "Client", Funcs: []*testutil.Func{shared}}
	root := &testutil.Namespace{Name: "lib", Package: "lib", Children: []*testutil.Namespace{x, y}}

	disc, err := autotool.Discover(context.Background(), testutil.NewProvider("lib", root), "lib")
	require.NoError(t, err)
	require.Len(t, disc.Descriptors, 1)
	assert.Equal(t, 1, disc.Duplicates)
	assert.Equal(t, "lib:X.get", disc.Descriptors[0].QualifiedPath, "first in name order wins")
}

func TestDiscover_Containment(t *testing.T) {
	inner := &testutil.Namespace{Name: "inner", Package: "lib/inner", Funcs: []*testutil.Func{{Name: "kept"}}}
	foreign := &testutil.Namespace{Name: "json", Package: "encoding/json", Funcs: []*testutil.Func{{Name: "Marshal"}}}
	root := &testutil.Namespace{Name: "lib", Package: "lib", Children: []*testutil.Namespace{inner, foreign}}

	disc, err := autotool.Discover(context.Background(), testutil.NewProvider("lib", root), "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, descriptorNames(disc.Descriptors))
}

func TestDiscover_DepthLimit(t *testing.T) {
	root := &testutil.Namespace{Name: "lib", Package: "lib"}
	cur := root
	for i := range 15 {
		next := &testutil.Namespace{Name: fmt.Sprintf("n%02d", i), Package: "lib", Funcs: []*testutil.Func{{Name: fmt.Sprintf("at_%02d", i+1)}}}
		cur.Children = []*testutil.Namespace{next}
		cur = next
	}
	p := testutil.NewProvider("lib", root)

	disc, err := autotool.Discover(context.Background(), p, "lib")
	require.NoError(t, err)
	assert.Len(t, disc.Descriptors, autotool.DefaultMaxDepth)

	disc, err = autotool.Discover(context.Background(), p, "lib", autotool.WithMaxDepth(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"at_01", "at_02"}, descriptorNames(disc.Descriptors))
}

func TestDiscover_Exclusions(t *testing.T) {
	root := &testutil.Namespace{Name: "lib", Funcs: []*testutil.Func{{Name: "__init__"}, {Name: "get"}, {Name: "test_helper"}}}
	disc, err := autotool.Discover(context.Background(), testutil.NewProvider("lib", root), "lib",
		autotool.WithExcludePatterns("^test_"))
	require.NoError(t, err)
	assert.Equal(t, []string{"get"}, descriptorNames(disc.Descriptors))
}

func TestDiscover_LoadError(t *testing.T) {
	_, err := autotool.Discover(context.Background(), testutil.NewProvider("lib", &testutil.Namespace{Name: "lib"}), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, autotool.ErrLoad)
	var e *autotool.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "missing", e.Root)
}

func TestDiscover_Deterministic(t *testing.T) {
	root := &testutil.Namespace{Name: "lib", Package: "lib",
		Funcs: []*testutil.Func{{Name: "zeta"}, {Name: "alpha"}},
		Children: []*testutil.Namespace{
			{Name: "Svc", Package: "lib", Funcs: []*testutil.Func{{Name: "b"}, {Name: "a"}}},
		},
	}
	p := testutil.NewProvider("lib", root)
	first, err := autotool.Discover(context.Background(), p, "lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta", "a", "b"}, descriptorNames(first.Descriptors))
	for range 3 {
		again, err := autotool.Discover(context.Background(), p, "lib")
		require.NoError(t, err)
		assert.Equal(t, first.Descriptors, again.Descriptors)
	}
}

func TestDiscover_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := autotool.Discover(ctx, testutil.NewProvider("lib", &testutil.Namespace{Name: "lib"}), "lib")
	assert.ErrorIs(t, err, autotool.ErrCanceled)
}
