package autotool

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlay_Compile(t *testing.T) {
	ov := &Overlay{
		BoostPatterns:       []Pattern{{Match: "("}},
		DestructivePatterns: []string{"[z-a]"},
		TierLimits:          map[string]int{"p2": -1},
	}
	err := ov.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boostPatterns[0]")
	assert.Contains(t, err.Error(), "destructivePatterns[0]")
	assert.Contains(t, err.Error(), "tierLimits[p2]")
	assert.Equal(t, err, ov.Compile(), "compiled once")

	var nilOverlay *Overlay
	assert.NoError(t, nilOverlay.Compile())
	assert.Zero(t, nilOverlay.boostFor("get", ""))
	assert.False(t, nilOverlay.forcesDestructive("delete"))
	assert.Equal(t, SourceDefault, nilOverlay.SourceOrDefault())
}

func TestOverlay_Matching(t *testing.T) {
	ov := &Overlay{
		BoostPatterns: []Pattern{
			{Match: "^get", Target: TargetName, Weight: 2},
			{Match: "repo", Target: TargetOwner, Weight: 1},
			{Match: "item", Weight: 4},
		},
		ImportantOwners:  []string{"ItemService"},
		PrioritizedNames: []string{"Merge"},
	}
	require.NoError(t, ov.Compile())

	assert.InDelta(t, 2+4, ov.boostFor("GetItem", ""), 1e-9)
	assert.InDelta(t, 1, ov.boostFor("list", "RepoClient"), 1e-9)
	assert.InDelta(t, 4, ov.boostFor("list", "ItemStore"), 1e-9, "untargeted patterns match the owner too")
	assert.True(t, ov.isImportantOwner("shop.ItemService"))
	assert.True(t, ov.isImportantOwner("itemservice"))
	assert.False(t, ov.isImportantOwner(""))
	assert.True(t, ov.isPrioritized("merge"))
}

func TestOverlay_Description(t *testing.T) {
	ov := &Overlay{Descriptions: map[string]string{"root_get": "by id", "list": "by name", "empty": ""}}
	d, ok := ov.description("root_get", "get")
	assert.True(t, ok)
	assert.Equal(t, "by id", d)
	d, ok = ov.description("root_list", "list")
	assert.True(t, ok)
	assert.Equal(t, "by name", d)
	_, ok = ov.description("root_empty", "empty")
	assert.False(t, ok)
}

func TestNewSample(t *testing.T) {
	var descs []CapabilityDescriptor
	for i := range 80 {
		descs = append(descs, CapabilityDescriptor{Name: fmt.Sprintf("op_%02d", i), Owner: fmt.Sprintf("Owner%02d", i%20)})
	}
	descs = append(descs, descs[0])
	s := NewSample("lib", descs)
	assert.Equal(t, "lib", s.Root)
	assert.Len(t, s.Names, 50)
	assert.Len(t, s.Owners, 10)
	assert.Equal(t, "op_00", s.Names[0])
	assert.Equal(t, "Owner09", s.Owners[9])
	assert.Equal(t, s, NewSample("lib", descs))
}

func TestStaticOverlay(t *testing.T) {
	ov := &Overlay{Name: "x", Source: SourceExplicit}
	assert.Same(t, ov, StaticOverlay{Overlay: ov}.Resolve(context.Background(), "r", Sample{}))
	got := StaticOverlay{}.Resolve(context.Background(), "r", Sample{})
	assert.Equal(t, SourceDefault, got.Source)
}
