package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/autotool"
	"github.com/skosovsky/autotool/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })
	return a
}

func TestNew_Defaults(t *testing.T) {
	a := newApp(t, Config{})

	ts := a.Toolset()
	assert.Equal(t, "inventory", ts.Root)
	assert.Equal(t, autotool.SourceExplicit, ts.Overlay.Source, "bundled hints")
	_, ok := ts.Lookup("catalog_list_items")
	assert.True(t, ok)
	assert.NotNil(t, a.Server())

	res := a.Bridge().Invoke(context.Background(), autotool.Call{Tool: "inventory_summary", Args: testutil.Args(`{}`)})
	require.NoError(t, res.Err())
	assert.Equal(t, map[string]any{"items": int64(3), "orders": int64(0)}, res.Value)

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "autotool_tool_calls_total")
}

func TestNew_Options(t *testing.T) {
	a := newApp(t, Config{
		MaxTools: 3,
		Auth:     map[string]any{"customer": "acme"},
		BoltPath: filepath.Join(t.TempDir(), "overlays.db"),
	})
	assert.Len(t, a.Toolset().Tools, 3)
}

func TestNew_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newApp(t, Config{RedisURL: "redis://" + mr.Addr()})
	assert.NotEmpty(t, a.Toolset().Tools)
}

func TestNew_BadRedisURL(t *testing.T) {
	_, err := New(context.Background(), Config{RedisURL: "not-a-url"})
	require.Error(t, err)
}

func TestNew_UnknownRoot(t *testing.T) {
	_, err := New(context.Background(), Config{Root: "nope"})
	require.ErrorIs(t, err, autotool.ErrLoad)
}
