package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/skosovsky/autotool"
)

// NewTestBridge builds the toolset for root and a Bridge over it, closing the
// Bridge when the test ends.
func NewTestBridge(t testing.TB, p autotool.Provider, root string, opts ...autotool.BuildOption) (*autotool.Toolset, *autotool.Bridge) {
	t.Helper()
	ts, err := autotool.Build(context.Background(), p, root, opts...)
	if err != nil {
		t.Fatalf("build %s: %v", root, err)
	}
	b := autotool.NewBridge(p, ts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return ts, b
}

// Args is shorthand for raw JSON arguments in tests.
func Args(s string) []byte { return []byte(s) }
