package autotoolprom

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/autotool"
	"github.com/skosovsky/autotool/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg, "")
	require.NoError(t, err)

	p := testutil.NewProvider("repo", &testutil.Namespace{
		Name:    "repo",
		Package: "repo",
		Funcs: []*testutil.Func{
			{Name: "get_file", Fn: func(context.Context, any, autotool.Arguments) (any, error) { return "ok", nil }},
			{
				Name:   "delete_file",
				Params: []autotool.ParameterDescriptor{{Name: "path", Type: autotool.TypeString, Required: true}},
				Fn:     func(context.Context, any, autotool.Arguments) (any, error) { return nil, errors.New("denied") },
			},
		},
	})
	_, b := testutil.NewTestBridge(t, p, "repo")
	b.Use(m.Middleware())

	ctx := context.Background()
	for range 3 {
		require.NoError(t, b.Invoke(ctx, autotool.Call{Tool: "repo_get_file"}).Err())
	}
	require.Error(t, b.Invoke(ctx, autotool.Call{Tool: "repo_delete_file", Args: testutil.Args(`{"path": "x"}`)}).Err())
	require.Error(t, b.Invoke(ctx, autotool.Call{Tool: "repo_delete_file", Args: testutil.Args(`{}`)}).Err())

	assert.InDelta(t, 3, promtest.ToFloat64(m.calls.WithLabelValues("repo_get_file", "ok")), 0)
	assert.InDelta(t, 2, promtest.ToFloat64(m.calls.WithLabelValues("repo_delete_file", "error")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.errors.WithLabelValues("repo_delete_file", "invocation")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.errors.WithLabelValues("repo_delete_file", "coercion")), 0)
	assert.InDelta(t, 0, promtest.ToFloat64(m.inFlight.WithLabelValues("repo_get_file")), 0)
	assert.Equal(t, 2, promtest.CollectAndCount(m.duration))
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "x")
	require.NoError(t, err)
	_, err = New(reg, "x")
	require.Error(t, err)
}
