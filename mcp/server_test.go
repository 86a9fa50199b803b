package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/autotool"
	"github.com/skosovsky/autotool/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func itemsBridge(t *testing.T) *autotool.Bridge {
	t.Helper()
	p := testutil.NewProvider("items", &testutil.Namespace{
		Name:    "items",
		Package: "items",
		Funcs: []*testutil.Func{
			{
				Name: "list_items",
				Doc:  "List all items.",
				Fn: func(context.Context, any, autotool.Arguments) (any, error) {
					return []string{"a", "b"}, nil
				},
			},
			{
				Name:   "delete_item",
				Doc:    "Delete an item.",
				Params: []autotool.ParameterDescriptor{{Name: "id", Type: autotool.TypeString, Required: true}},
				Fn: func(_ context.Context, _ any, args autotool.Arguments) (any, error) {
					if args.Named["id"] == "missing" {
						return nil, errors.New("no such item")
					}
					return "deleted " + args.Named["id"].(string), nil
				},
			},
		},
	})
	_, b := testutil.NewTestBridge(t, p, "items")
	return b
}

func connect(t *testing.T, s *mcpsdk.Server) *mcpsdk.ClientSession {
	t.Helper()
	ct, st := mcpsdk.NewInMemoryTransports()
	ctx := context.Background()
	ss, err := s.Connect(ctx, st, nil)
	require.NoError(t, err)
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})
	return cs
}

func TestServer_ListTools(t *testing.T) {
	s := NewServer(itemsBridge(t), &mcpsdk.Implementation{Name: "autotool", Version: "test"})
	cs := connect(t, s)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	byName := map[string]*mcpsdk.Tool{}
	for _, tl := range res.Tools {
		byName[tl.Name] = tl
	}
	require.Contains(t, byName, "items_list_items")
	require.Contains(t, byName, "items_delete_item")

	del := byName["items_delete_item"]
	assert.Equal(t, "Delete an item.", del.Description)
	require.NotNil(t, del.Annotations)
	require.NotNil(t, del.Annotations.DestructiveHint)
	assert.True(t, *del.Annotations.DestructiveHint)

	data, err := json.Marshal(del.InputSchema)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"required":["id"]`)

	list := byName["items_list_items"]
	assert.True(t, list.Annotations.ReadOnlyHint)
	assert.False(t, *list.Annotations.DestructiveHint)
}

func TestServer_CallTool(t *testing.T) {
	cs := connect(t, NewServer(itemsBridge(t), &mcpsdk.Implementation{Name: "autotool", Version: "test"}))
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "items_list_items"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, `["a","b"]`, firstText(res))

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "items_delete_item", Arguments: map[string]any{"id": "a"}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "deleted a", firstText(res))
}

func TestServer_CallToolErrors(t *testing.T) {
	cs := connect(t, NewServer(itemsBridge(t), &mcpsdk.Implementation{Name: "autotool", Version: "test"}))
	ctx := context.Background()

	tests := map[string]struct {
		args map[string]any
		kind autotool.ErrorKind
	}{
		"invocation": {args: map[string]any{"id": "missing"}, kind: autotool.InvocationError},
		"coercion":   {args: map[string]any{}, kind: autotool.CoercionError},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "items_delete_item", Arguments: tt.args})
			require.NoError(t, err)
			require.True(t, res.IsError)
			var got struct {
				Kind autotool.ErrorKind `json:"kind"`
				Tool string             `json:"tool"`
			}
			require.NoError(t, json.Unmarshal([]byte(firstText(res)), &got))
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, "items_delete_item", got.Tool)
		})
	}
}

func TestTextResult(t *testing.T) {
	assert.Equal(t, "plain", firstText(textResult("plain")))
	assert.Equal(t, `{"n":1}`, firstText(textResult(map[string]any{"n": 1})))
	assert.Equal(t, "null", firstText(textResult(nil)))
}

func firstText(res *mcpsdk.CallToolResult) string {
	for _, c := range res.Content {
		if txt, ok := c.(*mcpsdk.TextContent); ok {
			return txt.Text
		}
	}
	return ""
}
