package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AUTOTOOL_HINTS_DIR", "")
	t.Setenv("AUTOTOOL_BOLT_PATH", "")
	t.Setenv("AUTOTOOL_REDIS_URL", "")
	t.Setenv("OPENAI_API_KEY", "")
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInspect(t *testing.T) {
	out, err := run(t, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "root inventory:")
	assert.Contains(t, out, "catalog_delete_item")

	out, err = run(t, "inspect", "--json", "--max-tools", "2")
	require.NoError(t, err)
	var got struct {
		Root    string           `json:"root"`
		Overlay string           `json:"overlay"`
		Tools   []map[string]any `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "inventory", got.Root)
	assert.Equal(t, "explicit", got.Overlay)
	assert.Len(t, got.Tools, 2)
}

func TestInvoke(t *testing.T) {
	out, err := run(t, "invoke", "catalog_get_item", `{"sku": "nut-m6"}`)
	require.NoError(t, err)
	var res struct {
		Value map[string]any `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "M6 nut", res.Value["name"])

	out, err = run(t, "invoke", "no_such_tool")
	require.Error(t, err)
	assert.Contains(t, out, `"kind": "not_found"`)
}

func TestInvoke_BadFlags(t *testing.T) {
	_, err := run(t, "invoke", "inventory_summary", "--auth", "{nope")
	require.Error(t, err)

	_, err = run(t, "inspect", "--log-level", "loud")
	require.Error(t, err)
}

func TestSchema(t *testing.T) {
	out, err := run(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "boostPatterns")
}
