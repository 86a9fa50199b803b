package autotool

import (
	"bytes"
	"encoding/json"
)

// schemaValidator validates a JSON-like value (e.g. map[string]any from json.Unmarshal).
// *jsonschema.Resolved implements it.
type schemaValidator interface {
	Validate(v any) error
}

// validateArguments checks raw arguments against a tool's input schema.
// An empty payload is validated as an empty object.
func validateArguments(tool string, validate schemaValidator, raw json.RawMessage) error {
	var v any = map[string]any{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return &Error{Kind: CoercionError, Tool: tool, Message: "json parse error: " + err.Error(), Err: err}
		}
	}
	if err := validate.Validate(v); err != nil {
		return &Error{Kind: CoercionError, Tool: tool, Message: err.Error(), Err: err}
	}
	return nil
}
