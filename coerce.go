package autotool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Coerce converts v to the Go form of the given type tag: string, int64,
// float64, bool, []byte, []any or map[string]any. Unknown passes through with
// JSON numbers normalized.
func Coerce(t TypeTag, v any) (any, error) {
	if n, ok := v.(json.Number); ok {
		v = normalizeNumber(n)
	}
	switch t {
	case TypeString:
		return toString(v)
	case TypeInteger:
		return toInteger(v)
	case TypeNumber:
		return toNumber(v)
	case TypeBoolean:
		return toBoolean(v)
	case TypeBytes:
		switch x := v.(type) {
		case string:
			return []byte(x), nil
		case []byte:
			return x, nil
		}
	case TypeCollection:
		switch x := v.(type) {
		case []any:
			return x, nil
		case string:
			var out []any
			if err := decodeJSONText(x, &out); err == nil {
				return out, nil
			}
		}
	case TypeMapping:
		switch x := v.(type) {
		case map[string]any:
			return x, nil
		case string:
			var out map[string]any
			if err := decodeJSONText(x, &out); err == nil && out != nil {
				return out, nil
			}
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("cannot convert %s to %s", describeValue(v), t)
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("cannot convert %s to string", describeValue(v))
}

func toInteger(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<63 {
			return int64(x), nil
		}
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return int64(f), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %s to integer", describeValue(v))
}

func toNumber(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %s to number", describeValue(v))
}

func toBoolean(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %s to boolean", describeValue(v))
}

func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func decodeJSONText(s string, dst any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func describeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(truncateText(x, 40))
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

// bindArguments decodes raw JSON arguments and coerces them against params.
// Errors are CoercionErrors naming the offending parameter; the callable is
// never reached with arguments that failed here.
func bindArguments(tool string, params []ParameterDescriptor, raw json.RawMessage) (Arguments, error) {
	fail := func(param, format string, a ...any) (Arguments, error) {
		return Arguments{}, &Error{Kind: CoercionError, Tool: tool, Param: param, Message: fmt.Sprintf(format, a...)}
	}
	in := map[string]any{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&in); err != nil {
			return fail("", "arguments must be a JSON object: %v", err)
		}
	}
	for name := range in {
		if !slices.ContainsFunc(params, func(p ParameterDescriptor) bool { return p.Name == name }) {
			return fail(name, "unknown argument")
		}
	}

	args := Arguments{Named: make(map[string]any, len(params))}
	for _, p := range params {
		v, present := in[p.Name]
		if present && v == nil {
			present = false
		}
		if p.Variadic {
			if !present {
				continue
			}
			items, ok := v.([]any)
			if !ok {
				items = []any{v}
			}
			for i, item := range items {
				cv, err := Coerce(p.Type, item)
				if err != nil {
					return fail(p.Name, "element %d: %v", i, err)
				}
				args.Variadic = append(args.Variadic, cv)
			}
			continue
		}
		switch {
		case present:
			cv, err := Coerce(p.Type, v)
			if err != nil {
				return fail(p.Name, "%v", err)
			}
			args.Positional = append(args.Positional, cv)
			args.Named[p.Name] = cv
		case p.HasDefault:
			args.Positional = append(args.Positional, p.Default)
			args.Named[p.Name] = p.Default
		case p.Required:
			return fail(p.Name, "missing required argument")
		default:
			args.Positional = append(args.Positional, nil)
		}
	}
	return args, nil
}
