package autotool

import (
	"cmp"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"unicode/utf8"
)

// SerializeOptions bounds serialized results. Zero fields take the defaults.
type SerializeOptions struct {
	MaxItems       int // per collection or mapping, default 100
	MaxStringBytes int // per string, default 64 KiB
	MaxResultBytes int // encoded size of the whole result, default 1 MiB
	MaxDepth       int // nesting depth, default 32
	MaxNodes       int // values visited in total, default 65536
}

// DefaultSerializeOptions returns the stock limits.
func DefaultSerializeOptions() SerializeOptions {
	return SerializeOptions{MaxItems: 100, MaxStringBytes: 64 << 10, MaxResultBytes: 1 << 20, MaxDepth: 32, MaxNodes: 1 << 16}
}

func (o SerializeOptions) withDefaults() SerializeOptions {
	d := DefaultSerializeOptions()
	o.MaxItems = cmp.Or(o.MaxItems, d.MaxItems)
	o.MaxStringBytes = cmp.Or(o.MaxStringBytes, d.MaxStringBytes)
	o.MaxResultBytes = cmp.Or(o.MaxResultBytes, d.MaxResultBytes)
	o.MaxDepth = cmp.Or(o.MaxDepth, d.MaxDepth)
	o.MaxNodes = cmp.Or(o.MaxNodes, d.MaxNodes)
	return o
}

// Serializer renders arbitrary callable results into JSON-compatible values.
// It is total: every input yields a value and it never panics.
type Serializer struct {
	opts SerializeOptions
}

// NewSerializer returns a Serializer with opts applied over the defaults.
func NewSerializer(opts SerializeOptions) *Serializer {
	return &Serializer{opts: opts.withDefaults()}
}

// Serialize converts v into nil, bool, string, int64, uint64, float64, []any
// or map[string]any. truncated reports that some part was cut and marked.
func (s *Serializer) Serialize(v any) (out any, truncated bool) {
	w := &walker{opts: s.opts}
	defer func() {
		if r := recover(); r != nil {
			out, truncated = opaque(v), w.truncated
		}
	}()
	out = w.value(reflect.ValueOf(v), 0)
	data, err := json.Marshal(out)
	if err != nil {
		return opaque(v), w.truncated
	}
	if len(data) > s.opts.MaxResultBytes {
		return s.oversized(data), true
	}
	return out, w.truncated
}

// oversized replaces a result whose encoding exceeds MaxResultBytes with a
// marker whose own encoding fits the cap.
func (s *Serializer) oversized(data []byte) map[string]any {
	marker := map[string]any{"truncated": true, "totalBytes": len(data), "preview": ""}
	empty, _ := json.Marshal(marker)
	budget := s.opts.MaxResultBytes - len(empty)
	for budget > 0 {
		preview := string(data)
		if len(preview) > budget {
			if budget <= len("...") {
				break
			}
			preview = truncateText(preview, budget)
		}
		marker["preview"] = preview
		enc, _ := json.Marshal(marker)
		over := len(enc) - s.opts.MaxResultBytes
		if over <= 0 {
			return marker
		}
		budget = min(budget, len(preview)) - over
	}
	marker["preview"] = ""
	return marker
}

// Serialize renders v with the default limits.
func Serialize(v any) any {
	out, _ := NewSerializer(SerializeOptions{}).Serialize(v)
	return out
}

type walker struct {
	opts      SerializeOptions
	truncated bool
	nodes     int
	path      map[visit]struct{}
}

// visit identifies a pointer, map or slice on the current path.
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

func visitOf(v reflect.Value) visit {
	k := visit{ptr: v.Pointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		k.len = v.Len()
	}
	return k
}

// enter records v on the current path. It reports false when v is already
// there, which means the value refers back to itself.
func (w *walker) enter(v reflect.Value) bool {
	k := visitOf(v)
	if _, ok := w.path[k]; ok {
		return false
	}
	if w.path == nil {
		w.path = make(map[visit]struct{})
	}
	w.path[k] = struct{}{}
	return true
}

func (w *walker) leave(v reflect.Value) { delete(w.path, visitOf(v)) }

func (w *walker) cycle(v reflect.Value) string {
	w.truncated = true
	return fmt.Sprintf("<cycle: %s>", v.Type())
}

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	errorType         = reflect.TypeFor[error]()
	stringerType      = reflect.TypeFor[fmt.Stringer]()
	bytesType         = reflect.TypeFor[[]byte]()
)

func (w *walker) value(v reflect.Value, depth int) any {
	if !v.IsValid() {
		return nil
	}
	if depth > w.opts.MaxDepth {
		w.truncated = true
		return fmt.Sprintf("<%s: depth limit>", v.Type())
	}
	w.nodes++
	if w.nodes > w.opts.MaxNodes {
		w.truncated = true
		return fmt.Sprintf("<%s: node limit>", v.Type())
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
	}
	if out, ok := w.special(v); ok {
		return out
	}

	switch v.Kind() {
	case reflect.Pointer:
		if !w.enter(v) {
			return w.cycle(v)
		}
		defer w.leave(v)
		return w.value(v.Elem(), depth+1)
	case reflect.Interface:
		return w.value(v.Elem(), depth+1)
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return f
	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v.Complex())
	case reflect.String:
		return w.text(v.String())
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return w.bytes(v.Bytes())
		}
		if v.Len() > 0 {
			if !w.enter(v) {
				return w.cycle(v)
			}
			defer w.leave(v)
		}
		return w.list(v, depth)
	case reflect.Array:
		return w.list(v, depth)
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		if !w.enter(v) {
			return w.cycle(v)
		}
		defer w.leave(v)
		return w.mapping(v, depth)
	case reflect.Struct:
		return w.object(v, depth)
	}
	return opaque(v.Interface())
}

// special handles types that describe their own representation.
func (w *walker) special(v reflect.Value) (any, bool) {
	t := v.Type()
	if !v.CanInterface() {
		return nil, false
	}
	switch {
	case t == bytesType:
		return w.bytes(v.Bytes()), true
	case t.Implements(jsonMarshalerType):
		data, err := v.Interface().(json.Marshaler).MarshalJSON()
		if err != nil {
			return opaque(v.Interface()), true
		}
		var out any
		if err := decodeJSONText(string(data), &out); err != nil {
			return opaque(v.Interface()), true
		}
		return normalizeDecoded(out), true
	case t.Implements(errorType):
		return w.text(v.Interface().(error).Error()), true
	case t.Kind() == reflect.Struct && t.Implements(stringerType) && !hasExportedFields(t):
		return w.text(v.Interface().(fmt.Stringer).String()), true
	}
	return nil, false
}

func (w *walker) text(s string) string {
	if len(s) <= w.opts.MaxStringBytes {
		return s
	}
	w.truncated = true
	return truncateText(s, w.opts.MaxStringBytes) + fmt.Sprintf(" [truncated %d bytes]", len(s)-w.opts.MaxStringBytes)
}

// bytes decodes valid UTF-8 as text, else base64 with an explicit marker.
func (w *walker) bytes(b []byte) any {
	if utf8.Valid(b) {
		return w.text(string(b))
	}
	return map[string]any{"$encoding": "base64", "data": base64.StdEncoding.EncodeToString(b)}
}

func (w *walker) list(v reflect.Value, depth int) []any {
	n := v.Len()
	keep := min(n, w.opts.MaxItems)
	out := make([]any, 0, keep+1)
	for i := range keep {
		out = append(out, w.value(v.Index(i), depth+1))
	}
	if n > keep {
		w.truncated = true
		out = append(out, map[string]any{"truncated": true, "omitted": n - keep, "total": n})
	}
	return out
}

func (w *walker) mapping(v reflect.Value, depth int) map[string]any {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: mapKey(iter.Key()), val: iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })
	keep := min(len(entries), w.opts.MaxItems)
	out := make(map[string]any, keep+1)
	for _, e := range entries[:keep] {
		out[e.key] = w.value(e.val, depth+1)
	}
	if len(entries) > keep {
		w.truncated = true
		out["$truncated"] = map[string]any{"omitted": len(entries) - keep, "total": len(entries)}
	}
	return out
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return opaque(k.Interface())
}

// object renders exported fields under their JSON names, honoring "-" and omitempty.
func (w *walker) object(v reflect.Value, depth int) any {
	t := v.Type()
	if !hasExportedFields(t) {
		return opaque(v.Interface())
	}
	out := make(map[string]any)
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitEmpty, skip := jsonField(f)
		if skip {
			continue
		}
		fv := v.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = w.value(fv, depth+1)
	}
	return out
}

func hasExportedFields(t reflect.Type) bool {
	for i := range t.NumField() {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func jsonField(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for o := range strings.SplitSeq(opts, ",") {
		if o == "omitempty" || o == "omitzero" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

// normalizeDecoded turns json.Number leaves into int64 or float64.
func normalizeDecoded(v any) any {
	switch x := v.(type) {
	case json.Number:
		return normalizeNumber(x)
	case []any:
		for i := range x {
			x[i] = normalizeDecoded(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = normalizeDecoded(x[k])
		}
	}
	return v
}

// opaque is the string fallback for values with no structured form.
func opaque(v any) (s string) {
	defer func() {
		if recover() != nil {
			s = fmt.Sprintf("<%T>", v)
		}
	}()
	switch reflect.ValueOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("<%T>", v)
	}
	return fmt.Sprintf("%v", v)
}
