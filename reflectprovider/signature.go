package reflectprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/skosovsky/autotool"
)

type paramMode int

const (
	modePositional paramMode = iota
	modeStruct               // a single args struct whose fields are the parameters
)

// signature is the analyzed form of a function type.
type signature struct {
	fn         reflect.Type
	injectCtx  bool
	mode       paramMode
	argsType   reflect.Type // modeStruct: the struct type, possibly behind a pointer
	fields     []int        // modeStruct: field index per parameter
	params     []autotool.ParameterDescriptor
	returnType string
	async      bool
	errLast    bool
}

func analyze(ft reflect.Type, names []string) (*signature, error) {
	s := &signature{fn: ft}
	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		s.injectCtx = true
		first = 1
	}
	if ft.NumIn()-first == 1 && !ft.IsVariadic() && isArgsStruct(ft.In(first)) {
		if err := s.structParams(ft.In(first)); err != nil {
			return nil, err
		}
	} else {
		for i := first; i < ft.NumIn(); i++ {
			pos := i - first
			name := "arg" + strconv.Itoa(pos)
			if pos < len(names) && names[pos] != "" {
				name = names[pos]
			}
			t := ft.In(i)
			variadic := ft.IsVariadic() && i == ft.NumIn()-1
			if variadic {
				t = t.Elem()
			}
			s.params = append(s.params, autotool.ParameterDescriptor{
				Name:     name,
				Type:     typeTag(t),
				Required: !variadic && t.Kind() != reflect.Pointer,
				Variadic: variadic,
			})
		}
	}

	outs := ft.NumOut()
	if outs > 0 && ft.Out(outs-1) == errorType {
		s.errLast = true
		outs--
	}
	if outs > 1 {
		return nil, fmt.Errorf("unsupported signature %s: more than one result besides error", ft)
	}
	if outs == 1 {
		rt := ft.Out(0)
		s.returnType = rt.String()
		s.async = rt.Kind() == reflect.Chan && rt.ChanDir()&reflect.RecvDir != 0
	}
	return s, nil
}

// isArgsStruct reports whether t is a struct, or pointer to one, with
// exported fields, used as a named-parameter bundle.
func isArgsStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := range t.NumField() {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func (s *signature) structParams(t reflect.Type) error {
	s.mode = modeStruct
	s.argsType = t
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	for i := range st.NumField() {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitEmpty, skip := jsonName(f)
		if skip {
			continue
		}
		p := autotool.ParameterDescriptor{
			Name:        name,
			Type:        typeTag(f.Type),
			Required:    !omitEmpty && f.Type.Kind() != reflect.Pointer,
			Description: f.Tag.Get("description"),
		}
		if def, ok := f.Tag.Lookup("default"); ok {
			v, err := autotool.Coerce(p.Type, def)
			if err != nil {
				return fmt.Errorf("field %s: default %q: %w", f.Name, def, err)
			}
			p.Default, p.HasDefault, p.Required = v, true, false
		}
		s.params = append(s.params, p)
		s.fields = append(s.fields, i)
	}
	return nil
}

func jsonName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, strings.Contains(opts, "omitempty") || strings.Contains(opts, "omitzero"), false
}

var bytesType = reflect.TypeFor[[]byte]()

func typeTag(t reflect.Type) autotool.TypeTag {
	if t == bytesType {
		return autotool.TypeBytes
	}
	switch t.Kind() {
	case reflect.Pointer:
		return typeTag(t.Elem())
	case reflect.String:
		return autotool.TypeString
	case reflect.Bool:
		return autotool.TypeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return autotool.TypeInteger
	case reflect.Float32, reflect.Float64:
		return autotool.TypeNumber
	case reflect.Slice, reflect.Array:
		return autotool.TypeCollection
	case reflect.Map, reflect.Struct:
		return autotool.TypeMapping
	}
	return autotool.TypeUnknown
}

// bind converts coerced Arguments into call arguments.
func (s *signature) bind(ctx context.Context, args autotool.Arguments) ([]reflect.Value, error) {
	var in []reflect.Value
	if s.injectCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	if s.mode == modeStruct {
		sv, err := s.bindStruct(args)
		if err != nil {
			return nil, err
		}
		return append(in, sv), nil
	}

	first := len(in)
	fixed := s.fn.NumIn() - first
	if s.fn.IsVariadic() {
		fixed--
	}
	for i := range fixed {
		var v any
		if i < len(args.Positional) {
			v = args.Positional[i]
		}
		rv, err := convert(v, s.fn.In(first+i))
		if err != nil {
			return nil, &autotool.Error{Kind: autotool.CoercionError, Param: s.params[i].Name, Message: err.Error(), Err: err}
		}
		in = append(in, rv)
	}
	if s.fn.IsVariadic() {
		elem := s.fn.In(s.fn.NumIn() - 1).Elem()
		for j, v := range args.Variadic {
			rv, err := convert(v, elem)
			if err != nil {
				return nil, &autotool.Error{Kind: autotool.CoercionError, Param: s.params[fixed].Name,
					Message: fmt.Sprintf("element %d: %v", j, err), Err: err}
			}
			in = append(in, rv)
		}
	}
	return in, nil
}

func (s *signature) bindStruct(args autotool.Arguments) (reflect.Value, error) {
	st := s.argsType
	ptr := st.Kind() == reflect.Pointer
	if ptr {
		st = st.Elem()
	}
	sv := reflect.New(st).Elem()
	for i, p := range s.params {
		v, ok := args.Named[p.Name]
		if !ok || v == nil {
			continue
		}
		f := sv.Field(s.fields[i])
		rv, err := convert(v, f.Type())
		if err != nil {
			return reflect.Value{}, &autotool.Error{Kind: autotool.CoercionError, Param: p.Name, Message: err.Error(), Err: err}
		}
		f.Set(rv)
	}
	if ptr {
		return sv.Addr(), nil
	}
	return sv, nil
}

// convert turns a coerced value into a value of type t. nil becomes the zero
// value; numbers are range-checked; composite values go through JSON.
func convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if t.Kind() == reflect.Pointer {
		inner, err := convert(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := v.(int64); ok {
			out := reflect.New(t).Elem()
			if out.OverflowInt(i) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", i, t)
			}
			out.SetInt(i)
			return out, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if i, ok := v.(int64); ok {
			out := reflect.New(t).Elem()
			if i < 0 || out.OverflowUint(uint64(i)) {
				return reflect.Value{}, fmt.Errorf("%d out of range for %s", i, t)
			}
			out.SetUint(uint64(i))
			return out, nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := v.(float64); ok {
			out := reflect.New(t).Elem()
			if t.Kind() == reflect.Float32 && math.Abs(f) > math.MaxFloat32 {
				return reflect.Value{}, fmt.Errorf("%g overflows %s", f, t)
			}
			out.SetFloat(f)
			return out, nil
		}
	case reflect.String, reflect.Bool:
		if rv.Type().ConvertibleTo(t) && rv.Kind() == t.Kind() {
			return rv.Convert(t), nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
	}
	out := reflect.New(t)
	if err := json.Unmarshal(data, out.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %s as %s", data, t)
	}
	return out.Elem(), nil
}

// results maps the call's return values to (value, error). Receive-only
// channels become Awaitables.
func (s *signature) results(out []reflect.Value) (any, error) {
	if s.errLast {
		if errV := out[len(out)-1]; !errV.IsNil() {
			return nil, errV.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	v := out[0]
	if s.async {
		if v.IsNil() {
			return nil, nil
		}
		return awaitChan(v), nil
	}
	return v.Interface(), nil
}

func awaitChan(ch reflect.Value) autotool.AwaitFunc {
	return func(ctx context.Context) (any, error) {
		chosen, v, ok := reflect.Select([]reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: ch},
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		})
		if chosen == 1 {
			return nil, ctx.Err()
		}
		if !ok {
			return nil, nil
		}
		if err, isErr := v.Interface().(error); isErr && err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
}
