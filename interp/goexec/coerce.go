package goexec

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/snow-ghost/probe/core"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// coerce converts a generated or reviewer-supplied value into a value of type t.
// Values are the shapes produced by generation and JSON input: bool, int, float64,
// string, []any, map[string]any, nil and *core.Instance.
func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if inst, ok := v.(*core.Instance); ok {
		v = inst.Value
	}
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	}
	// instances are held as *T; a parameter declared as T gets a copy
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv.Elem())
		return out, nil
	}

	switch t.Kind() {
	case reflect.Interface:
		if rv.Type().Implements(t) {
			out := reflect.New(t).Elem()
			out.Set(rv)
			return out, nil
		}
	case reflect.Bool:
		if b, ok := v.(bool); ok {
			return reflect.ValueOf(b).Convert(t), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, ok := core.AsInt64(v); ok {
			out := reflect.New(t).Elem()
			if out.OverflowInt(n) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
			}
			out.SetInt(n)
			return out, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, ok := core.AsInt64(v); ok {
			out := reflect.New(t).Elem()
			if n < 0 || out.OverflowUint(uint64(n)) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
			}
			out.SetUint(uint64(n))
			return out, nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := core.AsFloat64(v); ok {
			out := reflect.New(t).Elem()
			if out.OverflowFloat(f) {
				return reflect.Value{}, fmt.Errorf("%g overflows %s", f, t)
			}
			out.SetFloat(f)
			return out, nil
		}
	case reflect.String:
		if s, ok := v.(string); ok {
			return reflect.ValueOf(s).Convert(t), nil
		}
	case reflect.Slice:
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			out := reflect.MakeSlice(t, rv.Len(), rv.Len())
			for i := 0; i < rv.Len(); i++ {
				e, err := coerce(rv.Index(i).Interface(), t.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
				}
				out.Index(i).Set(e)
			}
			return out, nil
		}
	case reflect.Array:
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Len() == t.Len() {
			out := reflect.New(t).Elem()
			for i := 0; i < rv.Len(); i++ {
				e, err := coerce(rv.Index(i).Interface(), t.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
				}
				out.Index(i).Set(e)
			}
			return out, nil
		}
	case reflect.Map:
		if rv.Kind() == reflect.Map {
			out := reflect.MakeMapWithSize(t, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				k, err := coerceKey(iter.Key().Interface(), t.Key())
				if err != nil {
					return reflect.Value{}, err
				}
				e, err := coerce(iter.Value().Interface(), t.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("key %v: %w", iter.Key().Interface(), err)
				}
				out.SetMapIndex(k, e)
			}
			return out, nil
		}
	case reflect.Struct:
		if m, ok := v.(map[string]any); ok {
			out := reflect.New(t).Elem()
			if err := setFields(out, m); err != nil {
				return reflect.Value{}, err
			}
			return out, nil
		}
	case reflect.Pointer:
		e, err := coerce(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t.Elem())
		out.Elem().Set(e)
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s (%T) as %s", core.Render(v), v, t)
}

// coerceKey accepts JSON object keys (always strings) for numeric map keys.
func coerceKey(k any, t reflect.Type) (reflect.Value, error) {
	if s, ok := k.(string); ok && t.Kind() != reflect.String {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return coerce(int(n), t)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return coerce(f, t)
		}
	}
	return coerce(k, t)
}

// setFields assigns exported struct fields by name.
func setFields(st reflect.Value, m map[string]any) error {
	for name, val := range m {
		f := st.FieldByName(name)
		if !f.IsValid() {
			return fmt.Errorf("%s has no field %q", st.Type(), name)
		}
		if !f.CanSet() {
			return fmt.Errorf("field %q of %s is not settable", name, st.Type())
		}
		cv, err := coerce(val, f.Type())
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		f.Set(cv)
	}
	return nil
}

// coerceArgs builds the reflect arguments for fn, skipping the first skip inputs.
// The variadic parameter, if any, is bound to a slice and passed with CallSlice.
func coerceArgs(ft reflect.Type, skip int, args []core.BoundArg) ([]reflect.Value, error) {
	if want := ft.NumIn() - skip; len(args) != want {
		return nil, &core.ArgumentError{Err: fmt.Errorf("expected %d arguments, got %d", want, len(args))}
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pos := skip + i
		val := a.Value
		if ft.IsVariadic() && pos == ft.NumIn()-1 && val == nil {
			val = []any{}
		}
		cv, err := coerce(val, ft.In(pos))
		if err != nil {
			return nil, &core.ArgumentError{Param: a.Param.Name, Err: err}
		}
		in[i] = cv
	}
	return in, nil
}

// collect turns call results into a single value. A non-nil trailing error is the callee's failure.
func collect(results []reflect.Value) (any, error) {
	if n := len(results); n > 0 && results[n-1].Type() == errorType {
		last := results[n-1]
		if !last.IsNil() {
			err, ok := last.Interface().(error)
			if !ok {
				err = errors.New(fmt.Sprint(last.Interface()))
			}
			return nil, &core.CalleeError{Err: err}
		}
		results = results[:n-1]
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return export(results[0]), nil
	default:
		out := make([]any, len(results))
		for i, r := range results {
			out[i] = export(r)
		}
		return out, nil
	}
}

func export(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return nil
		}
	}
	if !v.CanInterface() {
		return fmt.Sprintf("%v", v)
	}
	return v.Interface()
}
