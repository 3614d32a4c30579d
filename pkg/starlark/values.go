package starlark

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/neurodesk/webtools/pkg/template"
	"go.starlark.net/starlark"
)

// Value wraps a Starlark value to implement template.Value.
type Value struct {
	v starlark.Value
}

var _ template.Value = Value{}

// Starlark returns the wrapped value.
func (w Value) Starlark() starlark.Value { return w.v }

func (w Value) Type() string { return w.v.Type() }

func (w Value) Truth() bool { return bool(w.v.Truth()) }

// Text reports strings and numbers as text; everything else renders as a
// type placeholder.
func (w Value) Text() (string, bool) {
	switch v := w.v.(type) {
	case starlark.String:
		return string(v), true
	case starlark.Int, starlark.Float:
		return v.String(), true
	}
	return "", false
}

func (w Value) String() string { return w.v.String() }

// FromStarlark wraps val; None becomes an absent (nil) value.
func FromStarlark(val starlark.Value) template.Value {
	if val == nil || val == starlark.None {
		return nil
	}
	return Value{val}
}

func toStarlark(val template.Value) starlark.Value {
	switch v := val.(type) {
	case nil:
		return starlark.None
	case Value:
		return v.v
	}
	if s, ok := val.Text(); ok {
		return starlark.String(s)
	}
	return starlark.None
}

// ToStarlark converts a Go value to a Starlark value. Maps must have
// string keys; their keys are inserted in sorted order.
func ToStarlark(val any) (starlark.Value, error) {
	switch v := val.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case template.Value:
		return toStarlark(v), nil
	case string:
		return starlark.String(v), nil
	case []byte:
		return starlark.String(string(v)), nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int32:
		return starlark.MakeInt64(int64(v)), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float32:
		return starlark.Float(float64(v)), nil
	case float64:
		return starlark.Float(v), nil
	case time.Time:
		return starlark.String(v.Format(time.RFC3339)), nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]starlark.Value, rv.Len())
		for i := range items {
			item, err := ToStarlark(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return starlark.NewList(items), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(keys))
		for _, k := range keys {
			item, err := ToStarlark(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), item); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return starlark.None, nil
		}
		return ToStarlark(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16:
		return starlark.MakeInt64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return starlark.MakeUint64(rv.Uint()), nil
	case reflect.String:
		return starlark.String(rv.String()), nil
	}
	return nil, fmt.Errorf("unsupported type %T", val)
}

// ToGo converts a Starlark value to plain Go values: string, int64,
// float64, bool, nil, []any and map[string]any.
func ToGo(val starlark.Value) (any, error) {
	switch v := val.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(v), nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		return v.String(), nil
	case starlark.Float:
		return float64(v), nil
	case starlark.Bytes:
		return []byte(v), nil
	case *starlark.List:
		return sequenceToGo(v)
	case starlark.Tuple:
		return sequenceToGo(v)
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("unsupported dict key type %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, err
			}
			out[string(key)] = gv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %s", val.Type())
}

func sequenceToGo(seq starlark.Indexable) ([]any, error) {
	out := make([]any, seq.Len())
	for i := range out {
		gv, err := ToGo(seq.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = gv
	}
	return out, nil
}
