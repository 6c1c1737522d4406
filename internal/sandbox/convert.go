package sandbox

import (
	"fmt"
	"time"

	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

// maxConvertDepth bounds result conversion. Script values can be cyclic
// (a list appended to itself); the guard turns that into an error instead
// of unbounded recursion.
const maxConvertDepth = 50

// fromStarlark converts a script value into plain Go values: nil, bool,
// int64, float64, string, time.Time, time.Duration, []any, map[string]any.
func fromStarlark(v starlark.Value) (any, error) {
	return fromStarlarkDepth(v, 0)
}

func fromStarlarkDepth(v starlark.Value, depth int) (any, error) {
	if depth > maxConvertDepth {
		return nil, fmt.Errorf("value nesting exceeds %d levels", maxConvertDepth)
	}

	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		// Out of int64 range: keep the digits rather than overflow.
		return v.String(), nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case starlarktime.Time:
		return time.Time(v), nil
	case starlarktime.Duration:
		return time.Duration(v), nil
	case *starlark.List:
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, err := fromStarlarkDepth(v.Index(i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	case starlark.Tuple:
		out := make([]any, len(v))
		for i, item := range v {
			elem, err := fromStarlarkDepth(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	case *starlark.Set:
		out := make([]any, 0, v.Len())
		iter := v.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			elem, err := fromStarlarkDepth(item, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, kv := range v.Items() {
			key, ok := starlark.AsString(kv[0])
			if !ok {
				key = kv[0].String() // non-string keys keep their repr
			}
			val, err := fromStarlarkDepth(kv[1], depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported result type %s", v.Type())
	}
}
