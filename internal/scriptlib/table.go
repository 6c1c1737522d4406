package scriptlib

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// tableModule provides row operations over the list-of-dicts shape the data
// functions return. Transforms (filter_eq, pluck, sort_by) accept empty
// input; aggregators (group_by, sum_by, count_by) fail loudly on it.
var tableModule = &starlarkstruct.Module{
	Name: "table",
	Members: starlark.StringDict{
		"filter_eq": starlark.NewBuiltin("table.filter_eq", tableFilterEq),
		"pluck":     starlark.NewBuiltin("table.pluck", tablePluck),
		"sort_by":   starlark.NewBuiltin("table.sort_by", tableSortBy),
		"group_by":  starlark.NewBuiltin("table.group_by", tableGroupBy),
		"sum_by":    starlark.NewBuiltin("table.sum_by", tableSumBy),
		"count_by":  starlark.NewBuiltin("table.count_by", tableCountBy),
	},
}

func tableFilterEq(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rows starlark.Iterable
	var key string
	var want starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &rows, &key, &want); err != nil {
		return nil, err
	}
	list, err := collectRows(b.Name(), rows)
	if err != nil {
		return nil, err
	}
	var out []starlark.Value
	for _, row := range list {
		v, err := rowValue(b.Name(), row, key)
		if err != nil {
			return nil, err
		}
		eq, err := starlark.Equal(v, want)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		if eq {
			out = append(out, row)
		}
	}
	return starlark.NewList(out), nil
}

func tablePluck(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rows starlark.Iterable
	var key string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &rows, &key); err != nil {
		return nil, err
	}
	list, err := collectRows(b.Name(), rows)
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, 0, len(list))
	for _, row := range list {
		v, err := rowValue(b.Name(), row, key)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return starlark.NewList(out), nil
}

func tableSortBy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rows starlark.Iterable
	var key string
	var reverse bool
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"rows", &rows, "key", &key, "reverse?", &reverse); err != nil {
		return nil, err
	}
	list, err := collectRows(b.Name(), rows)
	if err != nil {
		return nil, err
	}

	type keyedRow struct {
		key starlark.Value
		row starlark.Value
	}
	pairs := make([]keyedRow, len(list))
	for i, row := range list {
		k, err := rowValue(b.Name(), row, key)
		if err != nil {
			return nil, err
		}
		pairs[i] = keyedRow{key: k, row: row}
	}

	op := syntax.LT
	if reverse {
		op = syntax.GT
	}
	var sortErr error
	sort.SliceStable(pairs, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		less, err := starlark.Compare(op, pairs[i].key, pairs[j].key)
		if err != nil {
			sortErr = err
		}
		return less
	})
	if sortErr != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), sortErr)
	}

	out := make([]starlark.Value, len(pairs))
	for i, p := range pairs {
		out[i] = p.row
	}
	return starlark.NewList(out), nil
}

func tableGroupBy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rows starlark.Iterable
	var key string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &rows, &key); err != nil {
		return nil, err
	}
	list, err := aggregateRows(b.Name(), rows)
	if err != nil {
		return nil, err
	}
	out := starlark.NewDict(8)
	for _, row := range list {
		k, err := rowValue(b.Name(), row, key)
		if err != nil {
			return nil, err
		}
		existing, found, err := out.Get(k)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		if !found {
			group := starlark.NewList([]starlark.Value{row})
			if err := out.SetKey(k, group); err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
			continue
		}
		if err := existing.(*starlark.List).Append(row); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return out, nil
}

func tableSumBy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rows starlark.Iterable
	var key, field string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &rows, &key, &field); err != nil {
		return nil, err
	}
	list, err := aggregateRows(b.Name(), rows)
	if err != nil {
		return nil, err
	}
	out := starlark.NewDict(8)
	for _, row := range list {
		k, err := rowValue(b.Name(), row, key)
		if err != nil {
			return nil, err
		}
		v, err := rowValue(b.Name(), row, field)
		if err != nil {
			return nil, err
		}
		f, ok := starlark.AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s: column %q holds %s, want a number", b.Name(), field, v.Type())
		}
		total := 0.0
		if existing, found, err := out.Get(k); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		} else if found {
			total, _ = starlark.AsFloat(existing)
		}
		if err := out.SetKey(k, starlark.Float(total+f)); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return out, nil
}

func tableCountBy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rows starlark.Iterable
	var key string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &rows, &key); err != nil {
		return nil, err
	}
	list, err := aggregateRows(b.Name(), rows)
	if err != nil {
		return nil, err
	}
	out := starlark.NewDict(8)
	for _, row := range list {
		k, err := rowValue(b.Name(), row, key)
		if err != nil {
			return nil, err
		}
		n := 0
		if existing, found, err := out.Get(k); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		} else if found {
			n, _ = starlark.AsInt32(existing)
		}
		if err := out.SetKey(k, starlark.MakeInt(n+1)); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return out, nil
}

// collectRows materializes an iterable of rows.
func collectRows(fnname string, rows starlark.Iterable) ([]starlark.Value, error) {
	var list []starlark.Value
	iter := rows.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		if _, ok := v.(*starlark.Dict); !ok {
			return nil, fmt.Errorf("%s: want a row dict, got %s", fnname, v.Type())
		}
		list = append(list, v)
	}
	return list, nil
}

// aggregateRows is collectRows plus the fail-loud empty check.
func aggregateRows(fnname string, rows starlark.Iterable) ([]starlark.Value, error) {
	list, err := collectRows(fnname, rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: empty table", fnname)
	}
	return list, nil
}

// rowValue fetches a column from a row, failing on absent columns so typos
// surface as errors instead of silent empty results.
func rowValue(fnname string, row starlark.Value, key string) (starlark.Value, error) {
	dict := row.(*starlark.Dict) // collectRows already checked the type
	v, found, err := dict.Get(starlark.String(key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnname, err)
	}
	if !found {
		return nil, fmt.Errorf("%s: row has no column %q", fnname, key)
	}
	return v, nil
}
