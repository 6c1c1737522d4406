package capability

import (
	"context"
	"fmt"
	"time"

	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

// Builtins returns the script-facing data functions for one run. The run's
// context is closed over at construction, so a cancelled run cancels every
// in-flight load. Each call converts the loaded dataset into fresh script
// values — scripts never alias cached memory.
func Builtins(ctx context.Context, loader Loader) starlark.StringDict {
	return starlark.StringDict{
		NameTrades:   starlark.NewBuiltin(NameTrades, tradesBuiltin(ctx, loader)),
		NameBalances: starlark.NewBuiltin(NameBalances, balancesBuiltin(ctx, loader)),
		NameHistory:  starlark.NewBuiltin(NameHistory, historyBuiltin(ctx, loader)),
	}
}

type builtinFunc = func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func tradesBuiltin(ctx context.Context, loader Loader) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		days := DefaultTradeDays
		var venue, asset starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"days?", &days, "venue?", &venue, "asset?", &asset); err != nil {
			return nil, err
		}
		call := Call{Name: NameTrades, Days: days}
		var err error
		if call.Venue, err = optString(b.Name(), "venue", venue); err != nil {
			return nil, err
		}
		if call.Asset, err = optString(b.Name(), "asset", asset); err != nil {
			return nil, err
		}
		return load(ctx, loader, call)
	}
}

func balancesBuiltin(ctx context.Context, loader Loader) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
			return nil, err
		}
		return load(ctx, loader, Call{Name: NameBalances})
	}
}

func historyBuiltin(ctx context.Context, loader Loader) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		days := DefaultHistoryDays
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "days?", &days); err != nil {
			return nil, err
		}
		return load(ctx, loader, Call{Name: NameHistory, Days: days})
	}
}

func load(ctx context.Context, loader Loader, call Call) (starlark.Value, error) {
	if err := call.Validate(); err != nil {
		return nil, err
	}
	ds, err := loader(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call.Name, err)
	}
	return toRows(call.Name, ds)
}

// toRows converts a dataset into a list of row dicts.
func toRows(name string, ds *Dataset) (starlark.Value, error) {
	rows := make([]starlark.Value, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		if len(row) != len(ds.Columns) {
			return nil, fmt.Errorf("%s: row has %d cells, want %d", name, len(row), len(ds.Columns))
		}
		dict := starlark.NewDict(len(ds.Columns))
		for i, col := range ds.Columns {
			cell, err := cellValue(row[i])
			if err != nil {
				return nil, fmt.Errorf("%s: column %q: %w", name, col, err)
			}
			if err := dict.SetKey(starlark.String(col), cell); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		rows = append(rows, dict)
	}
	return starlark.NewList(rows), nil
}

func cellValue(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case time.Time:
		return starlarktime.Time(v), nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}

// optString unwraps an optional string argument, treating None as absent.
func optString(fnname, param string, v starlark.Value) (string, error) {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return "", nil
	case starlark.String:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s: %s must be a string or None, got %s", fnname, param, v.Type())
	}
}
