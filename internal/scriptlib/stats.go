package scriptlib

import (
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// statsModule provides descriptive statistics over numeric series.
// Every aggregation fails loudly on an empty series — a report built on
// missing data must say so, never render a placeholder zero.
var statsModule = &starlarkstruct.Module{
	Name: "stats",
	Members: starlark.StringDict{
		"sum":      starlark.NewBuiltin("stats.sum", statsSum),
		"mean":     starlark.NewBuiltin("stats.mean", statsMean),
		"median":   starlark.NewBuiltin("stats.median", statsMedian),
		"variance": starlark.NewBuiltin("stats.variance", statsVariance),
		"stdev":    starlark.NewBuiltin("stats.stdev", statsStdev),
		"quantile": starlark.NewBuiltin("stats.quantile", statsQuantile),
	},
}

func statsSum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	series, err := unpackSeries(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, x := range series {
		total += x
	}
	return starlark.Float(total), nil
}

func statsMean(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	series, err := unpackSeries(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, x := range series {
		total += x
	}
	return starlark.Float(total / float64(len(series))), nil
}

func statsMedian(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	series, err := unpackSeries(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	sort.Float64s(series)
	n := len(series)
	if n%2 == 1 {
		return starlark.Float(series[n/2]), nil
	}
	return starlark.Float((series[n/2-1] + series[n/2]) / 2), nil
}

func statsVariance(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	series, err := unpackSeries(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	v, err := sampleVariance(b.Name(), series)
	if err != nil {
		return nil, err
	}
	return starlark.Float(v), nil
}

func statsStdev(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	series, err := unpackSeries(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	v, err := sampleVariance(b.Name(), series)
	if err != nil {
		return nil, err
	}
	return starlark.Float(math.Sqrt(v)), nil
}

func statsQuantile(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var xs starlark.Iterable
	var q float64
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &xs, &q); err != nil {
		return nil, err
	}
	if q < 0 || q > 1 {
		return nil, fmt.Errorf("%s: q must be in [0, 1], got %g", b.Name(), q)
	}
	series, err := floatSeries(b.Name(), xs)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%s: empty series", b.Name())
	}
	sort.Float64s(series)

	// Linear interpolation between closest ranks.
	pos := q * float64(len(series)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return starlark.Float(series[lo]), nil
	}
	frac := pos - float64(lo)
	return starlark.Float(series[lo]*(1-frac) + series[hi]*frac), nil
}

// sampleVariance computes the n-1 variance; it needs at least two values.
func sampleVariance(fnname string, series []float64) (float64, error) {
	if len(series) < 2 {
		return 0, fmt.Errorf("%s: need at least two values, got %d", fnname, len(series))
	}
	mean := 0.0
	for _, x := range series {
		mean += x
	}
	mean /= float64(len(series))

	sq := 0.0
	for _, x := range series {
		d := x - mean
		sq += d * d
	}
	return sq / float64(len(series)-1), nil
}

// unpackSeries handles the common single-argument form and rejects empty input.
func unpackSeries(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) ([]float64, error) {
	var xs starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &xs); err != nil {
		return nil, err
	}
	series, err := floatSeries(b.Name(), xs)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%s: empty series", b.Name())
	}
	return series, nil
}

func floatSeries(fnname string, xs starlark.Iterable) ([]float64, error) {
	var series []float64
	iter := xs.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		f, ok := starlark.AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("%s: want a number, got %s", fnname, v.Type())
		}
		series = append(series, f)
	}
	return series, nil
}
