// Package scriptlib defines the language surface available to analysis
// scripts: the parser dialect and the loadable utility modules. The validator
// and the runtime both build on this package, so the scripts that pass the
// static gate are exactly the scripts the runtime can serve.
package scriptlib

import (
	"fmt"
	"sort"

	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Dialect returns the parser options for analysis scripts. Set literals,
// while loops and top-level control flow are enabled; recursion stays
// disabled so scripts cannot exhaust the interpreter stack.
func Dialect() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
	}
}

// registry holds the loadable modules, keyed by the name scripts use.
var registry = map[string]*starlarkstruct.Module{
	"math":  starlarkmath.Module,
	"time":  starlarktime.Module,
	"json":  starlarkjson.Module,
	"stats": statsModule,
	"table": tableModule,
}

// ModuleNames returns the loadable module names, sorted.
func ModuleNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Modules returns the module objects for predeclaration, so scripts can use
// qualified access (math.sqrt) without an explicit load.
func Modules() starlark.StringDict {
	dict := make(starlark.StringDict, len(registry))
	for name, mod := range registry {
		dict[name] = mod
	}
	return dict
}

// Load serves load() statements from the registry. Only registered modules
// resolve; everything else is an error, mirroring the static import gate.
func Load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	mod, ok := registry[module]
	if !ok {
		return nil, fmt.Errorf("module %q is not available", module)
	}
	return mod.Members, nil
}
