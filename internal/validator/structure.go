package validator

import (
	"fmt"
	"strings"

	"go.starlark.net/syntax"

	"github.com/benputley1/cex-reporter-sub000/internal/scriptlib"
)

// scriptFilename is the pseudo-filename attached to parsed scripts; it shows
// up in syntax-error messages surfaced to the user.
const scriptFilename = "script.star"

// builtinCalls is the positive allow-list for bare-name calls: the
// arithmetic, iteration and aggregation subset of the universe. Notably
// absent: getattr, hasattr, dir and friends — reflection has no place here.
var builtinCalls = map[string]struct{}{
	"abs": {}, "all": {}, "any": {}, "bool": {}, "dict": {},
	"enumerate": {}, "fail": {}, "float": {}, "int": {}, "len": {},
	"list": {}, "max": {}, "min": {}, "print": {}, "range": {},
	"repr": {}, "reversed": {}, "set": {}, "sorted": {}, "str": {},
	"tuple": {}, "zip": {},
}

// introspectionAttrs are attribute names that probe or mutate the execution
// environment rather than operate on a value.
var introspectionAttrs = map[string]struct{}{
	"getattr": {}, "setattr": {}, "hasattr": {}, "delattr": {},
	"dir": {}, "globals": {}, "locals": {}, "vars": {},
}

// checkStructure is stage two: parse the script and enforce the structural
// rules on its syntax tree.
func (v *Validator) checkStructure(src string) Verdict {
	file, err := scriptlib.Dialect().Parse(scriptFilename, src, 0)
	if err != nil {
		// The parser's message already carries file:line:col.
		return reject(ClassSyntax, "", "", err.Error())
	}

	// First pass: names the script itself binds. A call to one of these is a
	// call to the script's own code, which is always permitted.
	defined := collectBoundNames(file)

	var bad *Verdict
	fail := func(verdict Verdict) {
		if bad == nil {
			bad = &verdict
		}
	}

	syntax.Walk(file, func(n syntax.Node) bool {
		if bad != nil {
			return false
		}
		switch n := n.(type) {
		case *syntax.LoadStmt:
			v.checkLoad(n, fail)
			return false // module literal and symbol idents already handled

		case *syntax.LambdaExpr:
			fail(reject(ClassAnonymousFunction, "lambda", nodePos(n),
				"anonymous functions are not allowed; use def"))
			return false

		case *syntax.CallExpr:
			v.checkCall(n, defined, fail)

		case *syntax.DotExpr:
			v.checkAttr(n, fail)

		case *syntax.AssignStmt:
			eachTarget(n.LHS, func(id *syntax.Ident) {
				v.checkRebind(id, fail)
			})

		case *syntax.DefStmt:
			v.checkRebind(n.Name, fail)
			for _, p := range n.Params {
				if id := paramIdent(p); id != nil {
					v.checkRebind(id, fail)
				}
			}

		case *syntax.ForStmt:
			eachTarget(n.Vars, func(id *syntax.Ident) {
				v.checkRebind(id, fail)
			})

		case *syntax.ForClause:
			eachTarget(n.Vars, func(id *syntax.Ident) {
				v.checkRebind(id, fail)
			})
		}
		return true
	})

	if bad != nil {
		return *bad
	}
	return accept()
}

// checkLoad enforces the module allow-list and the wildcard ban, and keeps
// load bindings off the reserved names.
func (v *Validator) checkLoad(stmt *syntax.LoadStmt, fail func(Verdict)) {
	module, ok := stmt.Module.Value.(string)
	if !ok {
		fail(reject(ClassSyntax, "", nodePos(stmt), "load requires a quoted module name"))
		return
	}
	if _, allowed := v.modules[module]; !allowed {
		fail(reject(ClassForbiddenImport, module, nodePos(stmt),
			"module is not on the allow list"))
		return
	}
	for _, from := range stmt.From {
		if from.Name == "*" {
			fail(reject(ClassWildcardImport, module, nodePos(stmt),
				"wildcard imports are not allowed; name each symbol"))
			return
		}
	}
	for _, to := range stmt.To {
		v.checkRebind(to, fail)
	}
}

// checkCall enforces the call allow-list for statically known callees.
func (v *Validator) checkCall(call *syntax.CallExpr, defined map[string]struct{}, fail func(Verdict)) {
	switch fn := unparen(call.Fn).(type) {
	case *syntax.Ident:
		name := fn.Name
		if _, ok := builtinCalls[name]; ok {
			return
		}
		if _, ok := v.capabilities[name]; ok {
			return
		}
		if _, ok := defined[name]; ok {
			return
		}
		fail(reject(ClassForbiddenCall, name, nodePos(fn),
			"not a built-in, a data function, or a name this script defines"))

	case *syntax.DotExpr:
		// Method and module-member calls are judged by the attribute rules,
		// which the walk applies to the DotExpr itself.

	default:
		fail(reject(ClassForbiddenCall, "", nodePos(call),
			"callee must be a named function, not a computed expression"))
	}
}

// checkAttr rejects dunder and introspection attribute access.
func (v *Validator) checkAttr(dot *syntax.DotExpr, fail func(Verdict)) {
	name := dot.Name.Name
	if isDunder(name) {
		fail(reject(ClassForbiddenAttribute, name, nodePos(dot.Name),
			"double-underscore attributes are not accessible"))
		return
	}
	if _, ok := introspectionAttrs[name]; ok {
		fail(reject(ClassForbiddenAttribute, name, nodePos(dot.Name),
			"introspection is not available"))
	}
}

// checkRebind rejects bindings that would shadow a runtime-supplied name.
func (v *Validator) checkRebind(id *syntax.Ident, fail func(Verdict)) {
	if _, ok := v.reserved[id.Name]; ok {
		fail(reject(ClassReservedName, id.Name, nodePos(id),
			"rebinding a sandbox-provided name is not allowed"))
	}
}

// collectBoundNames gathers every name the script binds: def names and
// parameters, assignment targets, loop and comprehension variables, and
// load bindings. Binding order is irrelevant here — the runtime resolver
// handles use-before-definition.
func collectBoundNames(file *syntax.File) map[string]struct{} {
	names := make(map[string]struct{})
	bind := func(id *syntax.Ident) { names[id.Name] = struct{}{} }

	syntax.Walk(file, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.AssignStmt:
			if n.Op == syntax.EQ {
				eachTarget(n.LHS, bind)
			}
		case *syntax.DefStmt:
			bind(n.Name)
			for _, p := range n.Params {
				if id := paramIdent(p); id != nil {
					bind(id)
				}
			}
		case *syntax.ForStmt:
			eachTarget(n.Vars, bind)
		case *syntax.ForClause:
			eachTarget(n.Vars, bind)
		case *syntax.LoadStmt:
			for _, to := range n.To {
				bind(to)
			}
			return false
		}
		return true
	})
	return names
}

// eachTarget visits the identifiers bound by an assignment target, unpacking
// tuple and list destructuring. Index and attribute targets bind nothing.
func eachTarget(e syntax.Expr, fn func(*syntax.Ident)) {
	switch t := e.(type) {
	case *syntax.Ident:
		fn(t)
	case *syntax.TupleExpr:
		for _, elem := range t.List {
			eachTarget(elem, fn)
		}
	case *syntax.ListExpr:
		for _, elem := range t.List {
			eachTarget(elem, fn)
		}
	case *syntax.ParenExpr:
		eachTarget(t.X, fn)
	}
}

// paramIdent extracts the name from a def parameter: a bare name, a
// name=default pair, or a *args / **kwargs form.
func paramIdent(p syntax.Expr) *syntax.Ident {
	switch t := p.(type) {
	case *syntax.Ident:
		return t
	case *syntax.BinaryExpr: // name=default
		if id, ok := t.X.(*syntax.Ident); ok {
			return id
		}
	case *syntax.UnaryExpr: // *args or **kwargs
		if id, ok := t.X.(*syntax.Ident); ok {
			return id
		}
	}
	return nil
}

func unparen(e syntax.Expr) syntax.Expr {
	for {
		p, ok := e.(*syntax.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

func nodePos(n syntax.Node) string {
	start, _ := n.Span()
	return fmt.Sprintf("%d:%d", start.Line, start.Col)
}
