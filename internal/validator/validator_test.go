package validator

import (
	"strings"
	"testing"
)

func newTestValidator() *Validator {
	return New(Config{
		Capabilities: []string{"get_trades", "get_balances", "get_history"},
		Modules:      []string{"math", "time", "json", "stats", "table"},
	})
}

// --- Acceptance ---

func TestCheck_AllowsPlainArithmetic(t *testing.T) {
	v := newTestValidator()
	verdict := v.Check("result = 2 + 2")
	if !verdict.OK {
		t.Fatalf("verdict = %+v, want OK", verdict)
	}
}

func TestCheck_AllowsTypicalReport(t *testing.T) {
	v := newTestValidator()
	src := `load("math", "sqrt")

def weight(row):
    return row["qty"] * row["price"]

trades = get_trades(days=7, venue="kraken")
total = stats.sum([weight(r) for r in trades])
print("fills:", len(trades))
result = {"total": total, "root": sqrt(total)}
`
	verdict := v.Check(src)
	if !verdict.OK {
		t.Fatalf("verdict = %+v, want OK", verdict)
	}
}

func TestCheck_AllowsWhileLoop(t *testing.T) {
	v := newTestValidator()
	src := "x = 0\nwhile x < 3:\n    x += 1\nresult = x"
	if verdict := v.Check(src); !verdict.OK {
		t.Fatalf("verdict = %+v, want OK", verdict)
	}
}

func TestCheck_AllowsModuleMemberCalls(t *testing.T) {
	v := newTestValidator()
	src := "result = math.pow(2.0, 10.0)"
	if verdict := v.Check(src); !verdict.OK {
		t.Fatalf("verdict = %+v, want OK", verdict)
	}
}

// --- Pre-parse gates ---

func TestCheck_EmptyScript(t *testing.T) {
	v := newTestValidator()
	for _, src := range []string{"", "   ", "\n\t\n"} {
		verdict := v.Check(src)
		if verdict.OK {
			t.Errorf("Check(%q) accepted, want rejection", src)
			continue
		}
		if verdict.Class != ClassSyntax {
			t.Errorf("Check(%q) class = %q, want %q", src, verdict.Class, ClassSyntax)
		}
	}
}

func TestCheck_TooLarge(t *testing.T) {
	v := New(Config{MaxScriptBytes: 32})
	verdict := v.Check("result = " + strings.Repeat("1 + ", 20) + "1")
	if verdict.OK {
		t.Fatal("oversized script accepted")
	}
	if verdict.Class != ClassTooLarge {
		t.Errorf("class = %q, want %q", verdict.Class, ClassTooLarge)
	}
}

// --- Stage one: token scan ---

func TestCheck_BannedTokens(t *testing.T) {
	v := newTestValidator()

	cases := []struct {
		name      string
		src       string
		class     Class
		construct string
	}{
		{"open call", `f = open("/etc/passwd")`, ClassForbiddenCall, "open"},
		{"eval call", `result = eval("1+1")`, ClassForbiddenCall, "eval"},
		{"exec call", `exec("x = 1")`, ClassForbiddenCall, "exec"},
		{"compile call", `c = compile("1", "s", "eval")`, ClassForbiddenCall, "compile"},
		{"dunder import", `m = __import__("math")`, ClassForbiddenCall, "__import__"},
		{"os module", `load("os", "environ")`, ClassForbiddenImport, "os"},
		{"sys module", `load("sys", "path")`, ClassForbiddenImport, "sys"},
		{"subprocess module", `load("subprocess", "run")`, ClassForbiddenImport, "subprocess"},
		{"socket module", `load("socket", "create")`, ClassForbiddenImport, "socket"},
		{"lambda", `f = lambda x: x + 1`, ClassAnonymousFunction, "lambda"},
		{"token in string", `result = "please eval this"`, ClassForbiddenCall, "eval"},
		{"token in comment", "# never use exec\nresult = 1", ClassForbiddenCall, "exec"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := v.Check(tc.src)
			if verdict.OK {
				t.Fatalf("Check(%q) accepted, want rejection", tc.src)
			}
			if verdict.Class != tc.class {
				t.Errorf("class = %q, want %q", verdict.Class, tc.class)
			}
			if verdict.Construct != tc.construct {
				t.Errorf("construct = %q, want %q", verdict.Construct, tc.construct)
			}
			if verdict.Pos == "" {
				t.Error("expected a position on a token rejection")
			}
		})
	}
}

func TestCheck_TokenWordBoundaries(t *testing.T) {
	v := newTestValidator()

	// Words merely containing a banned token must pass the scan.
	for _, src := range []string{
		"oscillate = 1\nresult = oscillate",
		"execute_count = 2\nresult = execute_count",
		"opened = True\nresult = opened",
		"sys_total = 3\nresult = sys_total",
	} {
		if verdict := v.Check(src); !verdict.OK {
			t.Errorf("Check(%q) = %+v, want OK", src, verdict)
		}
	}
}

// --- Stage two: structure ---

func TestCheck_Structure(t *testing.T) {
	v := newTestValidator()

	cases := []struct {
		name      string
		src       string
		class     Class
		construct string
	}{
		{"unknown module", `load("random", "pick")`, ClassForbiddenImport, "random"},
		{"wildcard import", `load("math", "*")`, ClassWildcardImport, "math"},
		{"unknown call", "result = frobnicate(1)", ClassForbiddenCall, "frobnicate"},
		{"getattr call", `result = getattr(table, "pluck")`, ClassForbiddenCall, "getattr"},
		{"hasattr call", `result = hasattr(math, "sqrt")`, ClassForbiddenCall, "hasattr"},
		{"computed callee", "result = (rows[0])()", ClassForbiddenCall, ""},
		{"dunder attribute", "result = [].__class__", ClassForbiddenAttribute, "__class__"},
		{"introspection attribute", "result = math.globals", ClassForbiddenAttribute, "globals"},
		{"rebind builtin", "print = 5\nresult = 1", ClassReservedName, "print"},
		{"rebind capability", "get_trades = 1\nresult = 1", ClassReservedName, "get_trades"},
		{"rebind module", "math = 2\nresult = 1", ClassReservedName, "math"},
		{"def shadows builtin", "def len(x):\n    return x\nresult = 1", ClassReservedName, "len"},
		{"param shadows builtin", "def f(len):\n    return len\nresult = f(1)", ClassReservedName, "len"},
		{"loop var shadows builtin", "for print in [1]:\n    pass\nresult = 1", ClassReservedName, "print"},
		{"load binding shadows builtin", `load("math", print="sqrt")`, ClassReservedName, "print"},
		{"syntax error", "result = (", ClassSyntax, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := v.Check(tc.src)
			if verdict.OK {
				t.Fatalf("Check(%q) accepted, want rejection", tc.src)
			}
			if verdict.Class != tc.class {
				t.Errorf("class = %q, want %q", verdict.Class, tc.class)
			}
			if verdict.Construct != tc.construct {
				t.Errorf("construct = %q, want %q", verdict.Construct, tc.construct)
			}
		})
	}
}

func TestCheck_OwnDefinitionsAreCallable(t *testing.T) {
	v := newTestValidator()
	src := `result = double(21)

def double(n):
    return n * 2
`
	// Use before definition is the runtime's concern, not admission's.
	if verdict := v.Check(src); !verdict.OK {
		t.Fatalf("verdict = %+v, want OK", verdict)
	}
}

func TestCheck_ResultIsNotReserved(t *testing.T) {
	v := newTestValidator()
	// Scripts must assign result; reassigning it is equally fine.
	src := "result = 1\nresult = result + 1"
	if verdict := v.Check(src); !verdict.OK {
		t.Fatalf("verdict = %+v, want OK", verdict)
	}
}

func TestCheck_FirstViolationWins(t *testing.T) {
	v := newTestValidator()
	// Two violations; the earlier one in the walk is reported.
	verdict := v.Check("x = frobnicate(1)\ny = [].__class__")
	if verdict.OK {
		t.Fatal("accepted, want rejection")
	}
	if verdict.Class != ClassForbiddenCall {
		t.Errorf("class = %q, want %q", verdict.Class, ClassForbiddenCall)
	}
}

// --- Verdict rendering ---

func TestVerdict_Reason(t *testing.T) {
	v := newTestValidator()
	verdict := v.Check(`result = eval("1")`)
	reason := verdict.Reason()
	for _, want := range []string{"forbidden_call", `"eval"`} {
		if !strings.Contains(reason, want) {
			t.Errorf("Reason() = %q, want it to contain %q", reason, want)
		}
	}
	if ok := (Verdict{OK: true}).Reason(); ok != "" {
		t.Errorf("Reason() on OK verdict = %q, want empty", ok)
	}
}
