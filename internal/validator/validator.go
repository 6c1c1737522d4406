// Package validator performs static admission checks on analysis scripts.
// Every script passes through here before any execution scope exists — a
// rejected script never touches the runtime, never calls a data function,
// and leaves no trace beyond its verdict.
//
// Validation runs in two stages:
//   - Stage one is a literal token scan over the raw source. It is
//     deliberately blunt: banned tokens are rejected wherever they appear,
//     including inside string literals and comments. A script that merely
//     mentions "eval" in a quoted string is rejected — acceptable collateral
//     for a gate that runs before parsing.
//   - Stage two parses the script and walks the syntax tree, enforcing the
//     module allow-list, the call allow-list, attribute restrictions, the
//     anonymous-function ban, and protection of runtime-supplied names.
//
// Both stages are pure: no script code is ever evaluated, and the validator
// keeps no state between checks. Safe for concurrent use.
package validator

import (
	"fmt"
	"strings"
)

// Rejection classes. Each rejected script is tagged with exactly one.
type Class string

const (
	ClassSyntax             Class = "syntax"
	ClassForbiddenImport    Class = "forbidden_import"
	ClassForbiddenCall      Class = "forbidden_call"
	ClassForbiddenAttribute Class = "forbidden_attribute"
	ClassAnonymousFunction  Class = "anonymous_function"
	ClassWildcardImport     Class = "wildcard_import"
	ClassReservedName       Class = "reserved_name"
	ClassTooLarge           Class = "too_large"
)

// Verdict is the outcome of a validation check.
// The zero value is not meaningful; use Accept or a reject* constructor.
type Verdict struct {
	OK        bool   `json:"ok"`
	Class     Class  `json:"class,omitempty"`     // Set when OK is false.
	Construct string `json:"construct,omitempty"` // The offending token, name, or module.
	Pos       string `json:"pos,omitempty"`       // "line:col" where known, "" otherwise.
	Detail    string `json:"detail,omitempty"`    // Human-readable explanation.
}

// Reason renders the verdict as a single rejection line for logs and results.
func (v Verdict) Reason() string {
	if v.OK {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(v.Class))
	if v.Construct != "" {
		fmt.Fprintf(&b, ": %q", v.Construct)
	}
	if v.Detail != "" {
		b.WriteString(" — ")
		b.WriteString(v.Detail)
	}
	if v.Pos != "" {
		fmt.Fprintf(&b, " (at %s)", v.Pos)
	}
	return b.String()
}

const defaultMaxScriptBytes = 64 << 10 // 64 KB

// Config configures a Validator.
type Config struct {
	// MaxScriptBytes caps raw script size. Zero = 64 KB default.
	MaxScriptBytes int

	// Capabilities are the data-function names the runtime injects
	// (e.g. "get_trades"). Scripts may call them but never rebind them.
	Capabilities []string

	// Modules is the loadable-module allow-list (e.g. "math", "stats").
	Modules []string
}

// Validator checks scripts against the admission rules.
// Construct once with New; all methods are safe for concurrent use.
type Validator struct {
	maxScriptBytes int
	modules        map[string]struct{} // loadable modules
	capabilities   map[string]struct{} // injected data functions
	reserved       map[string]struct{} // names scripts may not rebind
}

// New creates a Validator for the given runtime surface.
func New(cfg Config) *Validator {
	maxBytes := cfg.MaxScriptBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxScriptBytes
	}

	v := &Validator{
		maxScriptBytes: maxBytes,
		modules:        make(map[string]struct{}, len(cfg.Modules)),
		capabilities:   make(map[string]struct{}, len(cfg.Capabilities)),
		reserved:       make(map[string]struct{}),
	}
	for _, m := range cfg.Modules {
		v.modules[m] = struct{}{}
		v.reserved[m] = struct{}{}
	}
	for _, c := range cfg.Capabilities {
		v.capabilities[c] = struct{}{}
		v.reserved[c] = struct{}{}
	}
	// Built-in callables are runtime-supplied too: a script that shadows
	// "print" or "len" is up to no good.
	for name := range builtinCalls {
		v.reserved[name] = struct{}{}
	}
	return v
}

// Check validates a script and returns a verdict. It never executes code.
func (v *Validator) Check(src string) Verdict {
	if strings.TrimSpace(src) == "" {
		return reject(ClassSyntax, "", "", "empty script")
	}
	if len(src) > v.maxScriptBytes {
		return reject(ClassTooLarge, "", "",
			fmt.Sprintf("script is %d bytes, limit is %d", len(src), v.maxScriptBytes))
	}

	// Stage one: literal token scan.
	if verdict := scanTokens(src); !verdict.OK {
		return verdict
	}

	// Stage two: parse and walk the syntax tree.
	return v.checkStructure(src)
}

func accept() Verdict {
	return Verdict{OK: true}
}

func reject(class Class, construct, pos, detail string) Verdict {
	return Verdict{Class: class, Construct: construct, Pos: pos, Detail: detail}
}
