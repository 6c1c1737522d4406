package validator

import (
	"fmt"
	"regexp"
	"strings"
)

// bannedTokens maps each stage-one token to its rejection class. The list is
// fixed: these are the names whose mere presence marks a script as hostile or
// confused, regardless of where they occur in the source.
var bannedTokens = map[string]struct {
	class  Class
	detail string
}{
	"open":       {ClassForbiddenCall, "raw file access is not available"},
	"eval":       {ClassForbiddenCall, "dynamic evaluation is not available"},
	"exec":       {ClassForbiddenCall, "dynamic execution is not available"},
	"compile":    {ClassForbiddenCall, "dynamic compilation is not available"},
	"__import__": {ClassForbiddenCall, "dynamic import is not available"},
	"lambda":     {ClassAnonymousFunction, "anonymous functions are not allowed; use def"},
	"os":         {ClassForbiddenImport, "operating system access is not available"},
	"sys":        {ClassForbiddenImport, "interpreter internals are not available"},
	"subprocess": {ClassForbiddenImport, "process control is not available"},
	"socket":     {ClassForbiddenImport, "network access is not available"},
}

// bannedPattern matches any banned token on word boundaries, so "os" fires
// for the bare word but not for "cost" or "close".
var bannedPattern = regexp.MustCompile(`\b(open|eval|exec|compile|__import__|lambda|os|sys|subprocess|socket)\b`)

// scanTokens is stage one: a literal scan of the raw source.
func scanTokens(src string) Verdict {
	loc := bannedPattern.FindStringIndex(src)
	if loc == nil {
		return accept()
	}
	token := src[loc[0]:loc[1]]
	entry := bannedTokens[token]
	return reject(entry.class, token, offsetPos(src, loc[0]), entry.detail)
}

// offsetPos converts a byte offset into a 1-based "line:col" string.
func offsetPos(src string, offset int) string {
	prefix := src[:offset]
	line := strings.Count(prefix, "\n") + 1
	col := offset - strings.LastIndex(prefix, "\n") // LastIndex is -1 on line 1
	return fmt.Sprintf("%d:%d", line, col)
}
