package template

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render resolves every `{{ qualified.name }}` placeholder in text against
// scope. A placeholder whose name does not resolve is left verbatim in the
// output and logged as a warning — never an error.
func Render(text string, scope *Scope, log *slog.Logger) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		val, ok := scope.Resolve(name)
		if !ok {
			if log != nil {
				log.Warn("template: unresolved reference left verbatim", "name", name)
			}
			return match
		}
		return stringify(val)
	})
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// References returns the set of placeholder names appearing in text,
// without resolving them. Used by callers that need to know which context
// entries a prompt depends on (e.g. for turn-state diffing).
func References(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	names := make([]string, 0, len(matches))
	seen := make(map[string]bool)
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
