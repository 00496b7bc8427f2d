package kernelserver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Assignments renders args as python assignment statements, one per line,
// sorted by name.
func Assignments(args map[string]any) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		if s, ok := args[name].(string); ok {
			lines = append(lines, fmt.Sprintf("%s = %q", name, s))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s = %s", name, literal(args[name])))
	}
	return strings.Join(lines, "\n")
}

func literal(v any) string {
	switch v := v.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return "'" + strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), "'", `\'`) + "'"
	case json.Number:
		return v.String()
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, literal(item))
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}
