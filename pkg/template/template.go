// Package template substitutes {{placeholder}} expressions in node
// configuration values using the execution context.
package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{(.+?)\}\}`)

// Render replaces each {{ key }} occurrence in text with the stringified
// context value. Keys may use dotted paths into nested maps
// ("response.body.id"). Unresolved keys are left verbatim so a missing
// value is visible in the output rather than silently cleared.
func Render(text string, context map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.TrimSpace(match[2 : len(match)-2])

		value, ok := lookup(context, key)
		if !ok {
			return match
		}

		return Stringify(value)
	})
}

// RenderMap renders every string value in config, descending into nested
// maps and slices. Non-string values pass through untouched.
func RenderMap(config map[string]any, context map[string]any) map[string]any {
	rendered := make(map[string]any, len(config))
	for k, v := range config {
		rendered[k] = renderValue(v, context)
	}

	return rendered
}

func renderValue(value any, context map[string]any) any {
	switch v := value.(type) {
	case string:
		return Render(v, context)
	case map[string]any:
		return RenderMap(v, context)
	case []any:
		rendered := make([]any, len(v))
		for i, item := range v {
			rendered[i] = renderValue(item, context)
		}

		return rendered
	default:
		return value
	}
}

// lookup resolves a dotted path against nested map[string]any values.
func lookup(context map[string]any, key string) (any, bool) {
	if value, ok := context[key]; ok {
		return value, true
	}

	parts := strings.Split(key, ".")

	var current any = context

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Stringify converts a context value to its string form for substitution.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return string(encoded)
	}
}
