package authclient

import (
	"strings"
	"unicode"
)

// KeyTestFunc decides whether the key at the given dotted key path should be
// rewritten. Paths look like ".data.results.*.created_at"; slice elements
// contribute a "*" segment so one predicate covers array and object descent
// uniformly. A nil predicate converts everything.
type KeyTestFunc func(keyPath string) bool

// CamelKeys recursively camelCases every map key in a JSON-like value (the
// maps and slices produced by encoding/json). The input is never mutated;
// converted containers are freshly allocated. Values that are neither
// map[string]any nor []any pass through unchanged at the leaf position.
func CamelKeys(v any, testFunc KeyTestFunc) any {
	return mapKeys(v, camelString, testFunc, "")
}

// SnakeKeys is the inverse of CamelKeys: it recursively snake_cases every map
// key, with the same key-path predicate semantics.
func SnakeKeys(v any, testFunc KeyTestFunc) any {
	return mapKeys(v, snakeString, testFunc, "")
}

func mapKeys(v any, convert func(string) string, testFunc KeyTestFunc, keyPath string) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, el := range val {
			out[i] = mapKeys(el, convert, testFunc, keyPath+".*")
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			path := keyPath + "." + k
			key := k
			if testFunc == nil || testFunc(path) {
				key = convert(k)
			}
			out[key] = mapKeys(child, convert, testFunc, path)
		}
		return out
	default:
		return v
	}
}

// camelString converts delimiter-separated words (hyphen, underscore, space)
// into camelCase: "created_at" -> "createdAt", "Full-Name" -> "fullName".
func camelString(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	upNext := false
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || unicode.IsSpace(r):
			upNext = true
		case upNext:
			b.WriteRune(unicode.ToUpper(r))
			upNext = false
		default:
			b.WriteRune(r)
		}
	}

	out := b.String()
	if out == "" {
		return out
	}
	runes := []rune(out)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// snakeString converts camelCase into snake_case: "createdAt" -> "created_at".
func snakeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}
