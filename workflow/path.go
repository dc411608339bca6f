package workflow

import (
	"strconv"
	"strings"
)

// pathPrefix marks a recipe value as a reference into the working state.
const pathPrefix = "$"

// IsPath reports whether s is a working-state reference.
func IsPath(s string) bool {
	return strings.HasPrefix(s, pathPrefix) && len(s) > len(pathPrefix)
}

// ResolvePath walks a dot-separated path like "$research.score" through the
// working state. Map segments are looked up by key; slice segments by numeric
// index. The boolean reports whether the full path resolved.
func ResolvePath(root map[string]any, path string) (any, bool) {
	if !IsPath(path) {
		return nil, false
	}
	var current any = root
	for _, seg := range strings.Split(strings.TrimPrefix(path, pathPrefix), ".") {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// resolveValue substitutes a working-state reference when v is a "$path"
// string, and returns v unchanged otherwise. Unresolvable paths yield nil so
// conditions can compare against absent keys.
func resolveValue(root map[string]any, v any) any {
	s, ok := v.(string)
	if !ok || !IsPath(s) {
		return v
	}
	resolved, ok := ResolvePath(root, s)
	if !ok {
		return nil
	}
	return resolved
}
