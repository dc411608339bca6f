package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	working := map[string]any{
		"input": "hello",
		"research": map[string]any{
			"score": 7.5,
			"refs":  []any{"a", "b"},
		},
	}

	tests := []struct {
		name  string
		path  string
		want  any
		found bool
	}{
		{name: "top level", path: "$input", want: "hello", found: true},
		{name: "nested map", path: "$research.score", want: 7.5, found: true},
		{name: "slice index", path: "$research.refs.1", want: "b", found: true},
		{name: "missing key", path: "$research.title", found: false},
		{name: "index out of range", path: "$research.refs.5", found: false},
		{name: "non numeric index", path: "$research.refs.x", found: false},
		{name: "descend into scalar", path: "$input.deeper", found: false},
		{name: "not a path", path: "input", found: false},
		{name: "bare dollar", path: "$", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolvePath(working, tt.path)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestResolveValue(t *testing.T) {
	working := map[string]any{"score": 3}

	assert.Equal(t, 3, resolveValue(working, "$score"))
	assert.Equal(t, "literal", resolveValue(working, "literal"))
	assert.Equal(t, 42, resolveValue(working, 42))
	assert.Nil(t, resolveValue(working, "$missing"), "unresolvable path yields nil")
}
