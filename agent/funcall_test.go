package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-go/agentkit/types"
)

func TestParseFunctionCall(t *testing.T) {
	testCases := []struct {
		name string
		line string
		want *FunctionCall
	}{
		{
			name: "no arguments",
			line: "function: ping()",
			want: &FunctionCall{Name: "ping", Args: map[string]any{}},
		},
		{
			name: "string and numeric coercion",
			line: `function: get_weather(city: "Paris", days: 3, detail: 0.5)`,
			want: &FunctionCall{Name: "get_weather", Args: map[string]any{
				"city": "Paris", "days": 3, "detail": 0.5,
			}},
		},
		{
			name: "boolean and null coercion",
			line: "function: toggle(enabled: true, fallback: false, missing: null)",
			want: &FunctionCall{Name: "toggle", Args: map[string]any{
				"enabled": true, "fallback": false, "missing": nil,
			}},
		},
		{
			name: "bare token stays a raw string",
			line: "function: lookup(key: user_42)",
			want: &FunctionCall{Name: "lookup", Args: map[string]any{"key": "user_42"}},
		},
		{
			name: "single quotes",
			line: "function: echo(text: 'hello world')",
			want: &FunctionCall{Name: "echo", Args: map[string]any{"text": "hello world"}},
		},
		{
			name: "escaped quote inside string",
			line: `function: echo(text: "say \"hi\"")`,
			want: &FunctionCall{Name: "echo", Args: map[string]any{"text": `say "hi"`}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseFunctionCall(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want.Name, got.Name)
			assert.Equal(t, tc.want.Args, got.Args)
		})
	}
}

func TestParseFunctionCallErrors(t *testing.T) {
	testCases := []struct {
		name string
		line string
	}{
		{"missing name", "function: (a: 1)"},
		{"missing open paren", "function: lookup a: 1)"},
		{"missing close paren", "function: lookup(a: 1"},
		{"missing colon", "function: lookup(a 1)"},
		{"unterminated string", `function: lookup(a: "oops)`},
		{"empty value", "function: lookup(a: , b: 2)"},
		{"trailing garbage", "function: lookup(a: 1) extra"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFunctionCall(tc.line)
			require.Error(t, err)
			assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
		})
	}
}

func TestDetectFunctionCall(t *testing.T) {
	t.Run("plain text is not a call", func(t *testing.T) {
		call, err := DetectFunctionCall("The weather in Paris is sunny.")
		require.NoError(t, err)
		assert.Nil(t, call)
	})

	t.Run("call embedded in surrounding prose", func(t *testing.T) {
		call, err := DetectFunctionCall("Let me check that.\nfunction: get_weather(city: Paris)\n")
		require.NoError(t, err)
		require.NotNil(t, call)
		assert.Equal(t, "get_weather", call.Name)
	})

	t.Run("malformed call is an error, not ignored", func(t *testing.T) {
		_, err := DetectFunctionCall("function: broken(a 1)")
		require.Error(t, err)
	})
}
