package schema

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-go/agentkit/types"
)

func answerSchema(strict bool) *OutputSchema {
	return New("answer", strict,
		String("title", true).Length(1, 100),
		Int("score", true).Range(0, 100),
		Bool("final", false),
		Float("confidence", false).Range(0, 1),
	)
}

func TestValidateAndConvertSuccess(t *testing.T) {
	// Values as encoding/json decodes them: numbers arrive as float64.
	out, err := answerSchema(true).ValidateAndConvert(map[string]any{
		"title":      "ok",
		"score":      float64(42),
		"final":      true,
		"confidence": 0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, "ok", out["title"])
	assert.Equal(t, 42, out["score"])
	assert.Equal(t, true, out["final"])
	assert.Equal(t, 0.9, out["confidence"])
}

func TestMissingRequiredFieldsAllReported(t *testing.T) {
	_, err := answerSchema(false).ValidateAndConvert(map[string]any{})
	require.Error(t, err)

	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), `"title"`)
	assert.Contains(t, err.Error(), `"score"`)
}

func TestStrictModeRejectsUnknownKeys(t *testing.T) {
	_, err := answerSchema(true).ValidateAndConvert(map[string]any{
		"title":    "ok",
		"score":    float64(1),
		"surprise": "extra",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown field "surprise"`)

	// Non-strict schemas pass unknown keys through untouched.
	out, err := answerSchema(false).ValidateAndConvert(map[string]any{
		"title":    "ok",
		"score":    float64(1),
		"surprise": "extra",
	})
	require.NoError(t, err)
	assert.Equal(t, "extra", out["surprise"])
}

func TestStructuralErrorsShortCircuitConversion(t *testing.T) {
	// title is missing AND score is garbage; only the structural error
	// should be reported because pass 2 never runs.
	_, err := answerSchema(false).ValidateAndConvert(map[string]any{
		"score": "not a number at all",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "title"`)
	assert.NotContains(t, err.Error(), "not a number")
}

func TestConversionErrorsAggregated(t *testing.T) {
	_, err := answerSchema(false).ValidateAndConvert(map[string]any{
		"title": "",           // below min length
		"score": float64(500), // above max
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "title"`)
	assert.Contains(t, err.Error(), `field "score"`)
}

func TestValidationNeverPartiallyApplies(t *testing.T) {
	out, err := answerSchema(false).ValidateAndConvert(map[string]any{
		"title": "fine",
		"score": float64(999),
	})
	assert.Error(t, err)
	assert.Nil(t, out, "failed validation must not return converted fields")
}

func TestFieldConstraints(t *testing.T) {
	tests := []struct {
		name    string
		field   Field
		value   any
		wantErr bool
	}{
		{"enum ok", String("s", true).Enum("a", "b"), "a", false},
		{"enum violation", String("s", true).Enum("a", "b"), "c", true},
		{"pattern ok", String("s", true).Pattern(regexp.MustCompile(`^\d+$`)), "123", false},
		{"pattern violation", String("s", true).Pattern(regexp.MustCompile(`^\d+$`)), "12a", true},
		{"int from string", Int("n", true), "7", false},
		{"int from fraction", Int("n", true), 1.5, true},
		{"bool from string", Bool("b", true), "true", false},
		{"bool garbage", Bool("b", true), "yep", true},
		{"float from int", Float("f", true), 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.field.Convert(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestListFieldValidatesElements(t *testing.T) {
	f := List("tags", true, String("tag", true).Length(1, 10))

	out, err := f.Convert([]any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)

	_, err = f.Convert([]any{"ok", ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 1")
}

func TestValidateJSONStripsCodeFence(t *testing.T) {
	s := New("resp", true, String("answer", true))

	for _, raw := range []string{
		`{"answer": "42"}`,
		"```json\n{\"answer\": \"42\"}\n```",
		"```\n{\"answer\": \"42\"}\n```",
	} {
		out, err := s.ValidateJSON(raw)
		require.NoError(t, err, "input: %s", raw)
		assert.Equal(t, "42", out["answer"])
	}
}

func TestValidateJSONRejectsNonObject(t *testing.T) {
	_, err := New("resp", true).ValidateJSON("plain prose, not JSON")
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}
