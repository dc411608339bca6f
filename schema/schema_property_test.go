package schema

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPropertyValidObjectsAlwaysConvert(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("matching objects convert every field to its declared type", prop.ForAll(
		func(title string, score int, final bool) bool {
			s := New("doc", true,
				String("title", true),
				Int("score", true),
				Bool("final", true),
			)
			out, err := s.ValidateAndConvert(map[string]any{
				"title": title,
				"score": float64(score), // as decoded from JSON
				"final": final,
			})
			if err != nil {
				return false
			}
			_, titleOK := out["title"].(string)
			_, scoreOK := out["score"].(int)
			_, finalOK := out["final"].(bool)
			return titleOK && scoreOK && finalOK
		},
		gen.AnyString(),
		gen.Int(),
		gen.Bool(),
	))

	properties.Property("every missing required field is named in one failure", prop.ForAll(
		func(count int) bool {
			fields := make([]Field, count)
			names := make([]string, count)
			for i := range fields {
				names[i] = fmt.Sprintf("field_%d", i)
				fields[i] = String(names[i], true)
			}
			_, err := New("doc", false, fields...).ValidateAndConvert(map[string]any{})
			if err == nil {
				return count == 0
			}
			for _, name := range names {
				if !strings.Contains(err.Error(), fmt.Sprintf("%q", name)) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
