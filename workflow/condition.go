package workflow

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/agentkit-go/agentkit/types"
)

// evalCondition resolves both operands against the working state and applies
// the operator. Ordering operators require numeric operands.
func evalCondition(working map[string]any, c *Condition) (bool, error) {
	left := resolveValue(working, c.Left)
	right := resolveValue(working, c.Right)

	switch c.Op {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case ">", "<", ">=", "<=":
		lf, lok := toFloat(left)
		rf, rok := toFloat(right)
		if !lok || !rok {
			return false, types.NewErrorf(types.ErrValidation,
				"operator %q requires numeric operands, got %T and %T", c.Op, left, right)
		}
		switch c.Op {
		case ">":
			return lf > rf, nil
		case "<":
			return lf < rf, nil
		case ">=":
			return lf >= rf, nil
		default:
			return lf <= rf, nil
		}
	case "contains":
		return contains(left, right)
	default:
		return false, types.NewErrorf(types.ErrValidation, "unknown condition operator %q", c.Op)
	}
}

// valuesEqual compares numerics by value so int 3 equals float64 3 decoded
// from JSON, and falls back to deep equality otherwise.
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func contains(haystack, needle any) (bool, error) {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprint(needle)), nil
	case []any:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case []string:
		for _, item := range h {
			if item == fmt.Sprint(needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := h[fmt.Sprint(needle)]
		return ok, nil
	default:
		return false, types.NewErrorf(types.ErrValidation,
			"contains requires a string, slice, or map on the left, got %T", haystack)
	}
}
