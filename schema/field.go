// Package schema validates and converts structured LLM output. An
// OutputSchema describes the JSON object an agent expects back from the
// model; validation is all-or-nothing and reports every problem at once so a
// caller can fix the whole output format in a single round trip.
package schema

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Field is a named, typed output field.
type Field interface {
	// Name returns the field's key in the output object.
	Name() string
	// Required reports whether the field must be present.
	Required() bool
	// IsValidType reports whether the raw decoded value has a convertible type.
	IsValidType(v any) bool
	// Convert validates constraints and converts the raw value to the field's
	// declared Go type.
	Convert(v any) (any, error)
}

type baseField struct {
	name     string
	required bool
}

func (f baseField) Name() string   { return f.name }
func (f baseField) Required() bool { return f.required }

// StringField converts to string, optionally constrained by an enum, length
// bounds, and a pattern.
type StringField struct {
	baseField
	enum      []string
	minLength int
	maxLength int
	pattern   *regexp.Regexp
}

// String creates a StringField.
func String(name string, required bool) *StringField {
	return &StringField{baseField: baseField{name: name, required: required}, maxLength: -1}
}

// Enum restricts the value to the given set.
func (f *StringField) Enum(values ...string) *StringField {
	f.enum = values
	return f
}

// Length sets inclusive length bounds; max < 0 means unbounded.
func (f *StringField) Length(min, max int) *StringField {
	f.minLength, f.maxLength = min, max
	return f
}

// Pattern requires the value to match re.
func (f *StringField) Pattern(re *regexp.Regexp) *StringField {
	f.pattern = re
	return f
}

func (f *StringField) IsValidType(v any) bool {
	_, ok := v.(string)
	return ok
}

func (f *StringField) Convert(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	if len(s) < f.minLength {
		return nil, fmt.Errorf("shorter than %d characters", f.minLength)
	}
	if f.maxLength >= 0 && len(s) > f.maxLength {
		return nil, fmt.Errorf("longer than %d characters", f.maxLength)
	}
	if f.pattern != nil && !f.pattern.MatchString(s) {
		return nil, fmt.Errorf("does not match pattern %s", f.pattern)
	}
	if len(f.enum) > 0 {
		for _, allowed := range f.enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %v", s, f.enum)
	}
	return s, nil
}

// IntField converts to int, accepting JSON numbers with integral values and
// numeric strings.
type IntField struct {
	baseField
	min, max *int
}

// Int creates an IntField.
func Int(name string, required bool) *IntField {
	return &IntField{baseField: baseField{name: name, required: required}}
}

// Range sets inclusive bounds.
func (f *IntField) Range(min, max int) *IntField {
	f.min, f.max = &min, &max
	return f
}

func (f *IntField) IsValidType(v any) bool {
	switch n := v.(type) {
	case int, int64:
		return true
	case float64:
		return n == math.Trunc(n)
	case string:
		_, err := strconv.Atoi(n)
		return err == nil
	}
	return false
}

func (f *IntField) Convert(v any) (any, error) {
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		if t != math.Trunc(t) {
			return nil, fmt.Errorf("%v is not an integer", t)
		}
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(t)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", t)
		}
		n = parsed
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
	if f.min != nil && n < *f.min {
		return nil, fmt.Errorf("%d is below minimum %d", n, *f.min)
	}
	if f.max != nil && n > *f.max {
		return nil, fmt.Errorf("%d is above maximum %d", n, *f.max)
	}
	return n, nil
}

// FloatField converts to float64.
type FloatField struct {
	baseField
	min, max *float64
}

// Float creates a FloatField.
func Float(name string, required bool) *FloatField {
	return &FloatField{baseField: baseField{name: name, required: required}}
}

// Range sets inclusive bounds.
func (f *FloatField) Range(min, max float64) *FloatField {
	f.min, f.max = &min, &max
	return f
}

func (f *FloatField) IsValidType(v any) bool {
	switch n := v.(type) {
	case float64, int, int64:
		return true
	case string:
		_, err := strconv.ParseFloat(n, 64)
		return err == nil
	}
	return false
}

func (f *FloatField) Convert(v any) (any, error) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", t)
		}
		n = parsed
	default:
		return nil, fmt.Errorf("expected number, got %T", v)
	}
	if f.min != nil && n < *f.min {
		return nil, fmt.Errorf("%v is below minimum %v", n, *f.min)
	}
	if f.max != nil && n > *f.max {
		return nil, fmt.Errorf("%v is above maximum %v", n, *f.max)
	}
	return n, nil
}

// BoolField converts to bool, accepting "true"/"false" strings.
type BoolField struct {
	baseField
}

// Bool creates a BoolField.
func Bool(name string, required bool) *BoolField {
	return &BoolField{baseField: baseField{name: name, required: required}}
}

func (f *BoolField) IsValidType(v any) bool {
	switch t := v.(type) {
	case bool:
		return true
	case string:
		return t == "true" || t == "false"
	}
	return false
}

func (f *BoolField) Convert(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch t {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", t)
	}
	return nil, fmt.Errorf("expected boolean, got %T", v)
}

// ListField converts to []any, validating each element against an element
// field when one is declared.
type ListField struct {
	baseField
	element Field
}

// List creates a ListField. element may be nil for untyped lists.
func List(name string, required bool, element Field) *ListField {
	return &ListField{baseField: baseField{name: name, required: required}, element: element}
}

func (f *ListField) IsValidType(v any) bool {
	_, ok := v.([]any)
	return ok
}

func (f *ListField) Convert(v any) (any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	if f.element == nil {
		return items, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		converted, err := f.element.Convert(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %v", i, err)
		}
		out[i] = converted
	}
	return out, nil
}

// MapField converts to map[string]any.
type MapField struct {
	baseField
}

// Map creates a MapField.
func Map(name string, required bool) *MapField {
	return &MapField{baseField: baseField{name: name, required: required}}
}

func (f *MapField) IsValidType(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func (f *MapField) Convert(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return m, nil
}
