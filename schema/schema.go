package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agentkit-go/agentkit/types"
)

// OutputSchema is a named set of typed fields an LLM response object must
// satisfy. In strict mode unknown top-level keys are rejected.
type OutputSchema struct {
	name   string
	strict bool
	fields map[string]Field
	order  []string
}

// New creates an OutputSchema.
func New(name string, strict bool, fields ...Field) *OutputSchema {
	s := &OutputSchema{
		name:   name,
		strict: strict,
		fields: make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		if _, dup := s.fields[f.Name()]; !dup {
			s.order = append(s.order, f.Name())
		}
		s.fields[f.Name()] = f
	}
	return s
}

// Name returns the schema's name.
func (s *OutputSchema) Name() string { return s.name }

// Fields returns the declared field names in declaration order.
func (s *OutputSchema) Fields() []string {
	return append([]string(nil), s.order...)
}

// ValidateAndConvert checks data field-by-field and returns a new map with
// every present field converted to its declared type.
//
// Two-pass algorithm: pass 1 collects every missing-required and (in strict
// mode) unknown-key error without attempting any conversion, and fails with
// the full structural report. Pass 2 runs only on structurally sound input,
// type-checks and converts each field, accumulating per-field errors, and
// fails once with all of them. Validation never partially applies.
func (s *OutputSchema) ValidateAndConvert(data map[string]any) (map[string]any, error) {
	var structural []string
	for _, name := range s.order {
		if s.fields[name].Required() {
			if _, ok := data[name]; !ok {
				structural = append(structural, fmt.Sprintf("missing required field %q", name))
			}
		}
	}
	if s.strict {
		var unknown []string
		for key := range data {
			if _, ok := s.fields[key]; !ok {
				unknown = append(unknown, key)
			}
		}
		sort.Strings(unknown)
		for _, key := range unknown {
			structural = append(structural, fmt.Sprintf("unknown field %q", key))
		}
	}
	if len(structural) > 0 {
		return nil, s.fail(structural)
	}

	out := make(map[string]any, len(data))
	var conversion []string
	for _, name := range s.order {
		raw, ok := data[name]
		if !ok {
			continue
		}
		field := s.fields[name]
		if !field.IsValidType(raw) {
			conversion = append(conversion, fmt.Sprintf("field %q: incompatible type %T", name, raw))
			continue
		}
		converted, err := field.Convert(raw)
		if err != nil {
			conversion = append(conversion, fmt.Sprintf("field %q: %v", name, err))
			continue
		}
		out[name] = converted
	}
	if len(conversion) > 0 {
		return nil, s.fail(conversion)
	}

	if !s.strict {
		for key, raw := range data {
			if _, declared := s.fields[key]; !declared {
				out[key] = raw
			}
		}
	}
	return out, nil
}

// ValidateJSON decodes raw as a JSON object (tolerating a fenced code-block
// wrapper the model may have added) and validates it.
func (s *OutputSchema) ValidateJSON(raw string) (map[string]any, error) {
	raw = StripCodeFence(raw)
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, types.NewErrorf(types.ErrValidation,
			"schema %q: response is not a JSON object", s.name).WithCause(err)
	}
	return s.ValidateAndConvert(data)
}

func (s *OutputSchema) fail(problems []string) error {
	return types.NewErrorf(types.ErrValidation,
		"schema %q: %s", s.name, strings.Join(problems, "; ")).
		WithDetail("problems", problems)
}

// StripCodeFence removes a surrounding markdown code fence (``` or ```json)
// if present, returning the inner text trimmed.
func StripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
