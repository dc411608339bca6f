package workflow

import (
	"encoding/json"
	"time"

	"github.com/agentkit-go/agentkit/types"
)

// Step kinds accepted by the orchestrator.
const (
	KindAgent     = "agent"
	KindParallel  = "parallel"
	KindCondition = "condition"
	KindLoop      = "loop"
)

// Condition compares two values, either literals or "$dot.path" references
// into the working state.
type Condition struct {
	Left  any    `json:"left"`
	Op    string `json:"op"`
	Right any    `json:"right"`
}

var conditionOps = map[string]bool{
	"==": true, "!=": true,
	">": true, "<": true, ">=": true, "<=": true,
	"contains": true,
}

// Step is one node of a recipe. The populated fields depend on Kind.
type Step struct {
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`

	// agent
	Agent     string `json:"agent,omitempty"`
	Input     string `json:"input,omitempty"`
	OutputKey string `json:"output_key,omitempty"`

	// parallel
	Steps []Step `json:"steps,omitempty"`

	// condition
	If   *Condition `json:"if,omitempty"`
	Then []Step     `json:"then,omitempty"`
	Else []Step     `json:"else,omitempty"`

	// loop
	Over string `json:"over,omitempty"`
	Body []Step `json:"body,omitempty"`
}

// Recipe is a declarative workflow definition, typically loaded from JSON.
type Recipe struct {
	Name     string `json:"name"`
	MaxSteps int    `json:"max_steps,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
	Steps    []Step `json:"steps"`
}

// ParseRecipe decodes and validates a JSON recipe.
func ParseRecipe(data []byte) (*Recipe, error) {
	var r Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, types.NewError(types.ErrValidation, "malformed recipe JSON").WithCause(err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the recipe structure before execution.
func (r *Recipe) Validate() error {
	if len(r.Steps) == 0 {
		return types.NewError(types.ErrInvalidConfiguration, "recipe has no steps")
	}
	if r.MaxSteps < 0 {
		return types.NewError(types.ErrInvalidConfiguration, "max_steps must be non-negative")
	}
	if r.Timeout != "" {
		if _, err := time.ParseDuration(r.Timeout); err != nil {
			return types.NewErrorf(types.ErrInvalidConfiguration, "invalid timeout %q", r.Timeout).WithCause(err)
		}
	}
	return validateSteps(r.Steps)
}

func (r *Recipe) timeout() time.Duration {
	if r.Timeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(r.Timeout)
	return d
}

func validateSteps(steps []Step) error {
	for i := range steps {
		if err := validateStep(&steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Step) error {
	switch s.Kind {
	case KindAgent:
		if s.Agent == "" {
			return types.NewError(types.ErrInvalidConfiguration, "agent step requires an agent name")
		}
		if s.OutputKey == "" {
			return types.NewErrorf(types.ErrInvalidConfiguration, "agent step %q requires an output_key", s.Agent)
		}
	case KindParallel:
		if len(s.Steps) == 0 {
			return types.NewError(types.ErrInvalidConfiguration, "parallel step requires at least one sub-step")
		}
		for i := range s.Steps {
			if s.Steps[i].Kind != KindAgent {
				return types.NewError(types.ErrInvalidConfiguration, "parallel sub-steps must be agent steps")
			}
		}
		return validateSteps(s.Steps)
	case KindCondition:
		if s.If == nil {
			return types.NewError(types.ErrInvalidConfiguration, "condition step requires an if clause")
		}
		if !conditionOps[s.If.Op] {
			return types.NewErrorf(types.ErrInvalidConfiguration, "unknown condition operator %q", s.If.Op)
		}
		if len(s.Then) == 0 {
			return types.NewError(types.ErrInvalidConfiguration, "condition step requires a then branch")
		}
		if err := validateSteps(s.Then); err != nil {
			return err
		}
		return validateSteps(s.Else)
	case KindLoop:
		if !IsPath(s.Over) {
			return types.NewErrorf(types.ErrInvalidConfiguration, "loop step requires a $path in over, got %q", s.Over)
		}
		if len(s.Body) == 0 {
			return types.NewError(types.ErrInvalidConfiguration, "loop step requires a body")
		}
		return validateSteps(s.Body)
	default:
		return types.NewErrorf(types.ErrInvalidConfiguration, "unknown step kind %q", s.Kind)
	}
	return nil
}

// agentNames collects every agent referenced anywhere in the recipe.
func (r *Recipe) agentNames() []string {
	seen := map[string]bool{}
	var walk func(steps []Step)
	walk = func(steps []Step) {
		for i := range steps {
			s := &steps[i]
			if s.Kind == KindAgent && !seen[s.Agent] {
				seen[s.Agent] = true
			}
			walk(s.Steps)
			walk(s.Then)
			walk(s.Else)
			walk(s.Body)
		}
	}
	walk(r.Steps)
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names
}
