package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/agentkit-go/agentkit/types"
)

// Tool is an executable capability registered on one agent. Name must
// be unique within the agent.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema describing the argument object.
	Parameters json.RawMessage
	// Handler runs the tool. It receives the decoded argument map.
	Handler func(ctx context.Context, args map[string]any) (any, error)
}

// toolRegistry holds an agent's tools behind a mutex; agents may gain
// tools while serving calls.
type toolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func newToolRegistry() *toolRegistry {
	return &toolRegistry{tools: make(map[string]Tool)}
}

func (r *toolRegistry) register(t Tool) error {
	if t.Name == "" {
		return types.NewError(types.ErrInvalidConfiguration, "tool name is required")
	}
	if t.Handler == nil {
		return types.NewErrorf(types.ErrInvalidConfiguration, "tool %q has no handler", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return types.NewErrorf(types.ErrInvalidConfiguration, "tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

func (r *toolRegistry) get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *toolRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// schemas returns the wire-ready tool declarations.
func (r *toolRegistry) schemas() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.tools) == 0 {
		return nil
	}
	out := make([]types.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, types.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// dispatch runs the named tool. An unregistered name is an error that
// propagates to the Execute caller, never a no-op.
func (r *toolRegistry) dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.get(name)
	if !ok {
		return nil, types.NewErrorf(types.ErrUnknownFunction, "no handler registered for function %q", name).
			WithDetail("known_functions", r.names())
	}
	out, err := t.Handler(ctx, args)
	if err != nil {
		return nil, types.NewErrorf(types.ErrToolExecutionFailure, "tool %q failed", name).
			WithCause(err)
	}
	return out, nil
}

// decodeToolArgs parses a native tool call's JSON argument blob.
func decodeToolArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, types.NewError(types.ErrValidation, fmt.Sprintf("tool arguments are not a JSON object: %v", err))
	}
	return args, nil
}
