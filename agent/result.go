package agent

import (
	"time"

	"github.com/agentkit-go/agentkit/types"
)

// Status is the execution phase of one Execute call.
type Status string

const (
	StatusInitializing   Status = "initializing"
	StatusProcessing     Status = "processing"
	StatusPostProcessing Status = "post_processing"
	StatusCompleted      Status = "completed"
	StatusError          Status = "error"
)

// Progress is an immutable snapshot emitted on every status transition.
// Callbacks must not retain and mutate it.
type Progress struct {
	Status       Status         `json:"status"`
	CurrentIndex int            `json:"current_index"`
	TotalCount   int            `json:"total_count"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ProgressFunc receives progress snapshots. Callbacks run synchronously
// on the executing goroutine; keep them fast.
type ProgressFunc func(Progress)

// Result is the outcome of one successful Execute call. A failed call
// returns an error and no Result, never a partial one.
type Result struct {
	// Output is the routed result: a validated object when a schema is
	// bound, tool results keyed by tool name when the model called
	// tools, otherwise the raw text.
	Output any `json:"output"`

	// Text is the assistant's raw text, empty for pure tool-call turns.
	Text string `json:"text"`

	// StateVariables snapshots the agent's state data at completion.
	StateVariables map[string]any `json:"state_variables,omitempty"`

	// ToolCalls lists the calls the model made this turn.
	ToolCalls []types.ToolCall `json:"tool_calls,omitempty"`

	Metadata map[string]any   `json:"metadata,omitempty"`
	Usage    types.TokenUsage `json:"usage"`

	// Stream carries text chunks when the call was made through
	// ExecuteStream; nil otherwise. The channel closes when the
	// response is exhausted.
	Stream <-chan string `json:"-"`
}
