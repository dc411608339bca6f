package workflow

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/agent"
	"github.com/agentkit-go/agentkit/state"
	"github.com/agentkit-go/agentkit/types"
)

// StepResult records the outcome of one chain step.
type StepResult struct {
	Index  int           `json:"index"`
	Agent  string        `json:"agent"`
	Result *agent.Result `json:"result"`
}

// ChainResult aggregates the outcomes of a full chain run. On failure it
// carries everything completed before the failing step.
type ChainResult struct {
	Results     []StepResult     `json:"results"`
	FinalOutput string           `json:"final_output"`
	Progress    []agent.Progress `json:"progress"`
	Usage       types.TokenUsage `json:"usage"`
}

// Chain runs agents in order, passing each step's text output as the next
// step's input. State is agent-local unless handoff is enabled, in which case
// each agent's state data is copied into the next agent before it runs.
// Tools, history, and schemas never cross step boundaries.
type Chain struct {
	name    string
	agents  []*agent.Agent
	handoff bool
	logger  *zap.Logger

	mu       sync.Mutex
	progress []agent.Progress
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithHandoff enables state handoff between consecutive steps.
func WithHandoff() ChainOption {
	return func(c *Chain) { c.handoff = true }
}

// NewChain builds a pipeline over the given agents, in execution order.
func NewChain(name string, logger *zap.Logger, agents []*agent.Agent, opts ...ChainOption) (*Chain, error) {
	if len(agents) == 0 {
		return nil, types.NewError(types.ErrInvalidConfiguration, "chain requires at least one agent")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{
		name:   name,
		agents: agents,
		logger: logger.With(zap.String("component", "chain"), zap.String("chain", name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, a := range c.agents {
		a.OnProgress(c.collect)
	}
	return c, nil
}

// Name returns the chain name.
func (c *Chain) Name() string { return c.name }

func (c *Chain) collect(p agent.Progress) {
	c.mu.Lock()
	c.progress = append(c.progress, p)
	c.mu.Unlock()
}

func (c *Chain) snapshot() []agent.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]agent.Progress, len(c.progress))
	copy(out, c.progress)
	return out
}

// Handoff copies the source agent's state data into the destination agent.
// Only state data crosses the boundary; metadata, tools, and history do not.
func Handoff(from, to *agent.Agent) error {
	next, err := state.New().CopyWith(from.State().Data(), nil)
	if err != nil {
		return err
	}
	to.SetState(next)
	return nil
}

// Run executes the chain. The first failure aborts the pipeline; the returned
// ChainResult still carries the results and progress accumulated so far, and
// the error reports the failing step index.
func (c *Chain) Run(ctx context.Context, input string) (*ChainResult, error) {
	c.mu.Lock()
	c.progress = nil
	c.mu.Unlock()

	out := &ChainResult{}
	current := input
	for i, a := range c.agents {
		if c.handoff && i > 0 {
			if err := Handoff(c.agents[i-1], a); err != nil {
				out.Progress = c.snapshot()
				return out, types.NewErrorf(types.ErrState, "chain %q: handoff into step %d failed", c.name, i).WithCause(err)
			}
		}
		c.logger.Debug("running chain step",
			zap.Int("step", i),
			zap.String("agent", a.Name()))
		res, err := a.Execute(ctx, current)
		if err != nil {
			out.Progress = c.snapshot()
			return out, types.NewErrorf(types.ErrState, "chain %q: step %d (%s) failed", c.name, i, a.Name()).
				WithCause(err).
				WithDetail("step_index", i)
		}
		out.Results = append(out.Results, StepResult{Index: i, Agent: a.Name(), Result: res})
		out.Usage.Add(res.Usage)
		current = res.Text
	}
	out.FinalOutput = current
	out.Progress = c.snapshot()
	return out, nil
}
