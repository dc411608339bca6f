package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentkit-go/agentkit/agent"
	"github.com/agentkit-go/agentkit/types"
)

const (
	// DefaultMaxWorkflowSteps bounds executed steps, loop iterations included.
	DefaultMaxWorkflowSteps = 100
	// DefaultWorkflowTimeout bounds a run's wall-clock time.
	DefaultWorkflowTimeout = 5 * time.Minute
)

// inputKey is where the run's initial input lives in the working state.
const inputKey = "input"

// RunResult is the outcome of one recipe execution.
type RunResult struct {
	ID     string           `json:"id"`
	Recipe string           `json:"recipe"`
	State  map[string]any   `json:"state"`
	Steps  int              `json:"steps"`
	Usage  types.TokenUsage `json:"usage"`
}

// Orchestrator executes recipes against a registry of named agents.
type Orchestrator struct {
	logger   *zap.Logger
	maxSteps int
	timeout  time.Duration

	mu     sync.RWMutex
	agents map[string]*agent.Agent
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxSteps overrides the default step budget.
func WithMaxSteps(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithTimeout overrides the default wall-clock budget.
func WithTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewOrchestrator creates an orchestrator with an empty agent registry.
func NewOrchestrator(logger *zap.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		logger:   logger.With(zap.String("component", "orchestrator")),
		maxSteps: DefaultMaxWorkflowSteps,
		timeout:  DefaultWorkflowTimeout,
		agents:   map[string]*agent.Agent{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterAgent adds an agent under its configured name.
func (o *Orchestrator) RegisterAgent(a *agent.Agent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.agents[a.Name()]; exists {
		return types.NewErrorf(types.ErrInvalidConfiguration, "agent %q already registered", a.Name())
	}
	o.agents[a.Name()] = a
	return nil
}

func (o *Orchestrator) agentFor(name string) (*agent.Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[name]
	return a, ok
}

// Run executes a recipe. The initial input is seeded into the working state
// under "input"; each agent step stores its result under its output_key.
func (o *Orchestrator) Run(ctx context.Context, r *Recipe, input string) (*RunResult, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	for _, name := range r.agentNames() {
		if _, ok := o.agentFor(name); !ok {
			return nil, types.NewErrorf(types.ErrUnknownFunction, "recipe references unregistered agent %q", name)
		}
	}

	budget := o.maxSteps
	if r.MaxSteps > 0 {
		budget = r.MaxSteps
	}
	timeout := o.timeout
	if d := r.timeout(); d > 0 {
		timeout = d
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := &workflowRun{
		o:       o,
		id:      uuid.NewString(),
		budget:  budget,
		working: map[string]any{inputKey: input},
		logger: o.logger.With(
			zap.String("recipe", r.Name),
		),
	}
	run.logger.Info("starting workflow run",
		zap.String("run_id", run.id),
		zap.Int("step_budget", budget),
		zap.Duration("timeout", timeout))

	if err := run.execSteps(ctx, r.Steps); err != nil {
		run.logger.Warn("workflow run failed", zap.String("run_id", run.id), zap.Error(err))
		return nil, err
	}
	return &RunResult{
		ID:     run.id,
		Recipe: r.Name,
		State:  run.working,
		Steps:  run.steps,
		Usage:  run.usage,
	}, nil
}

// workflowRun carries the mutable execution context of one Run call.
type workflowRun struct {
	o      *Orchestrator
	id     string
	budget int
	logger *zap.Logger

	mu      sync.Mutex
	working map[string]any
	steps   int
	usage   types.TokenUsage
}

// charge consumes one unit of the step budget.
func (r *workflowRun) charge() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps++
	if r.steps > r.budget {
		return types.NewErrorf(types.ErrResourceExhausted, "workflow step budget of %d exhausted", r.budget).
			WithDetail("budget", r.budget)
	}
	return nil
}

func (r *workflowRun) set(key string, value any) {
	r.mu.Lock()
	r.working[key] = value
	r.mu.Unlock()
}

func (r *workflowRun) snapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]any, len(r.working))
	for k, v := range r.working {
		out[k] = v
	}
	return out
}

func (r *workflowRun) addUsage(u types.TokenUsage) {
	r.mu.Lock()
	r.usage.Add(u)
	r.mu.Unlock()
}

func (r *workflowRun) execSteps(ctx context.Context, steps []Step) error {
	for i := range steps {
		if err := ctx.Err(); err != nil {
			return types.NewError(types.ErrTimeout, "workflow deadline exceeded").WithCause(err)
		}
		if err := r.execStep(ctx, &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *workflowRun) execStep(ctx context.Context, s *Step) error {
	switch s.Kind {
	case KindAgent:
		return r.execAgent(ctx, s, r.snapshot(), r.set)
	case KindParallel:
		return r.execParallel(ctx, s)
	case KindCondition:
		return r.execCondition(ctx, s)
	case KindLoop:
		return r.execLoop(ctx, s)
	default:
		return types.NewErrorf(types.ErrValidation, "unknown step kind %q", s.Kind)
	}
}

// execAgent runs one agent step against the given view of the working state
// and hands its output to store. Parallel branches pass an isolated view so
// siblings cannot observe each other mid-flight.
func (r *workflowRun) execAgent(ctx context.Context, s *Step, view map[string]any, store func(key string, value any)) error {
	if err := r.charge(); err != nil {
		return err
	}
	a, _ := r.o.agentFor(s.Agent)

	input := s.Input
	if input == "" {
		input = pathPrefix + inputKey
	}
	if IsPath(input) {
		resolved, ok := ResolvePath(view, input)
		if !ok {
			return types.NewErrorf(types.ErrValidation, "agent step %q: input path %q not found", s.Agent, input)
		}
		input = fmt.Sprint(resolved)
	}

	r.logger.Debug("executing agent step",
		zap.String("agent", s.Agent),
		zap.String("output_key", s.OutputKey))
	res, err := a.Execute(ctx, input)
	if err != nil {
		return types.NewErrorf(types.ErrState, "agent step %q failed", s.Agent).WithCause(err)
	}
	r.addUsage(res.Usage)

	output := any(res.Text)
	if res.Output != nil {
		output = res.Output
	}
	store(s.OutputKey, output)
	return nil
}

// execParallel fans sub-steps out over an errgroup. Each branch sees a
// snapshot of the working state taken before the fan-out; outputs are merged
// back only after every branch succeeds.
func (r *workflowRun) execParallel(ctx context.Context, s *Step) error {
	view := r.snapshot()
	outputs := make([]any, len(s.Steps))

	g, gctx := errgroup.WithContext(ctx)
	for i := range s.Steps {
		g.Go(func() error {
			return r.execAgent(gctx, &s.Steps[i], view, func(_ string, value any) {
				outputs[i] = value
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := range s.Steps {
		r.set(s.Steps[i].OutputKey, outputs[i])
	}
	return nil
}

func (r *workflowRun) execCondition(ctx context.Context, s *Step) error {
	if err := r.charge(); err != nil {
		return err
	}
	ok, err := evalCondition(r.snapshot(), s.If)
	if err != nil {
		return err
	}
	r.logger.Debug("evaluated condition",
		zap.String("op", s.If.Op),
		zap.Bool("result", ok))
	if ok {
		return r.execSteps(ctx, s.Then)
	}
	return r.execSteps(ctx, s.Else)
}

// execLoop iterates the body over the slice at s.Over, injecting item, index,
// isFirst, and isLast into the working state for each pass. The injected keys
// are removed when the loop finishes.
func (r *workflowRun) execLoop(ctx context.Context, s *Step) error {
	if err := r.charge(); err != nil {
		return err
	}
	resolved, ok := ResolvePath(r.snapshot(), s.Over)
	if !ok {
		return types.NewErrorf(types.ErrValidation, "loop path %q not found", s.Over)
	}
	items, ok := resolved.([]any)
	if !ok {
		return types.NewErrorf(types.ErrValidation, "loop path %q is %T, want a slice", s.Over, resolved)
	}

	defer func() {
		r.mu.Lock()
		delete(r.working, "item")
		delete(r.working, "index")
		delete(r.working, "isFirst")
		delete(r.working, "isLast")
		r.mu.Unlock()
	}()
	for i, item := range items {
		r.mu.Lock()
		r.working["item"] = item
		r.working["index"] = i
		r.working["isFirst"] = i == 0
		r.working["isLast"] = i == len(items)-1
		r.mu.Unlock()
		if err := r.execSteps(ctx, s.Body); err != nil {
			return err
		}
	}
	return nil
}
