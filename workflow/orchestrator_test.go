package workflow

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/llm"
	"github.com/agentkit-go/agentkit/testutil/mocks"
	"github.com/agentkit-go/agentkit/types"
)

func newOrchestrator(t *testing.T, agents ...*mockAgentSpec) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(zap.NewNop())
	for _, spec := range agents {
		require.NoError(t, o.RegisterAgent(newChainAgent(t, spec.name, spec.provider)))
	}
	return o
}

type mockAgentSpec struct {
	name     string
	provider *mocks.MockProvider
}

func TestParseRecipeValidates(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{name: "not json", json: `{`},
		{name: "no steps", json: `{"name":"x","steps":[]}`},
		{name: "unknown kind", json: `{"steps":[{"kind":"teleport"}]}`},
		{name: "agent without name", json: `{"steps":[{"kind":"agent","output_key":"k"}]}`},
		{name: "agent without output key", json: `{"steps":[{"kind":"agent","agent":"a"}]}`},
		{name: "bad operator", json: `{"steps":[{"kind":"condition","if":{"left":1,"op":"~","right":1},"then":[{"kind":"agent","agent":"a","output_key":"k"}]}]}`},
		{name: "condition without then", json: `{"steps":[{"kind":"condition","if":{"left":1,"op":"==","right":1}}]}`},
		{name: "loop without path", json: `{"steps":[{"kind":"loop","over":"items","body":[{"kind":"agent","agent":"a","output_key":"k"}]}]}`},
		{name: "loop without body", json: `{"steps":[{"kind":"loop","over":"$items"}]}`},
		{name: "empty parallel", json: `{"steps":[{"kind":"parallel"}]}`},
		{name: "non-agent parallel child", json: `{"steps":[{"kind":"parallel","steps":[{"kind":"loop","over":"$x","body":[{"kind":"agent","agent":"a","output_key":"k"}]}]}]}`},
		{name: "bad timeout", json: `{"timeout":"soon","steps":[{"kind":"agent","agent":"a","output_key":"k"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecipe([]byte(tt.json))
			require.Error(t, err)
		})
	}
}

func TestRunRejectsUnregisteredAgent(t *testing.T) {
	o := NewOrchestrator(zap.NewNop())
	r := &Recipe{Steps: []Step{{Kind: KindAgent, Agent: "ghost", OutputKey: "out"}}}

	_, err := o.Run(context.Background(), r, "go")
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownFunction, types.GetErrorCode(err))
}

func TestRunAgentStepStoresOutput(t *testing.T) {
	p := mocks.NewMockProvider().WithResponse("summary text")
	o := newOrchestrator(t, &mockAgentSpec{name: "summarizer", provider: p})

	r := &Recipe{
		Name:  "summarize",
		Steps: []Step{{Kind: KindAgent, Agent: "summarizer", OutputKey: "summary"}},
	}
	out, err := o.Run(context.Background(), r, "long document")
	require.NoError(t, err)

	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "summarize", out.Recipe)
	assert.Equal(t, 1, out.Steps)
	assert.Equal(t, "summary text", out.State["summary"])
	assert.Equal(t, "long document", out.State["input"])

	call := p.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "long document", call.Messages[len(call.Messages)-1].Content,
		"default input is the run input")
}

func TestRunResolvesInputPaths(t *testing.T) {
	p1 := mocks.NewMockProvider().WithResponse("intermediate")
	p2 := mocks.NewMockProvider().WithResponse("final")
	o := newOrchestrator(t,
		&mockAgentSpec{name: "first", provider: p1},
		&mockAgentSpec{name: "second", provider: p2},
	)

	r := &Recipe{Steps: []Step{
		{Kind: KindAgent, Agent: "first", OutputKey: "draft"},
		{Kind: KindAgent, Agent: "second", Input: "$draft", OutputKey: "result"},
	}}
	out, err := o.Run(context.Background(), r, "go")
	require.NoError(t, err)

	assert.Equal(t, "final", out.State["result"])
	call := p2.LastCall()
	assert.Equal(t, "intermediate", call.Messages[len(call.Messages)-1].Content)
}

func TestRunConditionBranches(t *testing.T) {
	run := func(t *testing.T, input string) *RunResult {
		pThen := mocks.NewMockProvider().WithResponse("went then")
		pElse := mocks.NewMockProvider().WithResponse("went else")
		o := newOrchestrator(t,
			&mockAgentSpec{name: "then-agent", provider: pThen},
			&mockAgentSpec{name: "else-agent", provider: pElse},
		)
		r := &Recipe{Steps: []Step{{
			Kind: KindCondition,
			If:   &Condition{Left: "$input", Op: "==", Right: "yes"},
			Then: []Step{{Kind: KindAgent, Agent: "then-agent", OutputKey: "out"}},
			Else: []Step{{Kind: KindAgent, Agent: "else-agent", OutputKey: "out"}},
		}}}
		out, err := o.Run(context.Background(), r, input)
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, "went then", run(t, "yes").State["out"])
	assert.Equal(t, "went else", run(t, "no").State["out"])
}

func TestRunParallelMergesOutputs(t *testing.T) {
	p1 := mocks.NewMockProvider().WithResponse("facts")
	p2 := mocks.NewMockProvider().WithResponse("figures")
	o := newOrchestrator(t,
		&mockAgentSpec{name: "researcher", provider: p1},
		&mockAgentSpec{name: "analyst", provider: p2},
	)

	r := &Recipe{Steps: []Step{{
		Kind: KindParallel,
		Steps: []Step{
			{Kind: KindAgent, Agent: "researcher", OutputKey: "research"},
			{Kind: KindAgent, Agent: "analyst", OutputKey: "analysis"},
		},
	}}}
	out, err := o.Run(context.Background(), r, "topic")
	require.NoError(t, err)

	assert.Equal(t, "facts", out.State["research"])
	assert.Equal(t, "figures", out.State["analysis"])
	assert.Equal(t, 2, out.Steps, "each branch charges the budget")
}

func TestRunParallelFailureAbortsGroup(t *testing.T) {
	ok := mocks.NewMockProvider().WithResponse("fine")
	bad := mocks.NewMockProvider().WithError(types.NewError(types.ErrProvider, "boom"))
	o := newOrchestrator(t,
		&mockAgentSpec{name: "healthy", provider: ok},
		&mockAgentSpec{name: "broken", provider: bad},
	)

	r := &Recipe{Steps: []Step{{
		Kind: KindParallel,
		Steps: []Step{
			{Kind: KindAgent, Agent: "healthy", OutputKey: "a"},
			{Kind: KindAgent, Agent: "broken", OutputKey: "b"},
		},
	}}}
	_, err := o.Run(context.Background(), r, "go")
	require.Error(t, err)
	assert.Equal(t, types.ErrState, types.GetErrorCode(err))
}

func TestExecLoopInjectsIterationKeys(t *testing.T) {
	var calls atomic.Int32
	p := mocks.NewMockProvider().WithCompletionFunc(
		func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			calls.Add(1)
			return &llm.ChatResponse{
				Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage("done")}},
			}, nil
		})
	o := newOrchestrator(t, &mockAgentSpec{name: "worker", provider: p})

	run := &workflowRun{
		o:      o,
		budget: DefaultMaxWorkflowSteps,
		logger: zap.NewNop(),
		working: map[string]any{
			"items": []any{"a", "b", "c"},
		},
	}
	step := &Step{
		Kind: KindLoop,
		Over: "$items",
		Body: []Step{{Kind: KindAgent, Agent: "worker", Input: "$item", OutputKey: "last"}},
	}
	require.NoError(t, run.execLoop(context.Background(), step))

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 4, run.steps, "loop node plus one per iteration")
	for _, key := range []string{"item", "index", "isFirst", "isLast"} {
		_, ok := run.working[key]
		assert.False(t, ok, "iteration key %q removed after the loop", key)
	}

	inputs := make([]string, 0, 3)
	for _, call := range p.Calls() {
		inputs = append(inputs, call.Messages[len(call.Messages)-1].Content)
	}
	assert.Equal(t, []string{"a", "b", "c"}, inputs)
}

func TestExecLoopIterationFlags(t *testing.T) {
	p := mocks.NewMockProvider().WithResponses("first pass", "last pass")
	o := newOrchestrator(t, &mockAgentSpec{name: "worker", provider: p})

	run := &workflowRun{
		o:       o,
		budget:  DefaultMaxWorkflowSteps,
		logger:  zap.NewNop(),
		working: map[string]any{"items": []any{10, 20, 30}},
	}
	step := &Step{
		Kind: KindLoop,
		Over: "$items",
		Body: []Step{
			{
				Kind: KindCondition,
				If:   &Condition{Left: "$isFirst", Op: "==", Right: true},
				Then: []Step{{Kind: KindAgent, Agent: "worker", Input: "$item", OutputKey: "firstMark"}},
			},
			{
				Kind: KindCondition,
				If:   &Condition{Left: "$isLast", Op: "==", Right: true},
				Then: []Step{{Kind: KindAgent, Agent: "worker", Input: "$item", OutputKey: "lastMark"}},
			},
		},
	}
	require.NoError(t, run.execLoop(context.Background(), step))

	assert.Equal(t, "first pass", run.working["firstMark"])
	assert.Equal(t, "last pass", run.working["lastMark"])
	assert.Equal(t, 2, p.CallCount(), "the agent only runs on the first and last iteration")
}

func TestRunEnforcesStepBudget(t *testing.T) {
	p := mocks.NewMockProvider().WithResponse("x")
	o := newOrchestrator(t, &mockAgentSpec{name: "a", provider: p})

	r := &Recipe{
		MaxSteps: 2,
		Steps: []Step{
			{Kind: KindAgent, Agent: "a", OutputKey: "one"},
			{Kind: KindAgent, Agent: "a", OutputKey: "two"},
			{Kind: KindAgent, Agent: "a", OutputKey: "three"},
		},
	}
	_, err := o.Run(context.Background(), r, "go")
	require.Error(t, err)
	assert.Equal(t, types.ErrResourceExhausted, types.GetErrorCode(err))
}

func TestRunHonorsContextCancellation(t *testing.T) {
	p := mocks.NewMockProvider().WithResponse("x")
	o := newOrchestrator(t, &mockAgentSpec{name: "a", provider: p})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Recipe{Steps: []Step{{Kind: KindAgent, Agent: "a", OutputKey: "out"}}}

	_, err := o.Run(ctx, r, "go")
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
}

func TestRunEndToEndRecipe(t *testing.T) {
	research := mocks.NewMockProvider().WithResponse("Go is a compiled language").WithTokenUsage(8, 12)
	review := mocks.NewMockProvider().WithResponse("approved").WithTokenUsage(4, 2)
	publish := mocks.NewMockProvider().WithResponse("published").WithTokenUsage(3, 1)
	o := newOrchestrator(t,
		&mockAgentSpec{name: "researcher", provider: research},
		&mockAgentSpec{name: "reviewer", provider: review},
		&mockAgentSpec{name: "publisher", provider: publish},
	)

	recipe, err := ParseRecipe([]byte(`{
		"name": "pipeline",
		"max_steps": 10,
		"timeout": "30s",
		"steps": [
			{"kind": "agent", "agent": "researcher", "output_key": "research"},
			{"kind": "agent", "agent": "reviewer", "input": "$research", "output_key": "verdict"},
			{
				"kind": "condition",
				"if": {"left": "$verdict", "op": "contains", "right": "approved"},
				"then": [{"kind": "agent", "agent": "publisher", "input": "$research", "output_key": "published"}]
			}
		]
	}`))
	require.NoError(t, err)

	out, err := o.Run(context.Background(), recipe, "research Go")
	require.NoError(t, err)

	assert.Equal(t, "pipeline", out.Recipe)
	assert.Equal(t, "published", out.State["published"])
	assert.Equal(t, 4, out.Steps)
	assert.Equal(t, 30, out.Usage.TotalTokens)

	call := publish.LastCall()
	assert.Equal(t, "Go is a compiled language", call.Messages[len(call.Messages)-1].Content)
}
