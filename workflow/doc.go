// Package workflow composes agents into multi-step pipelines. Chain runs
// agents sequentially, feeding each step's output into the next. Orchestrator
// interprets a JSON recipe of agent, parallel, condition, and loop steps
// against a shared working state.
package workflow
