// Package orchestrator runs the scoring agents, aggregates their recommendations into
// per-trainset scores and derives an induction plan under the global constraints.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Rishikoli/speedline-metro-glow/internal/agent"
	"github.com/Rishikoli/speedline-metro-glow/internal/logging"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

// Input is the planning snapshot shared read-only by every agent.
type Input = agent.Input

type Result struct {
	AgentOutputs []model.AgentOutput
	Plan         *model.InductionPlan
}

// ContractError reports an agent that panicked or returned a malformed output. The run that
// hit it produces no plan.
type ContractError struct {
	Agent  string
	Index  int
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("agent %d (%s) violated its contract: %s", e.Index, e.Agent, e.Reason)
}

type Orchestrator struct {
	agents   []agent.Agent
	parallel bool
	logger   *logging.Logger
}

type Option func(*Orchestrator)

// WithParallel runs agents concurrently. Output order is the agent order either way.
func WithParallel(parallel bool) Option {
	return func(o *Orchestrator) { o.parallel = parallel }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.With("orchestrator") }
}

// New builds an orchestrator over agents in the given order. A nil or empty list uses
// agent.Default().
func New(agents []agent.Agent, opts ...Option) *Orchestrator {
	if len(agents) == 0 {
		agents = agent.Default()
	}
	o := &Orchestrator{
		agents:   append([]agent.Agent(nil), agents...),
		parallel: true,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run validates in, runs every agent, and builds a pending plan. Validation failures return
// *model.ValidationErrors before any agent runs. Cancelling ctx abandons the run.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Result, error) {
	if err := ValidateInput(in); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	outputs, err := o.runAgents(ctx, in)
	if err != nil {
		return Result{}, err
	}

	plan := buildPlan(outputs, in)
	o.logger.Infof("plan %s generated: %d assignments from %d trainsets", plan.ID, len(plan.Assignments), len(in.Fleet))
	return Result{AgentOutputs: outputs, Plan: plan}, nil
}

// ValidateInput rejects malformed constraints, fleet, bay or signal data.
func ValidateInput(in Input) error {
	var errs model.ValidationErrors
	model.ValidateConstraints(in.Constraints, &errs)
	model.ValidateFleet(in.Fleet, &errs)
	model.ValidateBays(in.DepotBays, &errs)
	model.ValidateSignals(in.Signals, &errs)
	if in.Now.IsZero() {
		errs.Add("now", "planning instant is required")
	}
	return errs.OrNil()
}

func (o *Orchestrator) runAgents(ctx context.Context, in Input) ([]model.AgentOutput, error) {
	outputs := make([]model.AgentOutput, len(o.agents))

	if !o.parallel {
		for i, a := range o.agents {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := o.runOne(i, a, in)
			if err != nil {
				return nil, err
			}
			outputs[i] = out
		}
		return outputs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range o.agents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := o.runOne(i, a, in)
			if err != nil {
				return err
			}
			// each goroutine owns one slot, so the join restores agent order
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (o *Orchestrator) runOne(i int, a agent.Agent, in Input) (out model.AgentOutput, err error) {
	name := a.Name()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf("agent %s panicked: %v\n%s", name, r, debug.Stack())
			err = &ContractError{Agent: name, Index: i, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	start := time.Now()
	out = a.Run(in)
	out.ExecutionTime = time.Since(start)

	if reason := checkOutput(out); reason != "" {
		return model.AgentOutput{}, &ContractError{Agent: name, Index: i, Reason: reason}
	}
	o.logger.Debugf("agent %s: %d findings, %d recommendations in %s",
		name, len(out.Findings), len(out.Recommendations), out.ExecutionTime)
	return out, nil
}

func checkOutput(out model.AgentOutput) string {
	if out.Agent == "" {
		return "output has no agent name"
	}
	for i, r := range out.Recommendations {
		if !model.IsValidAction(r.Action) {
			return fmt.Sprintf("recommendation %d has unknown action %q", i, r.Action)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Sprintf("recommendation %d confidence %g outside [0,1]", i, r.Confidence)
		}
	}
	for i, f := range out.Findings {
		switch f.Severity {
		case model.SeverityInfo, model.SeverityWarn, model.SeverityCritical:
		default:
			return fmt.Sprintf("finding %d has unknown severity %q", i, f.Severity)
		}
	}
	return ""
}
