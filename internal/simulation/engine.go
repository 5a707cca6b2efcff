// Package simulation replays the planning pipeline under declarative what-if modifications and
// reports how the resulting plan differs from the baseline.
package simulation

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/Rishikoli/speedline-metro-glow/internal/logging"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	"github.com/Rishikoli/speedline-metro-glow/internal/orchestrator"
)

// Planner produces a plan from an input. *orchestrator.Orchestrator satisfies it.
type Planner interface {
	Run(ctx context.Context, in orchestrator.Input) (orchestrator.Result, error)
}

type Impact struct {
	KPIDeltas             model.KPIProjections `yaml:"kpi_deltas" json:"kpi_deltas"`
	RiskAssessment        []string             `yaml:"risk_assessment" json:"risk_assessment"`
	MitigationSuggestions []string             `yaml:"mitigation_suggestions" json:"mitigation_suggestions"`
}

type Result struct {
	ScenarioID    string               `yaml:"scenario_id" json:"scenario_id"`
	OriginalPlan  *model.InductionPlan `yaml:"original_plan" json:"original_plan"`
	ModifiedPlan  *model.InductionPlan `yaml:"modified_plan" json:"modified_plan"`
	ModifiedInput orchestrator.Input   `yaml:"-" json:"-"`
	Impact        Impact               `yaml:"impact" json:"impact"`
}

// Clone returns a deep copy so cached results never leak shared slices.
func (r Result) Clone() Result {
	c := r
	c.OriginalPlan = r.OriginalPlan.Clone()
	c.ModifiedPlan = r.ModifiedPlan.Clone()
	c.ModifiedInput = cloneInput(r.ModifiedInput)
	c.Impact.RiskAssessment = append([]string{}, r.Impact.RiskAssessment...)
	c.Impact.MitigationSuggestions = append([]string{}, r.Impact.MitigationSuggestions...)
	return c
}

// Thresholds below which a KPI drop is reported as a risk.
const (
	punctualityRiskDelta = -0.01
	brandingRiskDelta    = -0.10
	maintenanceRiskDelta = -0.05
)

type Engine struct {
	planner  Planner
	logger   *logging.Logger
	catalog  []model.WhatIfScenario
	parallel bool
}

type Option func(*Engine)

// WithCatalog replaces the scenario catalog used by RunByID and Scenarios.
func WithCatalog(scenarios []model.WhatIfScenario) Option {
	return func(e *Engine) { e.catalog = append([]model.WhatIfScenario(nil), scenarios...) }
}

// WithParallel controls whether the baseline and modified runs execute concurrently.
func WithParallel(parallel bool) Option {
	return func(e *Engine) { e.parallel = parallel }
}

func NewEngine(planner Planner, logger *logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		planner:  planner,
		logger:   logger.With("simulation"),
		catalog:  CommonScenarios(),
		parallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Scenarios() []model.WhatIfScenario {
	return cloneScenarios(e.catalog)
}

// RunByID runs the catalog scenario with the given id.
func (e *Engine) RunByID(ctx context.Context, id string, base orchestrator.Input) (Result, error) {
	for _, s := range e.catalog {
		if s.ID == id {
			return e.Run(ctx, s, base)
		}
	}
	return Result{}, &ScenarioNotFoundError{ID: id}
}

// Run plans base and the scenario-modified copy of base, then compares them. base is never
// mutated and neither plan is persisted.
func (e *Engine) Run(ctx context.Context, scenario model.WhatIfScenario, base orchestrator.Input) (Result, error) {
	if err := ValidateScenario(scenario); err != nil {
		return Result{}, err
	}

	modified := e.Apply(base, scenario.Modifications)

	var original, changed orchestrator.Result
	runOriginal := func(ctx context.Context) error {
		r, err := e.planner.Run(ctx, cloneInput(base))
		if err != nil {
			return fmt.Errorf("baseline plan: %w", err)
		}
		original = r
		return nil
	}
	runModified := func(ctx context.Context) error {
		r, err := e.planner.Run(ctx, cloneInput(modified))
		if err != nil {
			return fmt.Errorf("scenario %s plan: %w", scenario.ID, err)
		}
		changed = r
		return nil
	}

	if e.parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return runOriginal(gctx) })
		g.Go(func() error { return runModified(gctx) })
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
	} else {
		if err := runOriginal(ctx); err != nil {
			return Result{}, err
		}
		if err := runModified(ctx); err != nil {
			return Result{}, err
		}
	}

	e.logger.Infof("scenario %s: %d → %d assignments", scenario.ID,
		len(original.Plan.Assignments), len(changed.Plan.Assignments))
	return Result{
		ScenarioID:    scenario.ID,
		OriginalPlan:  original.Plan,
		ModifiedPlan:  changed.Plan,
		ModifiedInput: modified,
		Impact:        Analyze(original.Plan, changed.Plan),
	}, nil
}

// Analyze computes KPI deltas (modified − original) with the risks and mitigations they imply.
func Analyze(original, modified *model.InductionPlan) Impact {
	deltas := modified.KPIProjections.Sub(original.KPIProjections)
	impact := Impact{
		KPIDeltas:             deltas,
		RiskAssessment:        []string{},
		MitigationSuggestions: []string{},
	}

	if deltas.PunctualityRate < punctualityRiskDelta {
		impact.RiskAssessment = append(impact.RiskAssessment,
			fmt.Sprintf("Punctuality risk: %.2f%% decrease", math.Abs(deltas.PunctualityRate)*100))
	}
	if deltas.BrandingFulfillment < brandingRiskDelta {
		impact.RiskAssessment = append(impact.RiskAssessment,
			fmt.Sprintf("Branding SLA risk: %.1f%% decrease in fulfillment", math.Abs(deltas.BrandingFulfillment)*100))
	}
	if deltas.MaintenanceCompliance < maintenanceRiskDelta {
		impact.RiskAssessment = append(impact.RiskAssessment,
			fmt.Sprintf("Maintenance compliance risk: %.1f%% decrease", math.Abs(deltas.MaintenanceCompliance)*100))
	}

	if modified.RoleCounts()[model.RoleService] < original.RoleCounts()[model.RoleService] {
		impact.MitigationSuggestions = append(impact.MitigationSuggestions,
			"Consider reducing service intervals or deploying backup trainsets")
	}
	if riskFactorsIncreased(original, modified) {
		impact.MitigationSuggestions = append(impact.MitigationSuggestions,
			"Prioritize maintenance activities to reduce risk factors")
	}
	if deltas.BrandingFulfillment < brandingRiskDelta {
		impact.MitigationSuggestions = append(impact.MitigationSuggestions,
			"Negotiate branding contract extensions or deploy alternative advertising solutions")
	}
	return impact
}

// riskFactorsIncreased reports whether any trainset carries more risk factors in modified than
// in original. Trainsets absent from original count as zero.
func riskFactorsIncreased(original, modified *model.InductionPlan) bool {
	before := make(map[string]int, len(original.Assignments))
	for _, a := range original.Assignments {
		before[a.TrainsetID] = len(a.RiskFactors)
	}
	for _, a := range modified.Assignments {
		if len(a.RiskFactors) > before[a.TrainsetID] {
			return true
		}
	}
	return false
}

type ScenarioNotFoundError struct {
	ID string
}

func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario not found: %s", e.ID)
}
