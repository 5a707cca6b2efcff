// Package agent implements the scoring agents of the induction planner. Each agent is a total,
// deterministic function of its Input: it reads no clock and no random source, and it shares
// no mutable state with other agents.
package agent

import (
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

const (
	NameIngestion    = "data-ingestion"
	NameConstraints  = "constraint-enforcement"
	NameOptimization = "optimization"
	NameCleaning     = "cleaning-stabling"
	NameSimulation   = "simulation"
	NameFeedback     = "feedback"
)

// Agent inspects one planning input and returns its findings and weighted recommendations.
type Agent interface {
	Name() string
	Run(in Input) model.AgentOutput
}

// Thresholds tune the data-quality and fitness rules. Zero fields take their defaults.
type Thresholds struct {
	StaleDataMinutes float64
	MinConsistency   float64
	FitnessWarning   time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleDataMinutes: model.DefaultStaleDataMinutes,
		MinConsistency:   model.DefaultMinConsistency,
		FitnessWarning:   time.Duration(model.DefaultFitnessWarningDays) * 24 * time.Hour,
	}
}

// ThresholdsFromConfig maps the agents section of config.yaml.
func ThresholdsFromConfig(cfg model.AgentsConfig) Thresholds {
	return Thresholds{
		StaleDataMinutes: cfg.StaleDataMinutes,
		MinConsistency:   cfg.MinConsistency,
		FitnessWarning:   time.Duration(cfg.FitnessWarningDays) * 24 * time.Hour,
	}.withDefaults()
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.StaleDataMinutes <= 0 {
		t.StaleDataMinutes = d.StaleDataMinutes
	}
	if t.MinConsistency <= 0 {
		t.MinConsistency = d.MinConsistency
	}
	if t.FitnessWarning <= 0 {
		t.FitnessWarning = d.FitnessWarning
	}
	return t
}

// Input is the read-only snapshot every agent receives for one planning run.
type Input struct {
	Fleet       []model.TrainsetSnapshot
	Constraints model.GlobalConstraints
	DepotBays   []model.DepotBay
	Now         time.Time
	Signals     model.Signals
	Thresholds  Thresholds
}

func (in Input) trainsetIDs() map[string]bool {
	ids := make(map[string]bool, len(in.Fleet))
	for _, ts := range in.Fleet {
		ids[ts.ID] = true
	}
	return ids
}

// Default returns the baseline pipeline in its fixed execution order.
func Default() []Agent {
	return []Agent{
		Ingestion{},
		ConstraintEnforcement{},
		Optimization{},
		CleaningStabling{},
		SimulationReadiness{},
		Feedback{},
	}
}

// collector accumulates one agent's output.
type collector struct {
	out model.AgentOutput
	now time.Time
}

func newCollector(name string, now time.Time) *collector {
	return &collector{
		out: model.AgentOutput{
			Agent:           name,
			Findings:        []model.AgentFinding{},
			Recommendations: []model.AgentRecommendation{},
		},
		now: now,
	}
}

func (c *collector) finding(sev model.Severity, trainsetID, title, message string) {
	c.out.Findings = append(c.out.Findings, model.AgentFinding{
		Title:      title,
		Message:    message,
		Severity:   sev,
		Timestamp:  c.now,
		Source:     c.out.Agent,
		TrainsetID: trainsetID,
	})
}

func (c *collector) recommend(r model.AgentRecommendation) {
	if r.Constraints == nil {
		r.Constraints = []string{}
	}
	c.out.Recommendations = append(c.out.Recommendations, r)
}

func (c *collector) result(dq model.DataQualityMetrics) model.AgentOutput {
	c.out.DataQuality = dq
	return c.out
}
