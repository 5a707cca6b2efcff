package agent

import (
	"fmt"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

// SimulationReadiness reports that what-if analysis is available. It never recommends.
type SimulationReadiness struct{}

func (SimulationReadiness) Name() string { return NameSimulation }

func (a SimulationReadiness) Run(in Input) model.AgentOutput {
	c := newCollector(a.Name(), in.Now)
	c.finding(model.SeverityInfo, "", "Simulation capability ready",
		"What-if simulation engine initialized and ready for scenario testing")
	return c.result(assessDataQuality(in))
}

// Feedback reports supervisor override activity. It never recommends.
type Feedback struct{}

func (Feedback) Name() string { return NameFeedback }

func (a Feedback) Run(in Input) model.AgentOutput {
	c := newCollector(a.Name(), in.Now)
	c.finding(model.SeverityInfo, "", "Feedback system active",
		"Monitoring supervisor overrides and plan effectiveness for continuous improvement")
	if n := in.Signals.RecentOverrides; n > 0 {
		c.finding(model.SeverityInfo, "", "Recent supervisor overrides",
			fmt.Sprintf("%d supervisor overrides recorded across recent plans", n))
	}
	return c.result(assessDataQuality(in))
}
