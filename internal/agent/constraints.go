package agent

import (
	"fmt"
	"strings"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

// ConstraintEnforcement applies the hard safety rules: fitness certificates, critical work
// orders, critical subsystem health and cleaning bay capacity.
type ConstraintEnforcement struct{}

func (ConstraintEnforcement) Name() string { return NameConstraints }

func (a ConstraintEnforcement) Run(in Input) model.AgentOutput {
	th := in.Thresholds.withDefaults()
	c := newCollector(a.Name(), in.Now)
	warnDays := int(th.FitnessWarning.Hours() / 24)

	for _, ts := range in.Fleet {
		expiresIn := ts.FitnessValidUntil.Sub(in.Now)
		switch {
		case expiresIn < 0:
			c.recommend(model.AgentRecommendation{
				TrainsetID:  ts.ID,
				Action:      model.ActionExclude,
				Weight:      -100,
				Rationale:   "Fitness certificate expired",
				Confidence:  1.0,
				Constraints: []string{model.TagFitnessExpired},
			})
			c.finding(model.SeverityCritical, ts.ID, "Expired fitness: "+ts.ID,
				fmt.Sprintf("Trainset %s has expired fitness certificate", ts.ID))
		case expiresIn <= th.FitnessWarning:
			c.recommend(model.AgentRecommendation{
				TrainsetID:  ts.ID,
				Action:      model.ActionStandby,
				Weight:      -20,
				Rationale:   fmt.Sprintf("Fitness expiring soon (<%dd)", warnDays),
				Confidence:  0.9,
				Constraints: []string{model.TagFitnessExpiring},
			})
			c.finding(model.SeverityWarn, ts.ID, "Expiring fitness: "+ts.ID,
				fmt.Sprintf("Trainset %s fitness expiring in < %d days", ts.ID, warnDays))
		}

		if n := ts.CriticalWorkOrders(); n > 0 {
			c.recommend(model.AgentRecommendation{
				TrainsetID:  ts.ID,
				Action:      model.ActionMaintenance,
				Weight:      -50 * float64(n),
				Rationale:   fmt.Sprintf("%d critical work order(s) must be completed", n),
				Confidence:  1.0,
				Constraints: []string{model.TagCriticalMaintenance},
			})
			c.finding(model.SeverityCritical, ts.ID, "Critical maintenance: "+ts.ID,
				fmt.Sprintf("%d critical work orders pending", n))
		}

		if failed := ts.CriticalSubsystems(); len(failed) > 0 {
			names := make([]string, len(failed))
			for i, s := range failed {
				names[i] = string(s)
			}
			list := strings.Join(names, ", ")
			c.recommend(model.AgentRecommendation{
				TrainsetID:  ts.ID,
				Action:      model.ActionExclude,
				Weight:      -80,
				Rationale:   "Critical system failures: " + list,
				Confidence:  1.0,
				Constraints: []string{model.TagCriticalSystem},
			})
			c.finding(model.SeverityCritical, ts.ID, "System failure: "+ts.ID,
				"Critical failures in: "+list)
		}
	}

	needing := 0
	for _, ts := range in.Fleet {
		if ts.CleaningRequired {
			needing++
		}
	}
	if needing > in.Constraints.CleaningBayCapacity {
		c.finding(model.SeverityWarn, "", "Cleaning capacity constraint",
			fmt.Sprintf("%d trainsets need cleaning, but only %d bays available", needing, in.Constraints.CleaningBayCapacity))
	}

	return c.result(assessDataQuality(in))
}
