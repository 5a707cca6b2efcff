package agent

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

const (
	mileageWeight        = 15
	brandingWeight       = 25
	brandingHoursTrigger = 20
	wearWeight           = 20
	wearTrigger          = 80
	accessWeight         = 10
	accessTrigger        = 7
)

// Optimization scores each trainset across mileage balance, branding commitment, component
// wear and depot access.
type Optimization struct{}

func (Optimization) Name() string { return NameOptimization }

func (a Optimization) Run(in Input) model.AgentOutput {
	c := newCollector(a.Name(), in.Now)
	avg := averageKM(in.Fleet)

	for _, ts := range in.Fleet {
		var total float64
		var reasons []string

		delta := float64(ts.KM) - avg
		if math.Abs(delta) > in.Constraints.MileageBalanceThreshold {
			if delta > 0 {
				total -= mileageWeight
				reasons = append(reasons, fmt.Sprintf("High mileage (+%.0fk km above average)", math.Round(delta/1000)))
			} else {
				total += mileageWeight
				reasons = append(reasons, fmt.Sprintf("Low mileage (%.0fk km below average)", math.Round(-delta/1000)))
			}
		}

		if hours := ts.RemainingBrandingHours(); hours > brandingHoursTrigger {
			total += brandingWeight
			reasons = append(reasons, fmt.Sprintf("High branding commitment (%gh remaining)", hours))
		}

		if wear := ts.ComponentWear.Average(); wear > wearTrigger {
			total -= wearWeight
			reasons = append(reasons, fmt.Sprintf("High component wear (%g%% average)", wear))
		}

		if ts.CurrentLocation != "" {
			if bay, ok := model.FindBay(in.DepotBays, ts.CurrentLocation); ok && bay.Geometry.AccessDifficulty > accessTrigger {
				total -= accessWeight
				reasons = append(reasons, fmt.Sprintf("Difficult depot access (complexity: %d)", bay.Geometry.AccessDifficulty))
			}
		}

		if total == 0 {
			continue
		}
		action := model.ActionStandby
		if total > 0 {
			action = model.ActionService
		}
		c.recommend(model.AgentRecommendation{
			TrainsetID: ts.ID,
			Action:     action,
			Weight:     total,
			Rationale:  strings.Join(reasons, "; "),
			Confidence: math.Min(0.95, 0.7+math.Abs(total)/100),
		})
	}

	c.finding(model.SeverityInfo, "", "Multi-objective optimization completed",
		fmt.Sprintf("Analyzed %d trainsets across mileage, branding, wear, and efficiency objectives", len(in.Fleet)))

	return c.result(assessDataQuality(in))
}

func averageKM(fleet []model.TrainsetSnapshot) float64 {
	if len(fleet) == 0 {
		return 0
	}
	var sum float64
	for _, ts := range fleet {
		sum += float64(ts.KM)
	}
	return sum / float64(len(fleet))
}
