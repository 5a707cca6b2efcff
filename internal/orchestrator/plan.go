package orchestrator

import (
	"fmt"
	"math"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

const (
	punctualityFloor       = 0.90
	punctualityRiskPenalty = 0.005
	energyCeiling          = 0.98
	energySpan             = 0.18
)

func buildPlan(outputs []model.AgentOutput, in Input) *model.InductionPlan {
	alloc := allocate(aggregate(outputs), in)
	assignments := alloc.assignments
	if assignments == nil {
		assignments = []model.InductionAssignment{}
	}

	plan := &model.InductionPlan{
		ID:             model.PlanID(in.Now),
		GeneratedAt:    in.Now,
		Assignments:    assignments,
		Constraints:    in.Constraints,
		ApprovalStatus: model.ApprovalPending,
	}
	plan.KPIProjections = ProjectKPIs(assignments, in.Fleet, in.Constraints, shuntingMoves(outputs))

	cleaning := 0
	for _, a := range assignments {
		if a.CleaningScheduled {
			cleaning++
		}
	}
	plan.ObjectiveNotes = []string{
		"Multi-objective optimization balancing punctuality, mileage, branding SLA, and energy efficiency.",
		fmt.Sprintf("Service: %d/%d, Standby: %d/%d", alloc.service, in.Constraints.MaxService, alloc.standby, in.Constraints.MinStandby),
		fmt.Sprintf("Cleaning scheduled: %d trainsets", cleaning),
		fmt.Sprintf("Risk factors identified: %d total", plan.TotalRiskFactors()),
	}
	plan.AuditTrail = []model.AuditEntry{model.NewPlanGeneratedEntry(in.Now, len(in.Fleet), len(assignments))}
	return plan
}

// shuntingMoves returns the move count of the first stabling plan among the outputs.
func shuntingMoves(outputs []model.AgentOutput) int {
	for _, out := range outputs {
		if out.Stabling != nil {
			return out.Stabling.TotalMoves
		}
	}
	return 0
}

// ProjectKPIs derives the plan's KPI projections. They describe the plan and never feed back
// into role decisions.
func ProjectKPIs(assignments []model.InductionAssignment, fleet []model.TrainsetSnapshot, c model.GlobalConstraints, moves int) model.KPIProjections {
	byID := make(map[string]model.TrainsetSnapshot, len(fleet))
	for _, ts := range fleet {
		byID[ts.ID] = ts
	}

	risks := 0
	maintenance := 0
	var serviceHours float64
	for _, a := range assignments {
		risks += len(a.RiskFactors)
		switch a.Role {
		case model.RoleMaintenance:
			maintenance++
		case model.RoleService:
			serviceHours += byID[a.TrainsetID].BrandingHoursDue()
		}
	}

	var totalHours float64
	needing := 0
	for _, ts := range fleet {
		totalHours += ts.BrandingHoursDue()
		if ts.NeedsMaintenance() {
			needing++
		}
	}

	k := model.KPIProjections{
		PunctualityRate:       math.Max(punctualityFloor, c.PunctualityTarget-punctualityRiskPenalty*float64(risks)),
		MileageBalance:        mileageBalance(fleet, c.MileageBalanceThreshold),
		BrandingFulfillment:   1,
		MaintenanceCompliance: 1,
		EnergyEfficiency:      EnergyEfficiency(moves, len(fleet)),
	}
	if totalHours > 0 {
		k.BrandingFulfillment = serviceHours / totalHours
	}
	if needing > 0 {
		k.MaintenanceCompliance = math.Min(1, float64(maintenance)/float64(needing))
	}
	return k
}

func mileageBalance(fleet []model.TrainsetSnapshot, threshold float64) float64 {
	if len(fleet) == 0 || threshold <= 0 {
		return 1
	}
	var sum float64
	for _, ts := range fleet {
		sum += float64(ts.KM)
	}
	mean := sum / float64(len(fleet))
	var variance float64
	for _, ts := range fleet {
		d := float64(ts.KM) - mean
		variance += d * d
	}
	variance /= float64(len(fleet))
	return math.Max(0, 1-math.Sqrt(variance)/threshold)
}

// EnergyEfficiency maps depot shunting moves to an efficiency estimate in [0.80, 0.98]. It is
// 0.98 with no moves and strictly decreases as moves grow for a fixed fleet size.
func EnergyEfficiency(moves, fleetSize int) float64 {
	if moves <= 0 {
		return energyCeiling
	}
	return energyCeiling - energySpan*float64(moves)/float64(moves+fleetSize)
}
