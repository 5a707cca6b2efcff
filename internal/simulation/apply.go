package simulation

import (
	"fmt"
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	"github.com/Rishikoli/speedline-metro-glow/internal/orchestrator"
)

const delayDueWindow = 2 * time.Hour

// Apply returns a deep copy of base with mods applied in order. Modifications that target a
// trainset missing from the fleet change nothing and are logged at warn.
func (e *Engine) Apply(base orchestrator.Input, mods []model.ScenarioModification) orchestrator.Input {
	in := cloneInput(base)
	for i, mod := range mods {
		switch mod.Type {
		case model.ModTrainsetUnavailable:
			in.Fleet = e.removeTrainset(in.Fleet, mod.Target)
		case model.ModMaintenanceDelay:
			e.delayMaintenance(in.Fleet, mod, i, in.Now)
		case model.ModCleaningOutage:
			in.Constraints.CleaningBayCapacity = max(0, in.Constraints.CleaningBayCapacity-mod.Capacity)
			in.Constraints.CleaningCrewCapacity = max(0, in.Constraints.CleaningCrewCapacity-mod.Capacity)
		case model.ModConstraintChange:
			if mod.Constraints == nil {
				e.logger.Warnf("constraint_change modification %d carries no constraints", i)
				continue
			}
			in.Constraints = mod.Constraints.Apply(in.Constraints)
		default:
			e.logger.Warnf("skipping modification %d with unknown type %q", i, mod.Type)
		}
	}
	return in
}

func (e *Engine) removeTrainset(fleet []model.TrainsetSnapshot, id string) []model.TrainsetSnapshot {
	out := fleet[:0]
	for _, ts := range fleet {
		if ts.ID != id {
			out = append(out, ts)
		}
	}
	if len(out) == len(fleet) {
		e.logger.Warnf("trainset_unavailable targets unknown trainset %s", id)
	}
	return out
}

func (e *Engine) delayMaintenance(fleet []model.TrainsetSnapshot, mod model.ScenarioModification, index int, now time.Time) {
	for i := range fleet {
		if fleet[i].ID != mod.Target {
			continue
		}
		fleet[i].OpenWorkOrders = append(fleet[i].OpenWorkOrders, model.WorkOrder{
			ID:             fmt.Sprintf("WO-DELAY-%s-%d", mod.Target, index),
			Type:           model.WorkOrderCritical,
			System:         model.SubsystemRollingStock,
			Priority:       10,
			EstimatedHours: mod.Hours,
			DueDate:        now.Add(delayDueWindow),
			Description:    "Delayed maintenance: " + mod.Description,
		})
		return
	}
	e.logger.Warnf("maintenance_delay targets unknown trainset %s", mod.Target)
}

// ValidateScenario checks that every modification carries the value its type reads.
func ValidateScenario(s model.WhatIfScenario) error {
	var errs model.ValidationErrors
	if s.ID == "" {
		errs.Add("id", "required field is missing")
	}
	for i, mod := range s.Modifications {
		prefix := fmt.Sprintf("modifications[%d]", i)
		if !model.IsValidModificationType(mod.Type) {
			errs.Add(prefix+".type", fmt.Sprintf("unknown modification type %q", mod.Type))
			continue
		}
		switch mod.Type {
		case model.ModTrainsetUnavailable, model.ModMaintenanceDelay:
			if mod.Target == "" {
				errs.Add(prefix+".target", "trainset id is required")
			}
			if mod.Hours < 0 {
				errs.Add(prefix+".hours", fmt.Sprintf("must be >= 0, got %g", mod.Hours))
			}
		case model.ModCleaningOutage:
			if mod.Capacity < 0 {
				errs.Add(prefix+".capacity", fmt.Sprintf("must be >= 0, got %d", mod.Capacity))
			}
		case model.ModConstraintChange:
			if mod.Constraints == nil {
				errs.Add(prefix+".constraints", "required for constraint_change")
			}
		}
	}
	return errs.OrNil()
}

func cloneInput(in orchestrator.Input) orchestrator.Input {
	c := in
	c.Fleet = model.CloneFleet(in.Fleet)
	if in.DepotBays != nil {
		c.DepotBays = append([]model.DepotBay(nil), in.DepotBays...)
	}
	c.Signals = in.Signals.Clone()
	return c
}
