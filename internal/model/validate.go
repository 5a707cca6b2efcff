package model

import "fmt"

func ValidateConstraints(c GlobalConstraints, errs *ValidationErrors) {
	nonNegative := []struct {
		field string
		value int
	}{
		{"constraints.min_standby", c.MinStandby},
		{"constraints.max_service", c.MaxService},
		{"constraints.cleaning_bay_capacity", c.CleaningBayCapacity},
		{"constraints.cleaning_crew_capacity", c.CleaningCrewCapacity},
		{"constraints.max_shunting_moves", c.MaxShuntingMoves},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			errs.Add(f.field, fmt.Sprintf("must be >= 0, got %d", f.value))
		}
	}
	if c.PunctualityTarget <= 0 || c.PunctualityTarget > 1 {
		errs.Add("constraints.punctuality_target", fmt.Sprintf("must be in (0,1], got %g", c.PunctualityTarget))
	}
	if c.MileageBalanceThreshold <= 0 {
		errs.Add("constraints.mileage_balance_threshold", fmt.Sprintf("must be > 0, got %g", c.MileageBalanceThreshold))
	}
}

func ValidateFleet(fleet []TrainsetSnapshot, errs *ValidationErrors) {
	seen := make(map[string]bool, len(fleet))
	for i, ts := range fleet {
		prefix := fmt.Sprintf("fleet[%d]", i)
		if ts.ID == "" {
			errs.Add(prefix+".id", "required field is missing")
		} else if seen[ts.ID] {
			errs.Add(prefix+".id", fmt.Sprintf("duplicate trainset id %q", ts.ID))
		}
		seen[ts.ID] = true

		if ts.KM < 0 {
			errs.Add(prefix+".km", fmt.Sprintf("must be >= 0, got %d", ts.KM))
		}
		if ts.FitnessValidUntil.IsZero() {
			errs.Add(prefix+".fitness_valid_until", "required field is missing")
		}
		wear := map[string]float64{
			"brake_pads": ts.ComponentWear.BrakePads,
			"hvac":       ts.ComponentWear.HVAC,
			"bogies":     ts.ComponentWear.Bogies,
			"doors":      ts.ComponentWear.Doors,
		}
		for _, name := range []string{"brake_pads", "hvac", "bogies", "doors"} {
			if v := wear[name]; v < 0 || v > 100 {
				errs.Add(prefix+".component_wear."+name, fmt.Sprintf("must be in [0,100], got %g", v))
			}
		}
		for sys, h := range ts.SystemHealth {
			if !IsValidSubsystem(sys) {
				errs.Add(prefix+".system_health", fmt.Sprintf("unknown subsystem %q", sys))
			}
			if !IsValidHealthStatus(h.Status) {
				errs.Add(fmt.Sprintf("%s.system_health.%s", prefix, sys), fmt.Sprintf("unknown health status %q", h.Status))
			}
		}
		for j, wo := range ts.OpenWorkOrders {
			woPrefix := fmt.Sprintf("%s.open_work_orders[%d]", prefix, j)
			switch wo.Type {
			case WorkOrderCritical, WorkOrderPreventive, WorkOrderCorrective:
			default:
				errs.Add(woPrefix+".type", fmt.Sprintf("must be critical, preventive or corrective, got %q", wo.Type))
			}
			if wo.Priority < 1 || wo.Priority > 10 {
				errs.Add(woPrefix+".priority", fmt.Sprintf("must be in [1,10], got %d", wo.Priority))
			}
		}
		for j, bc := range ts.BrandingContracts {
			if bc.RemainingHours > bc.CommittedHours {
				errs.Add(fmt.Sprintf("%s.branding_contracts[%d].remaining_hours", prefix, j),
					fmt.Sprintf("%g exceeds committed hours %g", bc.RemainingHours, bc.CommittedHours))
			}
		}
	}
}

func ValidateBays(bays []DepotBay, errs *ValidationErrors) {
	seen := make(map[string]bool, len(bays))
	for i, b := range bays {
		prefix := fmt.Sprintf("depot_bays[%d]", i)
		if b.ID == "" {
			errs.Add(prefix+".id", "required field is missing")
		} else if seen[b.ID] {
			errs.Add(prefix+".id", fmt.Sprintf("duplicate bay id %q", b.ID))
		}
		seen[b.ID] = true

		switch b.Type {
		case BayService, BayMaintenance, BayCleaning, BayStorage:
		default:
			errs.Add(prefix+".type", fmt.Sprintf("must be service, maintenance, cleaning or storage, got %q", b.Type))
		}
		if b.Capacity < 0 {
			errs.Add(prefix+".capacity", fmt.Sprintf("must be >= 0, got %d", b.Capacity))
		}
		if b.CurrentOccupancy < 0 || b.CurrentOccupancy > b.Capacity {
			errs.Add(prefix+".current_occupancy", fmt.Sprintf("must be in [0,%d], got %d", b.Capacity, b.CurrentOccupancy))
		}
		if d := b.Geometry.AccessDifficulty; d < 1 || d > 10 {
			errs.Add(prefix+".geometry.access_difficulty", fmt.Sprintf("must be in [1,10], got %d", d))
		}
	}
}

// ValidateSignals rejects operator priority messages the ingestion agent could only misread.
func ValidateSignals(s Signals, errs *ValidationErrors) {
	for i, m := range s.PriorityMessages {
		prefix := fmt.Sprintf("signals.priority_messages[%d]", i)
		if !IsValidAction(m.Action) {
			errs.Add(prefix+".action", fmt.Sprintf("unknown action %q", m.Action))
		}
		if m.Priority < 1 || m.Priority > 10 {
			errs.Add(prefix+".priority", fmt.Sprintf("must be in [1,10], got %d", m.Priority))
		}
	}
	if dq := s.DataQuality; dq != nil {
		ratios := []struct {
			field string
			value float64
		}{
			{"signals.data_quality.completeness", dq.Completeness},
			{"signals.data_quality.consistency", dq.Consistency},
			{"signals.data_quality.accuracy", dq.Accuracy},
		}
		for _, r := range ratios {
			if r.value < 0 || r.value > 1 {
				errs.Add(r.field, fmt.Sprintf("must be in [0,1], got %g", r.value))
			}
		}
		if dq.Freshness < 0 {
			errs.Add("signals.data_quality.freshness", fmt.Sprintf("must be >= 0, got %g", dq.Freshness))
		}
	}
}
