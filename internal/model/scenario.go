package model

type ModificationType string

const (
	ModTrainsetUnavailable ModificationType = "trainset_unavailable"
	ModMaintenanceDelay    ModificationType = "maintenance_delay"
	ModCleaningOutage      ModificationType = "cleaning_outage"
	ModConstraintChange    ModificationType = "constraint_change"
)

var validModificationTypes = map[ModificationType]bool{
	ModTrainsetUnavailable: true,
	ModMaintenanceDelay:    true,
	ModCleaningOutage:      true,
	ModConstraintChange:    true,
}

func IsValidModificationType(t ModificationType) bool {
	return validModificationTypes[t]
}

// ScenarioModification targets either a trainset id (trainset_unavailable, maintenance_delay)
// or a named bucket (cleaning_outage, constraint_change). Only the value field matching Type
// is read.
type ScenarioModification struct {
	Type        ModificationType `yaml:"type" json:"type"`
	Target      string           `yaml:"target" json:"target"`
	Hours       float64          `yaml:"hours,omitempty" json:"hours,omitempty"`
	Capacity    int              `yaml:"capacity,omitempty" json:"capacity,omitempty"`
	Constraints *ConstraintPatch `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Description string           `yaml:"description" json:"description"`
}

type WhatIfScenario struct {
	ID            string                 `yaml:"id" json:"id"`
	Name          string                 `yaml:"name" json:"name"`
	Description   string                 `yaml:"description" json:"description"`
	Modifications []ScenarioModification `yaml:"modifications" json:"modifications"`
}
