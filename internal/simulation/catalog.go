package simulation

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	atomicyaml "github.com/Rishikoli/speedline-metro-glow/internal/yaml"
)

// Catalog is the on-disk form of a scenario_catalog file.
type Catalog struct {
	atomicyaml.SchemaHeader `yaml:",inline"`
	Scenarios               []model.WhatIfScenario `yaml:"scenarios"`
}

// CommonScenarios returns the built-in scenario presets. Each call returns a fresh copy.
func CommonScenarios() []model.WhatIfScenario {
	return []model.WhatIfScenario{
		{
			ID:          "SCENARIO-001",
			Name:        "Peak Hour Trainset Failure",
			Description: "Simulate the impact of a critical trainset becoming unavailable during peak hours",
			Modifications: []model.ScenarioModification{{
				Type:        model.ModTrainsetUnavailable,
				Target:      "TS-101",
				Description: "TS-101 experiences critical system failure",
			}},
		},
		{
			ID:          "SCENARIO-002",
			Name:        "Cleaning Bay Outage",
			Description: "Simulate the impact of 2 cleaning bays being out of service",
			Modifications: []model.ScenarioModification{{
				Type:        model.ModCleaningOutage,
				Target:      "cleaning_capacity",
				Capacity:    2,
				Description: "2 cleaning bays offline due to equipment failure",
			}},
		},
		{
			ID:          "SCENARIO-003",
			Name:        "Extended Maintenance Window",
			Description: "Simulate the impact of extended maintenance requiring additional trainsets",
			Modifications: []model.ScenarioModification{{
				Type:        model.ModConstraintChange,
				Target:      "constraints",
				Constraints: &model.ConstraintPatch{MinStandby: model.IntPtr(5), MaxService: model.IntPtr(15)},
				Description: "Increased standby requirement for extended maintenance",
			}},
		},
		{
			ID:          "SCENARIO-004",
			Name:        "Multiple Trainset Delays",
			Description: "Simulate multiple trainsets experiencing maintenance delays",
			Modifications: []model.ScenarioModification{
				{
					Type:        model.ModMaintenanceDelay,
					Target:      "TS-105",
					Hours:       6,
					Description: "TS-105 brake system maintenance delay",
				},
				{
					Type:        model.ModMaintenanceDelay,
					Target:      "TS-112",
					Hours:       4,
					Description: "TS-112 HVAC system maintenance delay",
				},
			},
		},
		{
			ID:          "SCENARIO-005",
			Name:        "High Demand Service",
			Description: "Simulate increased service demand requiring more trainsets",
			Modifications: []model.ScenarioModification{{
				Type:        model.ModConstraintChange,
				Target:      "constraints",
				Constraints: &model.ConstraintPatch{MaxService: model.IntPtr(22), MinStandby: model.IntPtr(2)},
				Description: "Increased service requirement for special event",
			}},
		},
	}
}

// LoadScenarios reads a scenario_catalog file.
func LoadScenarios(path string) ([]model.WhatIfScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario catalog: %w", err)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes a scenario_catalog document and validates every scenario in it.
// Scenarios written without an id get a generated scn_ id.
func ParseScenarios(data []byte) ([]model.WhatIfScenario, error) {
	if err := atomicyaml.ValidateSchemaHeaderFromBytes(data, atomicyaml.FileTypeScenarioCatalog); err != nil {
		return nil, fmt.Errorf("scenario catalog header: %w", err)
	}
	var c Catalog
	if err := yamlv3.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	seen := make(map[string]bool, len(c.Scenarios))
	for i := range c.Scenarios {
		if c.Scenarios[i].ID == "" {
			id, err := model.GenerateID(model.IDTypeScenario)
			if err != nil {
				return nil, fmt.Errorf("scenarios[%d]: %w", i, err)
			}
			c.Scenarios[i].ID = id
		}
		s := c.Scenarios[i]
		if err := ValidateScenario(s); err != nil {
			return nil, fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("scenarios[%d]: duplicate scenario id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	return c.Scenarios, nil
}

// WriteScenarios stores scenarios atomically as a scenario_catalog file.
func WriteScenarios(path string, scenarios []model.WhatIfScenario) error {
	return atomicyaml.WriteDocument(path, atomicyaml.FileTypeScenarioCatalog, &Catalog{Scenarios: scenarios})
}

func cloneScenarios(in []model.WhatIfScenario) []model.WhatIfScenario {
	out := make([]model.WhatIfScenario, len(in))
	for i, s := range in {
		c := s
		c.Modifications = make([]model.ScenarioModification, len(s.Modifications))
		for j, m := range s.Modifications {
			if m.Constraints != nil {
				p := *m.Constraints
				m.Constraints = &p
			}
			c.Modifications[j] = m
		}
		out[i] = c
	}
	return out
}
