// Package provider supplies fleet snapshots to the planning pipeline. Implementations return
// data that is already fetched; the pipeline never waits on a provider mid-run.
package provider

import (
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	atomicyaml "github.com/Rishikoli/speedline-metro-glow/internal/yaml"
)

// Snapshot is everything the agents need for one planning run.
type Snapshot struct {
	atomicyaml.SchemaHeader `yaml:",inline"`
	GeneratedAt             time.Time                `yaml:"generated_at"`
	Fleet                   []model.TrainsetSnapshot `yaml:"fleet"`
	DepotBays               []model.DepotBay         `yaml:"depot_bays"`
	Constraints             *model.GlobalConstraints `yaml:"constraints,omitempty"`
	Signals                 model.Signals            `yaml:"signals,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Fleet = model.CloneFleet(s.Fleet)
	c.DepotBays = append([]model.DepotBay(nil), s.DepotBays...)
	if s.Constraints != nil {
		gc := *s.Constraints
		c.Constraints = &gc
	}
	c.Signals = s.Signals.Clone()
	return c
}

// ConstraintsOr returns the snapshot's constraints, or fallback when the snapshot carries none.
func (s Snapshot) ConstraintsOr(fallback model.GlobalConstraints) model.GlobalConstraints {
	if s.Constraints != nil {
		return *s.Constraints
	}
	return fallback
}

type DataProvider interface {
	Snapshot() (Snapshot, error)
}

// Validate collects every field-level problem in the snapshot.
func Validate(s Snapshot) error {
	var errs model.ValidationErrors
	model.ValidateFleet(s.Fleet, &errs)
	model.ValidateBays(s.DepotBays, &errs)
	if s.Constraints != nil {
		model.ValidateConstraints(*s.Constraints, &errs)
	}
	model.ValidateSignals(s.Signals, &errs)
	return errs.OrNil()
}

// Static serves a fixed snapshot. Each call returns a fresh copy.
type Static struct {
	snapshot Snapshot
}

func NewStatic(s Snapshot) *Static {
	return &Static{snapshot: s.Clone()}
}

func (p *Static) Snapshot() (Snapshot, error) {
	return p.snapshot.Clone(), nil
}
