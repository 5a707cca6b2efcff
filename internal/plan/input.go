package plan

import (
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/agent"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	"github.com/Rishikoli/speedline-metro-glow/internal/orchestrator"
	"github.com/Rishikoli/speedline-metro-glow/internal/provider"
)

// InputFromSnapshot assembles a planning input. Snapshot constraints win over the configured
// ones; now is the planning instant and fixes the plan id.
func InputFromSnapshot(snap provider.Snapshot, cfg model.Config, now time.Time) orchestrator.Input {
	return orchestrator.Input{
		Fleet:       snap.Fleet,
		Constraints: snap.ConstraintsOr(cfg.Planning.Constraints),
		DepotBays:   snap.DepotBays,
		Now:         now,
		Signals:     snap.Signals,
		Thresholds:  agent.ThresholdsFromConfig(cfg.Agents),
	}
}
