package agent

import (
	"sort"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

// PlanStabling proposes bay moves so that each trainset ends up in a bay that suits its next
// job: a maintenance-capable bay when it needs maintenance, a cleaning-capable bay when it is
// scheduled for cleaning, otherwise a storage or service bay.
//
// Trainsets already in a suitable bay stay. The rest are handled hardest-to-reach first; each
// takes the free suitable bay with the lowest access difficulty, then the nearest track, then
// the earliest bay in the list. Bay occupancy never exceeds capacity and the number of moves
// never exceeds maxMoves. Trainsets that could not be moved are listed in Unmoved.
func PlanStabling(fleet []model.TrainsetSnapshot, bays []model.DepotBay, cleaning map[string]bool, maxMoves int) model.StablingPlan {
	plan := model.StablingPlan{Moves: []model.StablingMove{}, Unmoved: []string{}}

	occupancy := make(map[string]int, len(bays))
	index := make(map[string]int, len(bays))
	for i, b := range bays {
		occupancy[b.ID] = b.CurrentOccupancy
		index[b.ID] = i
	}

	type pending struct {
		ts         model.TrainsetSnapshot
		difficulty int
		track      int
	}
	var queue []pending
	for _, ts := range fleet {
		i, located := index[ts.CurrentLocation]
		if located && suits(ts, bays[i], cleaning) {
			continue
		}
		p := pending{ts: ts}
		if located {
			p.difficulty = bays[i].Geometry.AccessDifficulty
			p.track = bays[i].Geometry.TrackNumber
		}
		queue = append(queue, p)
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].difficulty > queue[j].difficulty })

	for _, p := range queue {
		if plan.TotalMoves >= maxMoves {
			plan.Unmoved = append(plan.Unmoved, p.ts.ID)
			continue
		}
		best := -1
		for i, b := range bays {
			if b.ID == p.ts.CurrentLocation || occupancy[b.ID] >= b.Capacity || !suits(p.ts, b, cleaning) {
				continue
			}
			if best < 0 || betterBay(b, bays[best], p.track) {
				best = i
			}
		}
		if best < 0 {
			plan.Unmoved = append(plan.Unmoved, p.ts.ID)
			continue
		}

		to := bays[best]
		occupancy[to.ID]++
		if _, ok := index[p.ts.CurrentLocation]; ok && occupancy[p.ts.CurrentLocation] > 0 {
			occupancy[p.ts.CurrentLocation]--
		}
		plan.Moves = append(plan.Moves, model.StablingMove{
			TrainsetID: p.ts.ID,
			FromBay:    p.ts.CurrentLocation,
			ToBay:      to.ID,
		})
		plan.TotalMoves++
	}
	return plan
}

func suits(ts model.TrainsetSnapshot, b model.DepotBay, cleaning map[string]bool) bool {
	switch {
	case ts.NeedsMaintenance():
		return b.MaintenanceCapable
	case cleaning[ts.ID]:
		return b.CleaningCapable
	default:
		return b.Type == model.BayStorage || b.Type == model.BayService
	}
}

// betterBay reports whether a beats b for a trainset currently on track. Earlier bays win
// remaining ties because the caller only replaces on a strict improvement.
func betterBay(a, b model.DepotBay, track int) bool {
	if a.Geometry.AccessDifficulty != b.Geometry.AccessDifficulty {
		return a.Geometry.AccessDifficulty < b.Geometry.AccessDifficulty
	}
	return abs(a.Geometry.TrackNumber-track) < abs(b.Geometry.TrackNumber-track)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
