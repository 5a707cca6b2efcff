package orchestrator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

const (
	riskWeight           = -30
	serviceScoreFloor    = -20
	maintenanceReadiness = 8 * time.Hour
	defaultReadiness     = 2 * time.Hour
)

// tally is the running aggregate for one trainset.
type tally struct {
	trainsetID  string
	score       float64
	reasons     []string
	tags        map[string]bool
	riskFactors []string
}

// aggregate folds every targeted recommendation into per-trainset tallies, in the order the
// trainsets were first mentioned.
func aggregate(outputs []model.AgentOutput) []*tally {
	byID := make(map[string]*tally)
	var order []*tally
	for _, out := range outputs {
		for _, r := range out.Recommendations {
			if r.TrainsetID == "" {
				continue
			}
			t, ok := byID[r.TrainsetID]
			if !ok {
				t = &tally{trainsetID: r.TrainsetID, tags: make(map[string]bool), reasons: []string{}, riskFactors: []string{}}
				byID[r.TrainsetID] = t
				order = append(order, t)
			}
			t.score += r.Weight * r.Confidence
			t.reasons = append(t.reasons, formatReason(out.Agent, r))
			for _, tag := range r.Constraints {
				t.tags[tag] = true
			}
			if r.Weight < riskWeight {
				t.riskFactors = append(t.riskFactors, out.Agent+": "+r.Rationale)
			}
		}
	}
	return order
}

func formatReason(agentName string, r model.AgentRecommendation) string {
	weight := formatNumber(r.Weight)
	if r.Weight > 0 {
		weight = "+" + weight
	}
	conf := formatNumber(math.Round(r.Confidence*100) / 100)
	return fmt.Sprintf("%s: %s (%s %s, conf: %s)", agentName, r.Rationale, r.Action, weight, conf)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (t *tally) forcedMaintenance() bool {
	for tag := range model.ForcedMaintenanceTags {
		if t.tags[tag] {
			return true
		}
	}
	return false
}

// allocation holds the role decisions of one pass of the greedy allocator.
type allocation struct {
	assignments []model.InductionAssignment
	service     int
	standby     int
}

// allocate assigns roles in descending score order. Ties keep discovery order.
//
// Forced-maintenance tags win over everything; otherwise service is filled up to MaxService
// for scores above the floor, then standby up to max(1, MinStandby), then maintenance.
func allocate(tallies []*tally, in Input) allocation {
	sorted := append([]*tally(nil), tallies...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })

	standbyCap := max(1, in.Constraints.MinStandby)
	bays := newBayAllocator(in.DepotBays)

	var a allocation
	for _, t := range sorted {
		var role model.Role
		switch {
		case t.forcedMaintenance():
			role = model.RoleMaintenance
		case a.service < in.Constraints.MaxService && t.score > serviceScoreFloor:
			role = model.RoleService
			a.service++
		case a.standby < standbyCap:
			role = model.RoleStandby
			a.standby++
		default:
			role = model.RoleMaintenance
		}

		readiness := defaultReadiness
		if role == model.RoleMaintenance {
			readiness = maintenanceReadiness
		}

		a.assignments = append(a.assignments, model.InductionAssignment{
			TrainsetID:         t.trainsetID,
			Role:               role,
			Score:              t.score,
			Reasons:            t.reasons,
			AssignedBay:        bays.take(role),
			CleaningScheduled:  t.tags[model.TagCleaningScheduled],
			EstimatedReadiness: in.Now.Add(readiness),
			RiskFactors:        t.riskFactors,
		})
	}
	return a
}

// bayAllocator hands out the first bay of the matching type with room left. Standby trainsets
// are stabled in storage bays.
type bayAllocator struct {
	bays []model.DepotBay
	used map[string]int
}

func newBayAllocator(bays []model.DepotBay) *bayAllocator {
	return &bayAllocator{bays: bays, used: make(map[string]int)}
}

func (b *bayAllocator) take(role model.Role) string {
	want := model.BayType(role)
	if role == model.RoleStandby {
		want = model.BayStorage
	}
	for _, bay := range b.bays {
		if bay.Type == want && bay.CurrentOccupancy+b.used[bay.ID] < bay.Capacity {
			b.used[bay.ID]++
			return bay.ID
		}
	}
	return ""
}
