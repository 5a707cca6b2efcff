package agent

import (
	"fmt"
	"sort"
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

// CleaningStabling allocates cleaning slots up to bay capacity and proposes a bay reassignment
// bounded by the shunting-move limit.
type CleaningStabling struct{}

func (CleaningStabling) Name() string { return NameCleaning }

type cleaningCandidate struct {
	trainset model.TrainsetSnapshot
	days     int
	priority float64
}

func (a CleaningStabling) Run(in Input) model.AgentOutput {
	c := newCollector(a.Name(), in.Now)

	var queue []cleaningCandidate
	for _, ts := range in.Fleet {
		if !ts.CleaningRequired {
			continue
		}
		days := daysSince(in.Now, ts.LastCleaningDate)
		queue = append(queue, cleaningCandidate{
			trainset: ts,
			days:     days,
			priority: 2*float64(days) + ts.BrandingHoursDue(),
		})
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].priority > queue[j].priority })

	scheduled := make(map[string]bool, in.Constraints.CleaningBayCapacity)
	for _, cand := range queue {
		id := cand.trainset.ID
		if len(scheduled) < in.Constraints.CleaningBayCapacity {
			c.recommend(model.AgentRecommendation{
				TrainsetID:  id,
				Action:      model.ActionCleaning,
				Weight:      -20 - float64(cand.days),
				Rationale:   fmt.Sprintf("Scheduled for cleaning (%d days since last clean)", cand.days),
				Confidence:  0.95,
				Constraints: []string{model.TagCleaningScheduled},
			})
			scheduled[id] = true
			continue
		}
		c.finding(model.SeverityWarn, id, "Cleaning deferred: "+id, "Cleaning needed but no capacity available")
	}

	stabling := PlanStabling(in.Fleet, in.DepotBays, scheduled, in.Constraints.MaxShuntingMoves)
	c.out.Stabling = &stabling
	c.finding(model.SeverityInfo, "", "Stabling optimization completed",
		fmt.Sprintf("Optimized bay assignments for %d trainsets with %d shunting moves", len(in.Fleet), stabling.TotalMoves))
	if len(in.DepotBays) > 0 && len(stabling.Unmoved) > 0 {
		c.finding(model.SeverityWarn, "", "Stabling incomplete",
			fmt.Sprintf("%d trainsets left in place: shunting limit or bay capacity reached", len(stabling.Unmoved)))
	}

	return c.result(assessDataQuality(in))
}

// daysSince returns whole days elapsed, floored at zero. A missing date counts as zero.
func daysSince(now, then time.Time) int {
	if then.IsZero() || !now.After(then) {
		return 0
	}
	return int(now.Sub(then) / (24 * time.Hour))
}
