package agent

import (
	"fmt"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

// Ingestion checks snapshot completeness and freshness and turns operator priority messages
// into recommendations.
type Ingestion struct{}

func (Ingestion) Name() string { return NameIngestion }

func (a Ingestion) Run(in Input) model.AgentOutput {
	th := in.Thresholds.withDefaults()
	c := newCollector(a.Name(), in.Now)
	dq := assessDataQuality(in)

	if len(in.Fleet) == 0 {
		c.finding(model.SeverityCritical, "", "Fleet Empty", "No trainsets available in snapshot.")
	} else {
		c.finding(model.SeverityInfo, "", "Fleet Data Loaded",
			fmt.Sprintf("%d trainsets available with %.0f%% data completeness.", len(in.Fleet), dq.Completeness*100))
	}

	if dq.Freshness > th.StaleDataMinutes {
		c.finding(model.SeverityWarn, "", "Stale Data Warning",
			fmt.Sprintf("Data is %.0f minutes old. Consider refreshing data sources.", dq.Freshness))
	}
	if dq.Consistency < th.MinConsistency {
		c.finding(model.SeverityWarn, "", "Data Consistency Issues",
			fmt.Sprintf("Data consistency score: %.2f. Cross-reference validation needed.", dq.Consistency))
	}

	ids := in.trainsetIDs()
	for _, jc := range in.Signals.JobCards {
		if !ids[jc.TrainsetID] {
			c.finding(model.SeverityWarn, jc.TrainsetID, "Unmatched job card: "+jc.WorkOrderID,
				fmt.Sprintf("Job card %s references trainset %s which is not in the snapshot", jc.WorkOrderID, jc.TrainsetID))
		}
	}
	for _, r := range in.Signals.SensorReadings {
		if r.Status == model.SensorCritical {
			c.finding(model.SeverityWarn, r.TrainsetID, "Sensor alert: "+r.TrainsetID,
				fmt.Sprintf("%s reading %g %s at %s is critical", r.SensorType, r.Value, r.Unit, r.Location))
		}
	}

	for _, m := range in.Signals.PriorityMessages {
		if m.TrainsetID == "" || m.Action == "" {
			continue
		}
		// A message for a trainset outside the snapshot would otherwise put that trainset into the plan.
		if !ids[m.TrainsetID] {
			c.finding(model.SeverityWarn, m.TrainsetID, "Ignored operator message: "+m.TrainsetID,
				fmt.Sprintf("Message %s from %s targets a trainset not in the snapshot", m.ID, m.User))
			continue
		}
		c.recommend(model.AgentRecommendation{
			TrainsetID: m.TrainsetID,
			Action:     m.Action,
			Weight:     float64(m.Priority),
			Rationale:  fmt.Sprintf("Supervisor update via %s: %s", channelName(m.Channel), m.Details),
			Confidence: clamp01(float64(m.Priority) / 10),
		})
	}

	return c.result(dq)
}

func channelName(ch string) string {
	if ch == "" {
		return "operator channel"
	}
	return ch
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
