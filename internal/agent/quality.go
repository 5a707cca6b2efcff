package agent

import "github.com/Rishikoli/speedline-metro-glow/internal/model"

// assessDataQuality returns the provider-supplied metrics when present, otherwise metrics
// derived from the input itself.
func assessDataQuality(in Input) model.DataQualityMetrics {
	if in.Signals.DataQuality != nil {
		return *in.Signals.DataQuality
	}

	dq := model.DataQualityMetrics{
		Consistency: 1,
		// no reference data to measure accuracy against
		Accuracy: 1,
	}

	if len(in.Fleet) > 0 {
		complete := 0
		for _, ts := range in.Fleet {
			if len(ts.SystemHealth) > 0 && !ts.ComponentWear.IsZero() {
				complete++
			}
		}
		dq.Completeness = float64(complete) / float64(len(in.Fleet))
	}

	if !in.Signals.CapturedAt.IsZero() && in.Now.After(in.Signals.CapturedAt) {
		dq.Freshness = in.Now.Sub(in.Signals.CapturedAt).Minutes()
	}

	if n := len(in.Signals.JobCards); n > 0 {
		ids := in.trainsetIDs()
		matched := 0
		for _, jc := range in.Signals.JobCards {
			if ids[jc.TrainsetID] {
				matched++
			}
		}
		dq.Consistency = float64(matched) / float64(n)
	}
	return dq
}
