package harness

import "time"

// Timing summarizes case durations for a run. Skipped cases are
// excluded since they never touch the engine.
type Timing struct {
	Cases int           `json:"cases"`
	Min   time.Duration `json:"min"`
	Mean  time.Duration `json:"mean"`
	Max   time.Duration `json:"max"`
	Total time.Duration `json:"total"`
}

// Timings computes duration statistics from a summary.
func Timings(sum *Summary) Timing {
	var t Timing
	for _, o := range sum.Outcomes {
		if o.Status == StatusSkip {
			continue
		}
		if t.Cases == 0 || o.Duration < t.Min {
			t.Min = o.Duration
		}
		if o.Duration > t.Max {
			t.Max = o.Duration
		}
		t.Total += o.Duration
		t.Cases++
	}
	if t.Cases > 0 {
		t.Mean = t.Total / time.Duration(t.Cases)
	}
	return t
}
