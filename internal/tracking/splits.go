package tracking

import (
	"time"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
)

// SplitTracker emits a Split each time cumulative distance crosses the
// interval boundary. Splits are append-only and never recomputed.
type SplitTracker struct {
	intervalM    float64
	splits       []activity.Split
	lastSplitDur time.Duration
	lastTotalM   float64
	lastDur      time.Duration
}

func NewSplitTracker(intervalM float64) *SplitTracker {
	return &SplitTracker{intervalM: intervalM}
}

// Restore seeds the tracker from a checkpoint.
func (st *SplitTracker) Restore(splits []activity.Split) {
	st.splits = append([]activity.Split{}, splits...)
	if n := len(st.splits); n > 0 {
		last := st.splits[n-1]
		st.lastSplitDur = last.CumulativeDur
		st.lastTotalM = last.CumulativeM
		st.lastDur = last.CumulativeDur
	}
}

// Update checks the new cumulative distance and returns any splits completed
// by it, already appended to the tracked list. Each split is pinned to its
// own interval boundary; when one update crosses several boundaries the
// crossing times are interpolated between the previous update and this one,
// so cumulative distances stay strictly increasing and no split gets a zero
// pace.
func (st *SplitTracker) Update(totalM float64, activeDur time.Duration) []activity.Split {
	if st.intervalM <= 0 {
		return nil
	}
	var emitted []activity.Split
	for float64(len(st.splits)+1)*st.intervalM <= totalM {
		boundary := float64(len(st.splits)+1) * st.intervalM
		dur := activeDur
		if totalM > st.lastTotalM {
			frac := (boundary - st.lastTotalM) / (totalM - st.lastTotalM)
			dur = st.lastDur + time.Duration(frac*float64(activeDur-st.lastDur))
		}
		split := activity.Split{
			Number:        len(st.splits) + 1,
			CumulativeM:   boundary,
			CumulativeDur: dur,
			Pace:          dur - st.lastSplitDur,
		}
		st.splits = append(st.splits, split)
		st.lastSplitDur = dur
		emitted = append(emitted, split)
	}
	st.lastTotalM = totalM
	st.lastDur = activeDur
	return emitted
}

// Splits returns the completed splits in order.
func (st *SplitTracker) Splits() []activity.Split {
	return st.splits
}
