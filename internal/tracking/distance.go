package tracking

import (
	"time"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
	"github.com/RUNSTR-LLC/runstr-engine/internal/shared/geo"
)

// Accumulator integrates 3D distance and elevation gain over accepted fixes.
// After a GPS outage it suppresses distance for a bounded recovery window so
// the straight-line hop across the outage is not counted as travel.
type Accumulator struct {
	totalM    float64
	elevGainM float64
	last      *activity.ValidatedFix

	skipFixes int
	windowDur time.Duration

	recovering bool
	skipped    int
	recoveryAt time.Time
}

func NewAccumulator(skipFixes int, windowDur time.Duration) *Accumulator {
	return &Accumulator{skipFixes: skipFixes, windowDur: windowDur}
}

// Restore seeds the accumulator from a checkpoint.
func (a *Accumulator) Restore(totalM, elevGainM float64, last *activity.ValidatedFix) {
	a.totalM = totalM
	a.elevGainM = elevGainM
	a.last = last
}

// BeginRecovery opens the post-outage window: fixes are still recorded for
// continuity but do not add distance.
func (a *Accumulator) BeginRecovery(now time.Time) {
	a.recovering = true
	a.skipped = 0
	a.recoveryAt = now
}

// Recovering reports whether the window is still open at the given time.
func (a *Accumulator) Recovering(now time.Time) bool {
	if a.recovering && now.Sub(a.recoveryAt) > a.windowDur {
		// Timed-out windows simply stop skipping distance.
		a.recovering = false
	}
	return a.recovering
}

// Add integrates one accepted fix and returns the distance and elevation gain
// it contributed.
func (a *Accumulator) Add(fix activity.ValidatedFix) (addedM, gainM float64) {
	prev := a.last
	a.last = &fix
	if prev == nil {
		return 0, 0
	}

	if a.Recovering(fix.Timestamp) {
		a.skipped++
		if a.skipped >= a.skipFixes {
			a.recovering = false
		}
		return 0, 0
	}

	if prev.AltitudeM != nil && fix.AltitudeM != nil {
		addedM = geo.Distance3DM(prev.Lat, prev.Lng, *prev.AltitudeM, fix.Lat, fix.Lng, *fix.AltitudeM)
		if climb := *fix.AltitudeM - *prev.AltitudeM; climb > 0 {
			gainM = climb
		}
	} else {
		addedM = geo.HaversineM(prev.Lat, prev.Lng, fix.Lat, fix.Lng)
	}

	a.totalM += addedM
	a.elevGainM += gainM
	return addedM, gainM
}

func (a *Accumulator) TotalM() float64         { return a.totalM }
func (a *Accumulator) ElevationGainM() float64 { return a.elevGainM }
