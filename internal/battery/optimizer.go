package battery

import (
	"fmt"
	"sync"
	"time"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
)

// Mode is the power/accuracy trade-off selected from battery state.
type Mode string

const (
	HighAccuracy Mode = "high_accuracy"
	Balanced     Mode = "balanced"
	BatterySaver Mode = "battery_saver"
)

// AccuracyTier is the positioning accuracy requested from the location source.
type AccuracyTier string

const (
	TierHigh   AccuracyTier = "high"
	TierMedium AccuracyTier = "medium"
	TierLow    AccuracyTier = "low"
)

// SamplingProfile configures the positioning subscription. Derived, never
// persisted.
type SamplingProfile struct {
	Tier         AccuracyTier  `json:"tier"`
	MinInterval  time.Duration `json:"min_interval"`
	MinDistanceM float64       `json:"min_distance_m"`
}

// ModeChange is pushed to subscribers when the optimizer switches modes.
type ModeChange struct {
	Mode    Mode            `json:"mode"`
	Profile SamplingProfile `json:"profile"`
	Level   int             `json:"level"`
}

const hardStopLevel = 5

// Optimizer maps battery level and charging state to a sampling profile and
// notifies subscribers when the mode changes.
type Optimizer struct {
	mu       sync.Mutex
	mode     Mode
	level    int
	charging bool
	actType  activity.Type
	subs     map[int]func(ModeChange)
	nextSub  int
}

func NewOptimizer(actType activity.Type) *Optimizer {
	return &Optimizer{
		mode:    HighAccuracy,
		level:   100,
		actType: actType,
		subs:    map[int]func(ModeChange){},
	}
}

// ModeFor maps battery state to a mode. Charging always forces high accuracy.
func ModeFor(level int, charging bool) Mode {
	switch {
	case charging || level > 50:
		return HighAccuracy
	case level >= 20:
		return Balanced
	default:
		return BatterySaver
	}
}

// ProfileFor returns the sampling profile for a mode, adjusted per activity
// type: walking tolerates sparser sampling, cycling needs denser sampling for
// speed fidelity.
func ProfileFor(mode Mode, actType activity.Type) SamplingProfile {
	var p SamplingProfile
	switch mode {
	case BatterySaver:
		p = SamplingProfile{Tier: TierLow, MinInterval: 5 * time.Second, MinDistanceM: 20}
	case Balanced:
		p = SamplingProfile{Tier: TierMedium, MinInterval: 3 * time.Second, MinDistanceM: 10}
	default:
		p = SamplingProfile{Tier: TierHigh, MinInterval: time.Second, MinDistanceM: 5}
	}
	switch actType {
	case activity.Walking:
		p.MinInterval *= 2
		p.MinDistanceM *= 1.5
	case activity.Cycling:
		p.MinInterval /= 2
	}
	return p
}

// Update ingests a battery reading. Subscribers are notified only when the
// mode actually changes.
func (o *Optimizer) Update(level int, charging bool) ModeChange {
	o.mu.Lock()
	o.level = level
	o.charging = charging
	mode := ModeFor(level, charging)
	changed := mode != o.mode
	o.mode = mode
	change := ModeChange{Mode: mode, Profile: ProfileFor(mode, o.actType), Level: level}
	var subs []func(ModeChange)
	if changed {
		for _, fn := range o.subs {
			subs = append(subs, fn)
		}
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
	return change
}

// Current returns the active mode and profile.
func (o *Optimizer) Current() ModeChange {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ModeChange{Mode: o.mode, Profile: ProfileFor(o.mode, o.actType), Level: o.level}
}

// ShouldStop reports the hard-stop condition: battery critically low and
// discharging.
func (o *Optimizer) ShouldStop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.level <= hardStopLevel && !o.charging
}

// Warning returns a user-facing warning string for the current level, or ""
// when no warning applies.
func Warning(level int, charging bool) string {
	if charging {
		return ""
	}
	switch {
	case level <= 5:
		return fmt.Sprintf("Battery critical (%d%%): tracking will stop to preserve your workout", level)
	case level <= 10:
		return fmt.Sprintf("Battery very low (%d%%): switching to battery saver", level)
	case level <= 20:
		return fmt.Sprintf("Battery low (%d%%): reducing GPS sampling rate", level)
	}
	return ""
}

// Subscribe registers a mode-change listener and returns its unsubscribe
// function.
func (o *Optimizer) Subscribe(fn func(ModeChange)) func() {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}
