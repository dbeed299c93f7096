package activity

import "time"

// Type selects the physical-motion limits and split cadence for a session.
type Type string

const (
	Running Type = "running"
	Walking Type = "walking"
	Cycling Type = "cycling"
)

func (t Type) Valid() bool {
	switch t {
	case Running, Walking, Cycling:
		return true
	}
	return false
}

// HasSplits reports whether fixed-distance splits are tracked for this type.
func (t Type) HasSplits() bool { return t == Running }

// ValidationConfig bounds physically plausible motion for one activity type.
type ValidationConfig struct {
	MaxSpeedMps          float64
	MaxAccelerationMps2  float64
	MaxJumpDistanceM     float64
	MinTimeBetweenPoints time.Duration
	MaxTimeBetweenPoints time.Duration
	BaseAccuracyM        float64
	MaxVerticalSpeedMps  float64
}

// ConfigFor returns the motion limits for the given activity type.
func ConfigFor(t Type) ValidationConfig {
	switch t {
	case Walking:
		return ValidationConfig{
			MaxSpeedMps:          4.0,
			MaxAccelerationMps2:  2.0,
			MaxJumpDistanceM:     50,
			MinTimeBetweenPoints: 500 * time.Millisecond,
			MaxTimeBetweenPoints: 30 * time.Second,
			BaseAccuracyM:        50,
			MaxVerticalSpeedMps:  5,
		}
	case Cycling:
		return ValidationConfig{
			MaxSpeedMps:          25.0,
			MaxAccelerationMps2:  3.5,
			MaxJumpDistanceM:     200,
			MinTimeBetweenPoints: 500 * time.Millisecond,
			MaxTimeBetweenPoints: 30 * time.Second,
			BaseAccuracyM:        75,
			MaxVerticalSpeedMps:  10,
		}
	default: // running
		return ValidationConfig{
			MaxSpeedMps:          12.0,
			MaxAccelerationMps2:  4.0,
			MaxJumpDistanceM:     100,
			MinTimeBetweenPoints: 500 * time.Millisecond,
			MaxTimeBetweenPoints: 30 * time.Second,
			BaseAccuracyM:        50,
			MaxVerticalSpeedMps:  5,
		}
	}
}
