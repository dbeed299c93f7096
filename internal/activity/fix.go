package activity

import "time"

// Fix is a single positioning reading. Immutable once received; optional
// readings are pointers so an absent altitude is distinguishable from sea level.
type Fix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AltitudeM *float64  `json:"altitude_m,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	AccuracyM *float64  `json:"accuracy_m,omitempty"`
	SpeedMps  *float64  `json:"speed_mps,omitempty"`
}

// FixSource tells whether a validated fix is the raw reading or an
// interpolated correction.
type FixSource string

const (
	SourceRaw       FixSource = "raw"
	SourceCorrected FixSource = "corrected"
)

// ValidatedFix is a fix that passed validation, with its quality score.
type ValidatedFix struct {
	Fix
	Confidence float64   `json:"confidence"`
	Source     FixSource `json:"source"`
}

// Outcome is the verdict for one incoming fix.
type Outcome struct {
	Accepted   bool          `json:"accepted"`
	Confidence float64       `json:"confidence"`
	Reason     string        `json:"reason,omitempty"`
	Corrected  *ValidatedFix `json:"corrected,omitempty"`
}

// Split is a completed fixed-distance interval within a running session.
// Append-only, never recomputed.
type Split struct {
	Number        int           `json:"number"`
	CumulativeM   float64       `json:"cumulative_m"`
	CumulativeDur time.Duration `json:"cumulative_dur"`
	Pace          time.Duration `json:"pace"` // duration for this split's interval
}

// SignalStrength grades GPS quality from fix accuracy and staleness.
type SignalStrength string

const (
	SignalStrong    SignalStrength = "strong"
	SignalMedium    SignalStrength = "medium"
	SignalWeak      SignalStrength = "weak"
	SignalNone      SignalStrength = "none"
	SignalSearching SignalStrength = "searching"
)

// GradeSignal maps horizontal accuracy to a signal strength. A nil accuracy
// means the receiver did not report one.
func GradeSignal(accuracyM *float64) SignalStrength {
	if accuracyM == nil {
		return SignalSearching
	}
	switch {
	case *accuracyM < 10:
		return SignalStrong
	case *accuracyM < 25:
		return SignalMedium
	case *accuracyM < 50:
		return SignalWeak
	default:
		return SignalNone
	}
}
