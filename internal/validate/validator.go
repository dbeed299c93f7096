package validate

import (
	"fmt"
	"time"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
	"github.com/RUNSTR-LLC/runstr-engine/internal/shared/geo"
)

// Rejection reasons surfaced on Outcome.Reason for diagnostics.
const (
	ReasonPoorAccuracy    = "Poor GPS accuracy"
	ReasonTooClose        = "Points too close in time"
	ReasonTeleport        = "Teleportation detected"
	ReasonImpossibleSpeed = "Impossible speed"
	ReasonImpossibleClimb = "Impossible altitude change"
	ReasonTransport       = "Transport detected after pause"
)

const (
	gapConfidence       = 0.5
	correctedConfidence = 0.7
	minConfidence       = 0.1
	speedHistorySize    = 5

	transportAllowanceM     = 200.0
	transportLongAllowanceM = 500.0
	transportLongPause      = 10 * time.Minute
)

// RelaxationCurve controls how the accuracy gate loosens under sustained
// signal degradation. The multipliers are tuned heuristics, not law.
type RelaxationCurve struct {
	AfterRejects   int
	RejectsFactor  float64
	After30sFactor float64
	After60sFactor float64
}

func DefaultRelaxation() RelaxationCurve {
	return RelaxationCurve{
		AfterRejects:   5,
		RejectsFactor:  1.3,
		After30sFactor: 1.5,
		After60sFactor: 2.0,
	}
}

// Validator filters a session's raw fixes against the physical limits of its
// activity type. State is per-session and discarded at session end.
type Validator struct {
	cfg   activity.ValidationConfig
	curve RelaxationCurve

	last           *activity.ValidatedFix
	lastAcceptedAt time.Time
	firstSeenAt    time.Time
	rejects        int
	speeds         []float64

	postPause bool
	pauseDur  time.Duration
}

func New(cfg activity.ValidationConfig, curve RelaxationCurve) *Validator {
	return &Validator{cfg: cfg, curve: curve}
}

// NotifyResumed arms the transport check for the next incoming fix.
func (v *Validator) NotifyResumed(pausedFor time.Duration) {
	v.postPause = true
	v.pauseDur = pausedFor
}

// Reset discards all per-session state.
func (v *Validator) Reset() {
	v.last = nil
	v.lastAcceptedAt = time.Time{}
	v.firstSeenAt = time.Time{}
	v.rejects = 0
	v.speeds = nil
	v.postPause = false
	v.pauseDur = 0
}

// Seed primes the validator with a fix accepted before a crash, so the
// post-recovery transport check has a reference point.
func (v *Validator) Seed(last activity.ValidatedFix) {
	v.last = &last
	v.lastAcceptedAt = last.Timestamp
	v.firstSeenAt = last.Timestamp
}

// LastAccepted returns the most recently accepted fix, or nil.
func (v *Validator) LastAccepted() *activity.ValidatedFix {
	return v.last
}

// Validate runs one fix through the filter chain and returns the verdict.
func (v *Validator) Validate(fix activity.Fix) activity.Outcome {
	if v.firstSeenAt.IsZero() {
		v.firstSeenAt = fix.Timestamp
	}

	if fix.AccuracyM != nil && *fix.AccuracyM > v.accuracyThreshold(fix.Timestamp) {
		return v.reject(ReasonPoorAccuracy)
	}

	if v.last == nil {
		return v.accept(fix, activity.SourceRaw, v.score(fix, 0))
	}

	dist := geo.HaversineM(v.last.Lat, v.last.Lng, fix.Lat, fix.Lng)

	if v.postPause {
		v.postPause = false
		allowance := transportAllowanceM
		if v.pauseDur > transportLongPause {
			allowance = transportLongAllowanceM
		}
		if dist > allowance {
			return v.reject(ReasonTransport)
		}
	}

	dt := fix.Timestamp.Sub(v.last.Timestamp)
	if dt < v.cfg.MinTimeBetweenPoints {
		return v.reject(ReasonTooClose)
	}
	if dt > v.cfg.MaxTimeBetweenPoints {
		// Large gaps are common (backgrounding); accept with reduced
		// confidence and restart the velocity history.
		v.speeds = nil
		return v.accept(fix, activity.SourceRaw, gapConfidence)
	}

	if dist > v.cfg.MaxJumpDistanceM {
		return v.reject(fmt.Sprintf("%s: %.0fm jump", ReasonTeleport, dist))
	}
	speed := dist / dt.Seconds()
	if speed > v.cfg.MaxSpeedMps {
		return v.reject(fmt.Sprintf("%s: %.1f m/s", ReasonImpossibleSpeed, speed))
	}

	if corrected, ok := v.smoothAcceleration(fix, dist, speed, dt); ok {
		return v.acceptCorrected(corrected)
	}

	if fix.AltitudeM != nil && v.last.AltitudeM != nil {
		climb := *fix.AltitudeM - *v.last.AltitudeM
		if climb < 0 {
			climb = -climb
		}
		if climb/dt.Seconds() > v.cfg.MaxVerticalSpeedMps {
			return v.reject(ReasonImpossibleClimb)
		}
	}

	return v.accept(fix, activity.SourceRaw, v.score(fix, speed))
}

// accuracyThreshold relaxes the per-activity base so urban canyons degrade
// tracking instead of blocking it.
func (v *Validator) accuracyThreshold(now time.Time) float64 {
	since := v.lastAcceptedAt
	if since.IsZero() {
		since = v.firstSeenAt
	}
	factor := 1.0
	if elapsed := now.Sub(since); elapsed > 60*time.Second {
		factor = v.curve.After60sFactor
	} else if elapsed > 30*time.Second {
		factor = v.curve.After30sFactor
	}
	if v.rejects >= v.curve.AfterRejects && v.curve.RejectsFactor > factor {
		factor = v.curve.RejectsFactor
	}
	return v.cfg.BaseAccuracyM * factor
}

// smoothAcceleration interpolates a corrected fix when the implied
// acceleration exceeds the configured cap. Returns ok=false when the raw fix
// should continue through the chain.
func (v *Validator) smoothAcceleration(fix activity.Fix, dist, speed float64, dt time.Duration) (activity.ValidatedFix, bool) {
	if len(v.speeds) == 0 || dist == 0 {
		return activity.ValidatedFix{}, false
	}
	prev := v.speeds[len(v.speeds)-1]
	accel := (speed - prev) / dt.Seconds()
	if accel < 0 {
		accel = -accel
	}
	if accel <= v.cfg.MaxAccelerationMps2 {
		return activity.ValidatedFix{}, false
	}

	smoothed := v.smoothedSpeed(speed)
	fraction := smoothed * dt.Seconds() / dist
	if fraction > 1 {
		fraction = 1
	}

	bearing := geo.Bearing(v.last.Lat, v.last.Lng, fix.Lat, fix.Lng)
	lat, lng := geo.PointAtDistance(v.last.Lat, v.last.Lng, bearing, dist*fraction)

	corrected := fix
	corrected.Lat = lat
	corrected.Lng = lng
	corrected.SpeedMps = &smoothed
	return activity.ValidatedFix{
		Fix:        corrected,
		Confidence: correctedConfidence,
		Source:     activity.SourceCorrected,
	}, true
}

// smoothedSpeed is a weighted moving average over the velocity history with
// the most recent samples weighted highest.
func (v *Validator) smoothedSpeed(current float64) float64 {
	samples := append(append([]float64{}, v.speeds...), current)
	var sum, weights float64
	for i, s := range samples {
		w := float64(i + 1)
		sum += s * w
		weights += w
	}
	return sum / weights
}

// score compounds quality discounts onto a base confidence of 1.0.
func (v *Validator) score(fix activity.Fix, speed float64) float64 {
	conf := 1.0
	if fix.AccuracyM != nil {
		switch acc := *fix.AccuracyM; {
		case acc > 20:
			conf *= 0.75
		case acc > 15:
			conf *= 0.85
		case acc > 10:
			conf *= 0.95
		}
	}
	if v.cfg.MaxSpeedMps > 0 {
		switch ratio := speed / v.cfg.MaxSpeedMps; {
		case ratio > 0.9:
			conf *= 0.8
		case ratio > 0.8:
			conf *= 0.9
		}
	}
	if fix.AltitudeM == nil {
		conf *= 0.95
	}
	if conf < minConfidence {
		conf = minConfidence
	}
	return conf
}

func (v *Validator) reject(reason string) activity.Outcome {
	v.rejects++
	return activity.Outcome{Accepted: false, Reason: reason}
}

func (v *Validator) accept(fix activity.Fix, source activity.FixSource, conf float64) activity.Outcome {
	validated := activity.ValidatedFix{Fix: fix, Confidence: conf, Source: source}
	return v.record(validated)
}

func (v *Validator) acceptCorrected(validated activity.ValidatedFix) activity.Outcome {
	out := v.record(validated)
	out.Corrected = &validated
	return out
}

func (v *Validator) record(validated activity.ValidatedFix) activity.Outcome {
	if v.last != nil {
		// Only in-window samples feed the velocity history; the first fix
		// and across-gap hops carry no usable speed.
		if dt := validated.Timestamp.Sub(v.last.Timestamp); dt > 0 && dt <= v.cfg.MaxTimeBetweenPoints {
			speed := geo.HaversineM(v.last.Lat, v.last.Lng, validated.Lat, validated.Lng) / dt.Seconds()
			v.speeds = append(v.speeds, speed)
		}
	}
	if len(v.speeds) > speedHistorySize {
		v.speeds = v.speeds[len(v.speeds)-speedHistorySize:]
	}
	v.last = &validated
	v.lastAcceptedAt = validated.Timestamp
	v.rejects = 0
	return activity.Outcome{Accepted: true, Confidence: validated.Confidence}
}
