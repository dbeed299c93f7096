package tracking

import (
	"time"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
)

// Session is one exercise session. Owned exclusively by the orchestrator
// while live; Stop returns an immutable copy to the caller.
type Session struct {
	ID           string        `json:"id"`
	ActivityType activity.Type `json:"activity_type"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      *time.Time    `json:"end_time,omitempty"`

	TotalDistanceM      float64       `json:"total_distance_m"`
	TotalElevationGainM float64       `json:"total_elevation_gain_m"`
	ActiveDuration      time.Duration `json:"active_duration"`
	PausedDuration      time.Duration `json:"paused_duration"`

	GPSSignal  activity.SignalStrength `json:"gps_signal"`
	State      State                   `json:"state"`
	Splits     []activity.Split        `json:"splits,omitempty"`
	Statistics Stats                   `json:"statistics"`
}

// Stats are the derived running statistics of a session.
type Stats struct {
	AvgSpeedMps    float64 `json:"avg_speed_mps"`
	MaxSpeedMps    float64 `json:"max_speed_mps"`
	AvgAccuracyM   float64 `json:"avg_accuracy_m"`
	GPSOutageCount int     `json:"gps_outage_count"`
	AcceptedFixes  int     `json:"accepted_fixes"`
	RejectedFixes  int     `json:"rejected_fixes"`
}
