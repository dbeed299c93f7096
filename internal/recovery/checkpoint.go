package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
	"github.com/redis/go-redis/v9"
)

// ErrNoCheckpoint is returned when no checkpoint exists for a session.
var ErrNoCheckpoint = errors.New("no checkpoint for session")

// Checkpoint is a durable snapshot of a live session, sufficient to resume
// after a crash. Superseded on every save, cleared on clean stop.
type Checkpoint struct {
	SessionID    string        `json:"session_id"`
	ActivityType activity.Type `json:"activity_type"`
	StartTime    time.Time     `json:"start_time"`
	SavedAt      time.Time     `json:"saved_at"`

	TotalDistanceM      float64       `json:"total_distance_m"`
	TotalElevationGainM float64       `json:"total_elevation_gain_m"`
	ActiveDuration      time.Duration `json:"active_duration"`
	PausedDuration      time.Duration `json:"paused_duration"`

	Splits  []activity.Split       `json:"splits,omitempty"`
	LastFix *activity.ValidatedFix `json:"last_fix,omitempty"`

	MaxSpeedMps   float64 `json:"max_speed_mps"`
	SpeedSumM     float64 `json:"speed_sum_m"`
	AccuracySumM  float64 `json:"accuracy_sum_m"`
	AcceptedFixes int     `json:"accepted_fixes"`
	GPSOutages    int     `json:"gps_outages"`
}

const (
	checkpointKeyPrefix = "checkpoint:"
	checkpointIndexKey  = "checkpoints"
)

// Service persists checkpoints in redis. A miss is ErrNoCheckpoint; every
// other failure is an infrastructure error the caller logs and survives.
type Service struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewService(client *redis.Client, ttl time.Duration) *Service {
	return &Service{redis: client, ttl: ttl}
}

func (s *Service) Save(ctx context.Context, cp Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, checkpointKeyPrefix+cp.SessionID, payload, s.ttl).Err(); err != nil {
		return err
	}
	return s.redis.SAdd(ctx, checkpointIndexKey, cp.SessionID).Err()
}

func (s *Service) Load(ctx context.Context, sessionID string) (Checkpoint, error) {
	payload, err := s.redis.Get(ctx, checkpointKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// Clear removes a session's checkpoint. Clearing a missing checkpoint is not
// an error; stop must stay idempotent.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, checkpointKeyPrefix+sessionID).Err(); err != nil {
		return err
	}
	return s.redis.SRem(ctx, checkpointIndexKey, sessionID).Err()
}

// List returns all recoverable checkpoints, skipping index entries whose
// blobs have expired.
func (s *Service) List(ctx context.Context) ([]Checkpoint, error) {
	ids, err := s.redis.SMembers(ctx, checkpointIndexKey).Result()
	if err != nil {
		return nil, err
	}
	var out []Checkpoint
	for _, id := range ids {
		cp, err := s.Load(ctx, id)
		if errors.Is(err, ErrNoCheckpoint) {
			_ = s.redis.SRem(ctx, checkpointIndexKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}
