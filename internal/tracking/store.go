package tracking

import (
	"context"
	"log"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
	"github.com/RUNSTR-LLC/runstr-engine/internal/db"
)

// Store is the append-only record of a session's accepted fixes plus its
// derived statistics. Fixes are kept in memory for the live session and
// mirrored to postgres when a querier is configured; a persistence failure
// only degrades durability, never the session.
type Store struct {
	db        db.Querier
	sessionID string

	fixes []activity.ValidatedFix

	speedSum   float64
	speedCount int
	maxSpeed   float64
	accSum     float64
	accCount   int
	outages    int
	rejected   int
}

func NewStore(q db.Querier, sessionID string) *Store {
	return &Store{db: q, sessionID: sessionID}
}

// Restore seeds statistics from a checkpoint.
func (s *Store) Restore(maxSpeed, speedSum, accSum float64, accepted, outages int) {
	s.maxSpeed = maxSpeed
	s.speedSum = speedSum
	s.speedCount = accepted
	s.accSum = accSum
	s.accCount = accepted
	s.outages = outages
}

// AddPoint appends one accepted fix.
func (s *Store) AddPoint(ctx context.Context, fix activity.ValidatedFix) {
	s.record(fix)
	s.persist(ctx, fix)
}

// AddPoints appends fixes buffered while backgrounded. Buffered fixes are
// older than any live fix, so callers flush them before resuming live
// delivery; order is preserved here.
func (s *Store) AddPoints(ctx context.Context, fixes []activity.ValidatedFix) {
	for _, fix := range fixes {
		s.record(fix)
		s.persist(ctx, fix)
	}
}

// RecordOutage counts one GPS outage for the statistics.
func (s *Store) RecordOutage() { s.outages++ }

// RecordRejection counts one rejected fix for diagnostics.
func (s *Store) RecordRejection() { s.rejected++ }

// Points returns the accepted fixes in arrival order.
func (s *Store) Points() []activity.ValidatedFix { return s.fixes }

// Statistics returns the derived running statistics.
func (s *Store) Statistics() Stats {
	stats := Stats{
		MaxSpeedMps:    s.maxSpeed,
		GPSOutageCount: s.outages,
		AcceptedFixes:  s.accCount,
		RejectedFixes:  s.rejected,
	}
	if s.speedCount > 0 {
		stats.AvgSpeedMps = s.speedSum / float64(s.speedCount)
	}
	if s.accCount > 0 {
		stats.AvgAccuracyM = s.accSum / float64(s.accCount)
	}
	return stats
}

// Clear discards all in-memory session data.
func (s *Store) Clear() {
	s.fixes = nil
	s.speedSum, s.speedCount = 0, 0
	s.maxSpeed = 0
	s.accSum, s.accCount = 0, 0
	s.outages = 0
	s.rejected = 0
}

func (s *Store) record(fix activity.ValidatedFix) {
	s.fixes = append(s.fixes, fix)
	if fix.SpeedMps != nil {
		s.speedSum += *fix.SpeedMps
		s.speedCount++
		if *fix.SpeedMps > s.maxSpeed {
			s.maxSpeed = *fix.SpeedMps
		}
	}
	if fix.AccuracyM != nil {
		s.accSum += *fix.AccuracyM
	}
	s.accCount++
}

func (s *Store) persist(ctx context.Context, fix activity.ValidatedFix) {
	if s.db == nil {
		return
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO track_points (session_id, lat, lng, altitude_m, accuracy_m, speed_mps, confidence, source, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, s.sessionID, fix.Lat, fix.Lng, fix.AltitudeM, fix.AccuracyM, fix.SpeedMps, fix.Confidence, string(fix.Source), fix.Timestamp)
	if err != nil {
		log.Printf("tracking: persist point for %s: %v", s.sessionID, err)
	}
}
