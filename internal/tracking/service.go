package tracking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
	"github.com/RUNSTR-LLC/runstr-engine/internal/battery"
	"github.com/RUNSTR-LLC/runstr-engine/internal/config"
	"github.com/RUNSTR-LLC/runstr-engine/internal/db"
	"github.com/RUNSTR-LLC/runstr-engine/internal/recovery"
	"github.com/RUNSTR-LLC/runstr-engine/internal/stream"
	"github.com/RUNSTR-LLC/runstr-engine/internal/validate"

	"github.com/google/uuid"
)

var (
	ErrSessionActive        = errors.New("a session is already active")
	ErrPermissionDenied     = errors.New("location permission denied")
	ErrInitializationFailed = errors.New("location source initialization failed")
	ErrInvalidActivity      = errors.New("unknown activity type")
	ErrRecoveryUnavailable  = errors.New("checkpoint recovery not configured")
)

// Service orchestrates one tracking session at a time: it owns the session
// value, the validator, the accumulator and the staleness watchdog, and is
// the only component talking to the location source and the hub. All session
// mutation is serialized through its mutex.
type Service struct {
	cfg         config.Config
	db          db.Querier
	hub         *stream.Hub
	checkpoints *recovery.Service
	source      LocationSource

	now func() time.Time

	mu           sync.Mutex
	machine      *Machine
	session      *Session
	validator    *validate.Validator
	accumulator  *Accumulator
	splitTracker *SplitTracker
	store        *Store
	optimizer    *battery.Optimizer
	unsubBattery func()

	activeSince  time.Time
	pausedAt     time.Time
	lastFixAt    time.Time
	fixesSinceCP int
	lastCPAt     time.Time

	watchdogStop chan struct{}
	watchdogDone chan struct{}
}

// NewService wires the orchestrator. The querier, hub and checkpoint service
// may be nil; tracking then runs purely in memory.
func NewService(cfg config.Config, q db.Querier, hub *stream.Hub, checkpoints *recovery.Service, source LocationSource) *Service {
	return &Service{
		cfg:         withDefaults(cfg),
		db:          q,
		hub:         hub,
		checkpoints: checkpoints,
		source:      source,
		now:         time.Now,
		machine:     NewMachine(),
	}
}

func withDefaults(cfg config.Config) config.Config {
	if cfg.SplitIntervalM <= 0 {
		cfg.SplitIntervalM = 1000
	}
	if cfg.CheckpointEveryFixes <= 0 {
		cfg.CheckpointEveryFixes = 10
	}
	if cfg.CheckpointIntervalSec <= 0 {
		cfg.CheckpointIntervalSec = 30
	}
	if cfg.RecoverySkipFixes <= 0 {
		cfg.RecoverySkipFixes = 3
	}
	if cfg.RecoveryWindowSec <= 0 {
		cfg.RecoveryWindowSec = 30
	}
	if cfg.GPSStalePollSec <= 0 {
		cfg.GPSStalePollSec = 5
	}
	if cfg.GPSLostAfterSec <= 0 {
		cfg.GPSLostAfterSec = 10
	}
	return cfg
}

func (s *Service) curve() validate.RelaxationCurve {
	c := validate.DefaultRelaxation()
	if s.cfg.AccuracyRelaxAfterRejects > 0 {
		c.AfterRejects = s.cfg.AccuracyRelaxAfterRejects
	}
	if s.cfg.AccuracyRelaxRejectsFactor > 0 {
		c.RejectsFactor = s.cfg.AccuracyRelaxRejectsFactor
	}
	if s.cfg.AccuracyRelaxAfter30sFactor > 0 {
		c.After30sFactor = s.cfg.AccuracyRelaxAfter30sFactor
	}
	if s.cfg.AccuracyRelaxAfter60sFactor > 0 {
		c.After60sFactor = s.cfg.AccuracyRelaxAfter60sFactor
	}
	return c
}

// Start begins a new session. It fails with ErrSessionActive when one is
// live, ErrPermissionDenied when the location permission is refused, and
// ErrInitializationFailed when the source cannot start.
func (s *Service) Start(ctx context.Context, actType activity.Type) (*Session, error) {
	if !actType.Valid() {
		return nil, ErrInvalidActivity
	}

	s.mu.Lock()
	if !s.machine.CanStart() {
		s.mu.Unlock()
		return nil, ErrSessionActive
	}
	s.machine.Apply(EventStartTracking)

	granted, err := s.source.RequestPermission(ctx)
	if err != nil || !granted {
		s.machine.Apply(EventPermissionsDenied)
		s.mu.Unlock()
		return nil, ErrPermissionDenied
	}
	s.machine.Apply(EventPermissionsGranted)

	now := s.now()
	sess := &Session{
		ID:           uuid.NewString(),
		ActivityType: actType,
		StartTime:    now,
		GPSSignal:    activity.SignalSearching,
	}
	if err := s.initSessionLocked(ctx, sess, nil); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.persistSessionStart(ctx, sess)
	snapshot := s.snapshotLocked(now)
	s.mu.Unlock()

	s.publishState(snapshot.ID)
	return snapshot, nil
}

// Recover resumes a checkpointed session instead of starting fresh. Only
// valid from idle.
func (s *Service) Recover(ctx context.Context, sessionID string) (*Session, error) {
	if s.checkpoints == nil {
		return nil, ErrRecoveryUnavailable
	}

	s.mu.Lock()
	if !s.machine.CanStart() {
		s.mu.Unlock()
		return nil, ErrSessionActive
	}
	cp, err := s.checkpoints.Load(ctx, sessionID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.machine.Apply(EventStartTracking)

	granted, err := s.source.RequestPermission(ctx)
	if err != nil || !granted {
		s.machine.Apply(EventPermissionsDenied)
		s.mu.Unlock()
		return nil, ErrPermissionDenied
	}
	s.machine.Apply(EventPermissionsGranted)

	now := s.now()
	sess := &Session{
		ID:                  cp.SessionID,
		ActivityType:        cp.ActivityType,
		StartTime:           cp.StartTime,
		TotalDistanceM:      cp.TotalDistanceM,
		TotalElevationGainM: cp.TotalElevationGainM,
		ActiveDuration:      cp.ActiveDuration,
		PausedDuration:      cp.PausedDuration,
		Splits:              cp.Splits,
		GPSSignal:           activity.SignalSearching,
	}
	if err := s.initSessionLocked(ctx, sess, &cp); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	snapshot := s.snapshotLocked(now)
	s.mu.Unlock()

	s.publishState(snapshot.ID)
	return snapshot, nil
}

// initSessionLocked builds per-session components and starts the source and
// watchdog. The checkpoint is nil for fresh sessions.
func (s *Service) initSessionLocked(ctx context.Context, sess *Session, cp *recovery.Checkpoint) error {
	now := s.now()

	s.validator = validate.New(activity.ConfigFor(sess.ActivityType), s.curve())
	s.accumulator = NewAccumulator(s.cfg.RecoverySkipFixes, time.Duration(s.cfg.RecoveryWindowSec)*time.Second)

	interval := 0.0
	if sess.ActivityType.HasSplits() {
		interval = s.cfg.SplitIntervalM
	}
	s.splitTracker = NewSplitTracker(interval)
	s.store = NewStore(s.db, sess.ID)
	s.optimizer = battery.NewOptimizer(sess.ActivityType)

	if cp != nil {
		s.accumulator.Restore(cp.TotalDistanceM, cp.TotalElevationGainM, cp.LastFix)
		s.splitTracker.Restore(cp.Splits)
		s.store.Restore(cp.MaxSpeedMps, cp.SpeedSumM, cp.AccuracySumM, cp.AcceptedFixes, cp.GPSOutages)
		if cp.LastFix != nil {
			s.validator.Seed(*cp.LastFix)
			s.validator.NotifyResumed(now.Sub(cp.SavedAt))
		}
	}

	profile := battery.ProfileFor(battery.HighAccuracy, sess.ActivityType)
	if err := s.source.Start(profile, s.handleFix); err != nil {
		log.Printf("tracking: source start: %v", err)
		s.machine.Apply(EventInitializationFailed)
		s.teardownLocked()
		return ErrInitializationFailed
	}
	s.machine.Apply(EventInitializationComplete)

	s.session = sess
	s.activeSince = now
	s.lastFixAt = now
	s.lastCPAt = now
	s.fixesSinceCP = 0

	sessionID := sess.ID
	s.unsubBattery = s.optimizer.Subscribe(func(change battery.ModeChange) {
		if err := s.source.Reconfigure(change.Profile); err != nil {
			log.Printf("tracking: reconfigure source: %v", err)
		}
		if s.hub != nil {
			s.hub.Publish(sessionID, stream.EventBatteryMode, change)
		}
	})
	s.startWatchdogLocked()
	return nil
}

// Pause suspends accumulation. A no-op outside the tracking state.
func (s *Service) Pause(ctx context.Context) bool {
	s.mu.Lock()
	if !s.machine.CanPause() {
		s.mu.Unlock()
		return false
	}
	now := s.now()
	s.session.ActiveDuration += now.Sub(s.activeSince)
	s.pausedAt = now
	s.machine.Apply(EventPause)
	s.saveCheckpointLocked(ctx)
	id := s.session.ID
	s.mu.Unlock()

	s.publishState(id)
	return true
}

// Resume continues a paused session and arms the post-pause transport check.
func (s *Service) Resume(ctx context.Context) bool {
	s.mu.Lock()
	if !s.machine.CanResume() {
		s.mu.Unlock()
		return false
	}
	now := s.now()
	pausedFor := now.Sub(s.pausedAt)
	s.session.PausedDuration += pausedFor
	s.validator.NotifyResumed(pausedFor)
	s.activeSince = now
	s.lastFixAt = now
	s.machine.Apply(EventResume)
	s.saveCheckpointLocked(ctx)
	id := s.session.ID
	s.mu.Unlock()

	s.publishState(id)
	return true
}

// Stop finalizes and returns the session, or nil when none is active. It is
// idempotent: the second call returns nil. All timers and the source
// subscription are released before the result is returned.
func (s *Service) Stop(ctx context.Context) *Session {
	s.mu.Lock()
	if !s.machine.CanStop() || s.session == nil {
		s.mu.Unlock()
		return nil
	}
	now := s.now()
	switch s.machine.Primary() {
	case StateTracking:
		s.session.ActiveDuration += now.Sub(s.activeSince)
	case StatePaused:
		s.session.PausedDuration += now.Sub(s.pausedAt)
	}
	s.machine.Apply(EventStop)

	s.session.EndTime = &now
	s.session.Statistics = s.store.Statistics()
	s.session.Splits = s.splitTracker.Splits()
	final := s.snapshotLocked(now)
	final.State = StateStopped

	s.persistSessionEnd(ctx, final)
	if s.checkpoints != nil {
		if err := s.checkpoints.Clear(ctx, final.ID); err != nil {
			log.Printf("tracking: clear checkpoint: %v", err)
		}
	}
	s.teardownLocked()
	s.machine.Apply(EventReset)
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Publish(final.ID, stream.EventState, map[string]string{"state": string(StateStopped)})
	}
	return final
}

// teardownLocked releases every per-session resource. No timer or
// subscription may outlive the session.
func (s *Service) teardownLocked() {
	s.stopWatchdogLocked()
	if s.source != nil {
		if err := s.source.Stop(); err != nil {
			log.Printf("tracking: source stop: %v", err)
		}
	}
	if s.unsubBattery != nil {
		s.unsubBattery()
		s.unsubBattery = nil
	}
	if s.store != nil {
		s.store.Clear()
	}
	if s.validator != nil {
		s.validator.Reset()
	}
	s.session = nil
	s.validator = nil
	s.accumulator = nil
	s.splitTracker = nil
	s.store = nil
	s.optimizer = nil
}

// Current returns a read-only snapshot of the live session, or nil.
func (s *Service) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return s.snapshotLocked(s.now())
}

// TrackingState returns the effective lifecycle state.
func (s *Service) TrackingState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// GPSSignal returns the current signal strength grade.
func (s *Service) GPSSignal() activity.SignalStrength {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return activity.SignalNone
	}
	return s.session.GPSSignal
}

// Recoverable lists checkpoints that can be offered to the caller after a
// cold start.
func (s *Service) Recoverable(ctx context.Context) ([]recovery.Checkpoint, error) {
	if s.checkpoints == nil {
		return nil, nil
	}
	return s.checkpoints.List(ctx)
}

// UpdateBattery ingests a battery reading, republishing warnings and
// reconfiguring the sampling profile on mode changes. At a critically low
// discharging level the session is stopped to preserve the workout.
func (s *Service) UpdateBattery(ctx context.Context, level int, charging bool) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	id := s.session.ID
	s.optimizer.Update(level, charging)
	if w := battery.Warning(level, charging); w != "" && s.hub != nil {
		s.hub.Publish(id, stream.EventWarning, map[string]string{"message": w})
	}
	shouldStop := s.optimizer.ShouldStop()
	s.mu.Unlock()

	if shouldStop {
		log.Printf("tracking: battery hard stop for %s", id)
		s.Stop(ctx)
	}
}

// EnterBackground flags the session as backgrounded; tracking continues.
func (s *Service) EnterBackground() {
	s.mu.Lock()
	s.machine.Apply(EventEnterBackground)
	s.mu.Unlock()
}

// EnterForeground clears the background flag and merges fixes the
// positioning layer buffered while backgrounded. Buffered fixes predate any
// live fix, so they are flushed first, in order.
func (s *Service) EnterForeground(ctx context.Context, buffered []activity.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.Apply(EventEnterForeground)
	if s.session == nil || !s.machine.ShouldProcessFixes() {
		return
	}
	var accepted []activity.ValidatedFix
	for _, fix := range buffered {
		if v := s.processFixLocked(ctx, fix, false); v != nil {
			accepted = append(accepted, *v)
		}
	}
	if len(accepted) > 0 {
		s.store.AddPoints(ctx, accepted)
		s.session.Statistics = s.store.Statistics()
	}
}

// handleFix is the source's delivery callback.
func (s *Service) handleFix(fix activity.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || !s.machine.ShouldProcessFixes() {
		// Delivery while paused is deliberately dropped before validation.
		return
	}
	s.processFixLocked(context.Background(), fix, true)
}

// processFixLocked runs one fix through the pipeline. Returns the accepted
// fix, or nil when rejected. addToStore is false for bulk flushes, which
// store the batch themselves.
func (s *Service) processFixLocked(ctx context.Context, fix activity.Fix, addToStore bool) *activity.ValidatedFix {
	s.lastFixAt = s.now()
	s.setSignalLocked(activity.GradeSignal(fix.AccuracyM), fix.Timestamp)

	out := s.validator.Validate(fix)
	if !out.Accepted {
		s.store.RecordRejection()
		s.session.Statistics = s.store.Statistics()
		log.Printf("tracking: fix rejected for %s: %s", s.session.ID, out.Reason)
		return nil
	}

	validated := *s.validator.LastAccepted()
	prev := s.accumulator.last
	addedM, _ := s.accumulator.Add(validated)
	if validated.SpeedMps == nil && prev != nil && addedM > 0 {
		if dt := validated.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
			speed := addedM / dt
			validated.SpeedMps = &speed
		}
	}

	s.session.TotalDistanceM = s.accumulator.TotalM()
	s.session.TotalElevationGainM = s.accumulator.ElevationGainM()

	activeDur := s.activeDurationLocked(s.now())
	for _, split := range s.splitTracker.Update(s.session.TotalDistanceM, activeDur) {
		if s.hub != nil {
			s.hub.Publish(s.session.ID, stream.EventSplit, split)
		}
	}
	s.session.Splits = s.splitTracker.Splits()

	if addToStore {
		s.store.AddPoint(ctx, validated)
		s.session.Statistics = s.store.Statistics()
	}

	s.fixesSinceCP++
	if s.fixesSinceCP >= s.cfg.CheckpointEveryFixes ||
		s.now().Sub(s.lastCPAt) >= time.Duration(s.cfg.CheckpointIntervalSec)*time.Second {
		s.saveCheckpointLocked(ctx)
	}
	return &validated
}

// setSignalLocked updates the signal grade, drives the GPS overlay, counts
// outages, and opens the post-outage recovery window.
func (s *Service) setSignalLocked(strength activity.SignalStrength, at time.Time) {
	prev := s.session.GPSSignal
	if prev == strength {
		return
	}
	s.session.GPSSignal = strength

	switch strength {
	case activity.SignalNone:
		s.store.RecordOutage()
		s.machine.Apply(EventGPSLost)
	case activity.SignalWeak:
		s.machine.Apply(EventGPSWeak)
	default:
		s.machine.Apply(EventGPSRecovered)
	}
	if prev == activity.SignalNone {
		s.accumulator.BeginRecovery(at)
	}

	if s.hub != nil {
		s.hub.Publish(s.session.ID, stream.EventGPSSignal, map[string]string{"strength": string(strength)})
	}
}

func (s *Service) activeDurationLocked(now time.Time) time.Duration {
	d := s.session.ActiveDuration
	if s.machine.Primary() == StateTracking {
		d += now.Sub(s.activeSince)
	}
	return d
}

func (s *Service) snapshotLocked(now time.Time) *Session {
	snap := *s.session
	snap.State = s.machine.State()
	if s.store != nil {
		snap.Statistics = s.store.Statistics()
	}
	snap.ActiveDuration = s.activeDurationLocked(now)
	if s.machine.Primary() == StatePaused {
		snap.PausedDuration += now.Sub(s.pausedAt)
	}
	snap.Splits = append([]activity.Split{}, s.session.Splits...)
	return &snap
}

func (s *Service) saveCheckpointLocked(ctx context.Context) {
	if s.checkpoints == nil || s.session == nil {
		return
	}
	now := s.now()
	stats := s.store.Statistics()
	cp := recovery.Checkpoint{
		SessionID:           s.session.ID,
		ActivityType:        s.session.ActivityType,
		StartTime:           s.session.StartTime,
		SavedAt:             now,
		TotalDistanceM:      s.session.TotalDistanceM,
		TotalElevationGainM: s.session.TotalElevationGainM,
		ActiveDuration:      s.activeDurationLocked(now),
		PausedDuration:      s.session.PausedDuration,
		Splits:              s.splitTracker.Splits(),
		LastFix:             s.validator.LastAccepted(),
		MaxSpeedMps:         stats.MaxSpeedMps,
		SpeedSumM:           stats.AvgSpeedMps * float64(stats.AcceptedFixes),
		AccuracySumM:        stats.AvgAccuracyM * float64(stats.AcceptedFixes),
		AcceptedFixes:       stats.AcceptedFixes,
		GPSOutages:          stats.GPSOutageCount,
	}
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		log.Printf("tracking: save checkpoint: %v", err)
		return
	}
	s.fixesSinceCP = 0
	s.lastCPAt = now
}

func (s *Service) publishState(sessionID string) {
	if s.hub == nil {
		return
	}
	s.mu.Lock()
	state := s.machine.State()
	s.mu.Unlock()
	s.hub.Publish(sessionID, stream.EventState, map[string]string{"state": string(state)})
}

func (s *Service) startWatchdogLocked() {
	stop := make(chan struct{})
	done := make(chan struct{})
	s.watchdogStop = stop
	s.watchdogDone = done

	interval := time.Duration(s.cfg.GPSStalePollSec) * time.Second
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.checkStaleness()
			}
		}
	}()
}

func (s *Service) stopWatchdogLocked() {
	if s.watchdogStop != nil {
		close(s.watchdogStop)
		s.watchdogStop = nil
	}
}

func (s *Service) checkStaleness() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	// Signal grading keeps running while paused so the session resumes with an
	// honest GPS picture; the overlay only surfaces once tracking resumes.
	if p := s.machine.Primary(); p != StateTracking && p != StatePaused {
		return
	}
	lostAfter := time.Duration(s.cfg.GPSLostAfterSec) * time.Second
	if s.now().Sub(s.lastFixAt) > lostAfter && s.session.GPSSignal != activity.SignalNone {
		s.setSignalLocked(activity.SignalNone, s.now())
	}
}

func (s *Service) persistSessionStart(ctx context.Context, sess *Session) {
	if s.db == nil {
		return
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO track_sessions (id, activity_type, started_at, status)
		VALUES ($1,$2,$3,'active')
	`, sess.ID, string(sess.ActivityType), sess.StartTime)
	if err != nil {
		log.Printf("tracking: persist session start: %v", err)
	}
}

func (s *Service) persistSessionEnd(ctx context.Context, sess *Session) {
	if s.db == nil {
		return
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO track_sessions (id, activity_type, started_at, ended_at, total_distance_m, total_elevation_gain_m, active_duration_s, paused_duration_s, avg_speed_mps, max_speed_mps, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'finished')
		ON CONFLICT (id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			total_distance_m = EXCLUDED.total_distance_m,
			total_elevation_gain_m = EXCLUDED.total_elevation_gain_m,
			active_duration_s = EXCLUDED.active_duration_s,
			paused_duration_s = EXCLUDED.paused_duration_s,
			avg_speed_mps = EXCLUDED.avg_speed_mps,
			max_speed_mps = EXCLUDED.max_speed_mps,
			status = 'finished'
	`, sess.ID, string(sess.ActivityType), sess.StartTime, sess.EndTime,
		sess.TotalDistanceM, sess.TotalElevationGainM,
		int64(sess.ActiveDuration.Seconds()), int64(sess.PausedDuration.Seconds()),
		sess.Statistics.AvgSpeedMps, sess.Statistics.MaxSpeedMps)
	if err != nil {
		log.Printf("tracking: persist session end: %v", err)
	}
}

// Finished fetches a finalized session from history for the publishing
// pipeline.
func (s *Service) Finished(ctx context.Context, sessionID string) (Session, error) {
	if s.db == nil {
		return Session{}, errors.New("session history not configured")
	}
	var (
		sess             Session
		actType          string
		endedAt          time.Time
		activeS, pausedS int64
	)
	row := s.db.QueryRow(ctx, `
		SELECT id, activity_type, started_at, ended_at, total_distance_m, total_elevation_gain_m, active_duration_s, paused_duration_s, avg_speed_mps, max_speed_mps
		FROM track_sessions WHERE id=$1 AND status='finished'
	`, sessionID)
	err := row.Scan(&sess.ID, &actType, &sess.StartTime, &endedAt,
		&sess.TotalDistanceM, &sess.TotalElevationGainM, &activeS, &pausedS,
		&sess.Statistics.AvgSpeedMps, &sess.Statistics.MaxSpeedMps)
	if err != nil {
		return Session{}, err
	}
	sess.ActivityType = activity.Type(actType)
	sess.EndTime = &endedAt
	sess.ActiveDuration = time.Duration(activeS) * time.Second
	sess.PausedDuration = time.Duration(pausedS) * time.Second
	sess.State = StateStopped
	return sess, nil
}
