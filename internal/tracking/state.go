package tracking

import "log"

// State is the externally visible session lifecycle state.
type State string

const (
	StateIdle                  State = "idle"
	StateRequestingPermissions State = "requesting_permissions"
	StateInitializing          State = "initializing"
	StateTracking              State = "tracking"
	StatePaused                State = "paused"
	StateGPSWeak               State = "gps_weak"
	StateGPSLost               State = "gps_lost"
	StateBackground            State = "background"
	StateStopped               State = "stopped"
)

// Event drives state machine transitions.
type Event string

const (
	EventStartTracking          Event = "START_TRACKING"
	EventPermissionsGranted     Event = "PERMISSIONS_GRANTED"
	EventPermissionsDenied      Event = "PERMISSIONS_DENIED"
	EventInitializationComplete Event = "INITIALIZATION_COMPLETE"
	EventInitializationFailed   Event = "INITIALIZATION_FAILED"
	EventPause                  Event = "PAUSE"
	EventResume                 Event = "RESUME"
	EventEnterBackground        Event = "ENTER_BACKGROUND"
	EventEnterForeground        Event = "ENTER_FOREGROUND"
	EventGPSLost                Event = "GPS_LOST"
	EventGPSWeak                Event = "GPS_WEAK"
	EventGPSRecovered           Event = "GPS_RECOVERED"
	EventStop                   Event = "STOP"
	EventReset                  Event = "RESET"
)

type gpsOverlay int

const (
	overlayNone gpsOverlay = iota
	overlayWeak
	overlayLost
)

// Machine is the authoritative session lifecycle. GPS quality and
// background/foreground are orthogonal overlays on the primary state: they
// never change what lifecycle operations are allowed. Invalid transitions are
// logged and ignored; a late callback must never wedge the orchestrator.
type Machine struct {
	primary    State
	overlay    gpsOverlay
	background bool
}

func NewMachine() *Machine {
	return &Machine{primary: StateIdle}
}

// State returns the effective state, with the GPS overlay and background flag
// surfaced while tracking.
func (m *Machine) State() State {
	if m.primary == StateTracking {
		switch {
		case m.overlay == overlayLost:
			return StateGPSLost
		case m.overlay == overlayWeak:
			return StateGPSWeak
		case m.background:
			return StateBackground
		}
	}
	return m.primary
}

func (m *Machine) Primary() State     { return m.primary }
func (m *Machine) InBackground() bool { return m.background }

func (m *Machine) CanStart() bool  { return m.primary == StateIdle }
func (m *Machine) CanPause() bool  { return m.primary == StateTracking }
func (m *Machine) CanResume() bool { return m.primary == StatePaused }

func (m *Machine) CanStop() bool {
	switch m.primary {
	case StateRequestingPermissions, StateInitializing, StateTracking, StatePaused:
		return true
	}
	return false
}

// ShouldProcessFixes reports whether incoming fixes should run through the
// pipeline. Fix delivery while paused is a deliberate no-op.
func (m *Machine) ShouldProcessFixes() bool {
	return m.primary == StateTracking
}

// Apply transitions the machine. Returns the effective state after the event.
func (m *Machine) Apply(event Event) State {
	switch event {
	case EventStartTracking:
		m.transition(StateIdle, StateRequestingPermissions, event)
	case EventPermissionsGranted:
		m.transition(StateRequestingPermissions, StateInitializing, event)
	case EventPermissionsDenied:
		m.transition(StateRequestingPermissions, StateIdle, event)
	case EventInitializationComplete:
		m.transition(StateInitializing, StateTracking, event)
	case EventInitializationFailed:
		m.transition(StateInitializing, StateIdle, event)
	case EventPause:
		m.transition(StateTracking, StatePaused, event)
	case EventResume:
		m.transition(StatePaused, StateTracking, event)
	case EventEnterBackground:
		m.background = true
	case EventEnterForeground:
		m.background = false
	case EventGPSLost:
		m.setOverlay(overlayLost, event)
	case EventGPSWeak:
		m.setOverlay(overlayWeak, event)
	case EventGPSRecovered:
		m.overlay = overlayNone
	case EventStop:
		if m.CanStop() {
			m.primary = StateStopped
			m.overlay = overlayNone
			m.background = false
		} else {
			m.ignore(event)
		}
	case EventReset:
		m.transition(StateStopped, StateIdle, event)
	default:
		m.ignore(event)
	}
	return m.State()
}

func (m *Machine) transition(from, to State, event Event) {
	if m.primary != from {
		m.ignore(event)
		return
	}
	m.primary = to
}

func (m *Machine) setOverlay(o gpsOverlay, event Event) {
	if m.primary != StateTracking && m.primary != StatePaused {
		m.ignore(event)
		return
	}
	m.overlay = o
}

func (m *Machine) ignore(event Event) {
	log.Printf("tracking: ignoring %s in state %s", event, m.primary)
}
