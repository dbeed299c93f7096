package tracking

import (
	"context"
	"errors"
	"sync"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
	"github.com/RUNSTR-LLC/runstr-engine/internal/battery"
)

// LocationSource is the positioning subsystem the orchestrator subscribes to.
// Implementations deliver fixes at the configured sampling profile and own
// the underlying permission handshake.
type LocationSource interface {
	RequestPermission(ctx context.Context) (bool, error)
	Start(profile battery.SamplingProfile, deliver func(activity.Fix)) error
	Reconfigure(profile battery.SamplingProfile) error
	Stop() error
}

var errSourceNotStarted = errors.New("location source not started")

// PushSource adapts client-pushed fixes (the mobile positioning layer posting
// over HTTP) to the LocationSource interface. The active sampling profile is
// exposed so the pushing client can reconfigure its own GPS subscription.
type PushSource struct {
	mu      sync.Mutex
	granted bool
	started bool
	profile battery.SamplingProfile
	deliver func(activity.Fix)
}

// NewPushSource returns a source with permission already granted; a pushing
// client only reaches the engine after the device-side permission prompt.
func NewPushSource() *PushSource {
	return &PushSource{granted: true}
}

// SetPermission overrides the permission verdict reported to the orchestrator.
func (p *PushSource) SetPermission(granted bool) {
	p.mu.Lock()
	p.granted = granted
	p.mu.Unlock()
}

func (p *PushSource) RequestPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted, ctx.Err()
}

func (p *PushSource) Start(profile battery.SamplingProfile, deliver func(activity.Fix)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	p.profile = profile
	p.deliver = deliver
	return nil
}

func (p *PushSource) Reconfigure(profile battery.SamplingProfile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return errSourceNotStarted
	}
	p.profile = profile
	return nil
}

func (p *PushSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.deliver = nil
	return nil
}

// Profile returns the sampling profile the pushing client should honor.
func (p *PushSource) Profile() (battery.SamplingProfile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile, p.started
}

// Push hands one client-supplied fix to the orchestrator's delivery callback.
func (p *PushSource) Push(fix activity.Fix) error {
	p.mu.Lock()
	deliver := p.deliver
	p.mu.Unlock()
	if deliver == nil {
		return errSourceNotStarted
	}
	deliver(fix)
	return nil
}
