package onboarding

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Poller re-fetches onboarding status on an interval while provisioning is
// running. It only issues requests while the workflow is IN_PROGRESS and
// stops with its context or an explicit Stop, so no timer outlives the
// wizard that created it.
type Poller struct {
	session  *Session
	logger   *zap.Logger
	interval time.Duration
	onUpdate func(State)
	done     chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a poller for the given session. onUpdate is invoked with
// a fresh snapshot after every successful refresh; it may be nil.
func NewPoller(session *Session, logger *zap.Logger, interval time.Duration, onUpdate func(State)) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		session:  session,
		logger:   logger,
		interval: interval,
		onUpdate: onUpdate,
		done:     make(chan struct{}),
	}
}

// Run polls until the context is cancelled or Stop is called. It blocks and
// is meant to run in its own goroutine.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Stop terminates the poll loop. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

func (p *Poller) tick(ctx context.Context) {
	if p.session.CurrentStatus() != StatusInProgress {
		return
	}

	if err := p.session.Refresh(ctx); err != nil {
		// Nothing is retried beyond the next tick; the session keeps the
		// last snapshot and records the error for display.
		return
	}

	if p.onUpdate != nil {
		p.onUpdate(p.session.State())
	}

	if status := p.session.CurrentStatus(); status != StatusInProgress {
		p.logger.Info("Onboarding left running state",
			zap.String("status", string(status)))
	}
}
