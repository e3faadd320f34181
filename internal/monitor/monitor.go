// Package monitor re-runs the deployment pipeline while the host is running, either when
// a watched file on the share changes or on a per-payload reminder timer.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/deploy"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/types"
	"github.com/adamancini/autodeploy/internal/update"
)

// ErrCloseTimeout is returned when an in-flight check does not finish within the
// shutdown timeout.
var ErrCloseTimeout = errors.New("timed out waiting for the running update check to finish")

const (
	DefaultSessionNotificationLimit = 1
	DefaultDebounce                 = 500 * time.Millisecond
	DefaultShutdownTimeout          = 30 * time.Second
)

// Processor runs the deployment pipeline.
type Processor interface {
	RunPass(ctx context.Context, payloads []*payload.Payload) *deploy.Result
	Remind(ctx context.Context, p *payload.Payload) (deploy.Operation, error)
}

// Refresher rebuilds a payload from its current manifests.
type Refresher interface {
	Refresh(ctx context.Context, id string) (*payload.Payload, error)
}

// Strategy is one way of triggering the pipeline.
type Strategy interface {
	Kind() types.TriggerKind
	Start(ctx context.Context) error
	// Close stops new triggers and waits up to timeout for a running one. A timeout of
	// zero waits indefinitely.
	Close(timeout time.Duration) error
}

// Options configures a Monitor.
type Options struct {
	// SessionNotificationLimit caps how often one watched path may trigger the pipeline
	// per session. Zero means no limit.
	SessionNotificationLimit uint
	Debounce                 time.Duration
	ShutdownTimeout          time.Duration
}

// DefaultOptions returns the default monitor options.
func DefaultOptions() Options {
	return Options{
		SessionNotificationLimit: DefaultSessionNotificationLimit,
		Debounce:                 DefaultDebounce,
		ShutdownTimeout:          DefaultShutdownTimeout,
	}
}

// Select returns the trigger strategy a payload uses. File-share payloads flagged for
// real-time updates are watched; otherwise a payload with an expiration gets a timer.
func Select(p *payload.Payload) types.TriggerKind {
	switch {
	case p.UsesEventTrigger():
		return types.TriggerEvent
	case p.Deployment.Settings.UpdateBehavior.Expiration != nil:
		return types.TriggerTimer
	default:
		return types.TriggerNone
	}
}

// Monitor owns the strategies for a set of payloads.
type Monitor struct {
	strategies []Strategy
	timeout    time.Duration

	mu      sync.Mutex
	started bool
}

// New builds one event strategy shared by all watched payloads and one timer strategy
// per reminder payload.
func New(payloads []*payload.Payload, processor Processor, refresher Refresher, opts Options) (*Monitor, error) {
	m := &Monitor{timeout: opts.ShutdownTimeout}

	var watched []*payload.Payload
	for _, p := range payloads {
		switch Select(p) {
		case types.TriggerEvent:
			watched = append(watched, p)
		case types.TriggerTimer:
			interval, err := update.Interval(*p.Deployment.Settings.UpdateBehavior.Expiration)
			if err != nil {
				return nil, fmt.Errorf("reminder interval for %s: %w", p.Title(), err)
			}
			m.strategies = append(m.strategies, NewTimerStrategy(p, interval, processor, refresher))
		}
	}
	if len(watched) > 0 {
		m.strategies = append(m.strategies, NewEventStrategy(watched, processor, refresher, opts))
	}
	return m, nil
}

// Len returns the number of strategies.
func (m *Monitor) Len() int {
	return len(m.strategies)
}

// Start starts every strategy. A strategy that fails to start is logged and skipped.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	m.started = true

	var errs *multierror.Error
	for _, s := range m.strategies {
		if err := s.Start(ctx); err != nil {
			log.Errorf("failed to start %s monitor: %v", s.Kind(), err)
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Close stops every strategy, waiting for running checks up to the shutdown timeout.
func (m *Monitor) Close() error {
	var errs *multierror.Error
	for _, s := range m.strategies {
		if err := s.Close(m.timeout); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close %s monitor: %w", s.Kind(), err))
		}
	}
	return errs.ErrorOrNil()
}

// refresh returns the current payload, or the given one when it cannot be rebuilt.
func refresh(ctx context.Context, refresher Refresher, p *payload.Payload) *payload.Payload {
	if refresher == nil {
		return p
	}
	fresh, err := refresher.Refresh(ctx, p.ID())
	if err != nil {
		log.WithField("artifact", p.Title()).Warnf("using cached manifests: %v", err)
		return p
	}
	return fresh
}

// wait blocks until wg is done or timeout elapses. Zero waits indefinitely.
func wait(wg *sync.WaitGroup, timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrCloseTimeout
	}
}
