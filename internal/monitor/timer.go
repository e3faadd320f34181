package monitor

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/metrics"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/types"
)

// TimerStrategy reminds about one payload on a fixed interval. The timer is one-shot and
// re-armed only after the callback returns, so firings never overlap.
type TimerStrategy struct {
	payload   *payload.Payload
	interval  time.Duration
	processor Processor
	refresher Refresher

	mu     sync.Mutex
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewTimerStrategy creates a timer for p.
func NewTimerStrategy(p *payload.Payload, interval time.Duration, processor Processor, refresher Refresher) *TimerStrategy {
	return &TimerStrategy{
		payload:   p,
		interval:  interval,
		processor: processor,
		refresher: refresher,
	}
}

// Kind returns TriggerTimer.
func (s *TimerStrategy) Kind() types.TriggerKind { return types.TriggerTimer }

// Start arms the timer. The first firing is one interval from now.
func (s *TimerStrategy) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.timer != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.timer = time.AfterFunc(s.interval, s.fire)
	log.WithField("artifact", s.payload.Title()).Debugf("reminder every %s", s.interval)
	return nil
}

func (s *TimerStrategy) fire() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	ctx := s.ctx
	s.mu.Unlock()
	defer s.wg.Done()

	s.run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.timer.Reset(s.interval)
	}
}

func (s *TimerStrategy) run(ctx context.Context) {
	p := refresh(ctx, s.refresher, s.payload)
	logger := log.WithField("artifact", p.Title())

	op, err := s.processor.Remind(ctx, p)
	if err != nil {
		metrics.Triggers.WithLabelValues(string(types.TriggerTimer), "error").Inc()
		logger.Errorf("reminder check failed: %v", err)
		return
	}
	metrics.Triggers.WithLabelValues(string(types.TriggerTimer), "processed").Inc()
	logger.Debugf("reminder check: %s", op.Action)
}

// Close stops the timer and waits for a running firing.
func (s *TimerStrategy) Close(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	cancel := s.cancel
	s.mu.Unlock()

	err := wait(&s.wg, timeout)
	if cancel != nil {
		cancel()
	}
	return err
}
