package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/metrics"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/types"
)

// EventStrategy watches the share directories of file-share payloads and re-runs the
// pipeline for a payload when its artifact manifest or artifact file changes.
type EventStrategy struct {
	processor Processor
	refresher Refresher
	limit     uint
	debounce  time.Duration

	// paths maps a watched file to its payload.
	paths map[string]*payload.Payload
	dirs  []string

	group singleflight.Group

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	counts  map[string]uint
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewEventStrategy creates a strategy for payloads. Nothing is watched until Start.
func NewEventStrategy(payloads []*payload.Payload, processor Processor, refresher Refresher, opts Options) *EventStrategy {
	s := &EventStrategy{
		processor: processor,
		refresher: refresher,
		limit:     opts.SessionNotificationLimit,
		debounce:  opts.Debounce,
		paths:     make(map[string]*payload.Payload),
		counts:    make(map[string]uint),
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}

	seen := make(map[string]bool)
	for _, p := range payloads {
		for _, source := range []string{p.Deployment.ArtifactURI, p.Artifact.URI} {
			path := watchedPath(source)
			if path == "" {
				continue
			}
			s.paths[pathKey(path)] = p
			if dir := filepath.Dir(path); !seen[pathKey(dir)] {
				seen[pathKey(dir)] = true
				s.dirs = append(s.dirs, dir)
			}
		}
	}
	return s
}

// Kind returns TriggerEvent.
func (s *EventStrategy) Kind() types.TriggerKind { return types.TriggerEvent }

// Start adds a watch for every share directory. A directory that cannot be watched is
// logged; Start fails only when none can.
func (s *EventStrategy) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}

	added := 0
	for _, dir := range s.dirs {
		if err := watcher.Add(dir); err != nil {
			log.WithField("directory", dir).Errorf("cannot watch share directory: %v", err)
			continue
		}
		added++
	}
	if added == 0 && len(s.dirs) > 0 {
		_ = watcher.Close()
		return fmt.Errorf("none of %d share directories could be watched", len(s.dirs))
	}

	s.watcher = watcher
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.processEvents(watcher)
	log.Debugf("watching %d share directories", added)
	return nil
}

func (s *EventStrategy) processEvents(watcher *fsnotify.Watcher) {
	defer close(s.done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			key := pathKey(event.Name)
			if _, ok := s.paths[key]; ok {
				s.schedule(key)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("file watcher error: %v", err)
		}
	}
}

// schedule debounces bursts of events for one path into a single trigger.
func (s *EventStrategy) schedule(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.pending[key]; ok {
		t.Reset(s.debounce)
		return
	}
	s.pending[key] = time.AfterFunc(s.debounce, func() { s.fire(key) })
}

func (s *EventStrategy) fire(key string) {
	s.mu.Lock()
	delete(s.pending, key)
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.limit > 0 && s.counts[key] >= s.limit {
		s.mu.Unlock()
		metrics.Triggers.WithLabelValues(string(types.TriggerEvent), "suppressed").Inc()
		log.WithField("path", key).Debug("session notification limit reached")
		return
	}
	s.counts[key]++
	s.wg.Add(1)
	ctx := s.ctx
	s.mu.Unlock()
	defer s.wg.Done()

	p := s.paths[key]
	_, err, _ := s.group.Do(p.ID(), func() (interface{}, error) {
		fresh := refresh(ctx, s.refresher, p)
		return nil, s.processor.RunPass(ctx, []*payload.Payload{fresh}).Err()
	})
	if err != nil {
		metrics.Triggers.WithLabelValues(string(types.TriggerEvent), "error").Inc()
		log.WithField("artifact", p.Title()).Errorf("update triggered by %s failed: %v", filepath.Base(key), err)
		return
	}
	metrics.Triggers.WithLabelValues(string(types.TriggerEvent), "processed").Inc()
}

// Close stops watching and waits for a running check.
func (s *EventStrategy) Close(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for key, t := range s.pending {
		t.Stop()
		delete(s.pending, key)
	}
	watcher, cancel := s.watcher, s.cancel
	s.mu.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			log.Warnf("failed to close file watcher: %v", err)
		}
		<-s.done
	}

	err := wait(&s.wg, timeout)
	if cancel != nil {
		cancel()
	}
	return err
}

func watchedPath(source string) string {
	path := manifest.LocalPath(source)
	if path == "" || strings.Contains(path, "://") {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}

// pathKey normalizes path for lookups. Windows and macOS paths compare case-insensitively.
func pathKey(path string) string {
	path = filepath.Clean(path)
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.ToLower(path)
	}
	return path
}
