// Package agent exposes the two lifecycle hooks the host integration calls: one full
// deployment pass plus background monitoring at startup, and release of the deployed
// artifacts at shutdown.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/deploy"
	"github.com/adamancini/autodeploy/internal/monitor"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/registry"
)

// ErrAlreadyStarted is returned by a second OnHostStartup.
var ErrAlreadyStarted = errors.New("agent already started")

// Deactivator releases an artifact from the host.
type Deactivator interface {
	Deactivate(ctx context.Context, title, path string, install bool) error
}

// Options wires an Agent.
type Options struct {
	Source    registry.PayloadSource
	Processor monitor.Processor
	Host      Deactivator
	Monitor   monitor.Options
	// NoMonitor runs the startup pass without background monitoring.
	NoMonitor bool
}

// Agent owns the payloads and the monitor for one host session.
type Agent struct {
	opts Options

	mu       sync.Mutex
	started  bool
	payloads []*payload.Payload
	monitor  *monitor.Monitor

	shutdown sync.Once
}

// New creates an agent.
func New(opts Options) *Agent {
	return &Agent{opts: opts}
}

// Payloads returns the payloads loaded at startup.
func (a *Agent) Payloads() []*payload.Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payloads
}

// OnHostStartup loads the registry, runs one orchestration pass and starts the monitor.
// Per-payload failures are reported in the returned Result. The error covers the
// registry and the monitor; payloads that resolved are processed even when others did
// not.
func (a *Agent) OnHostStartup(ctx context.Context) (*deploy.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil, ErrAlreadyStarted
	}
	a.started = true

	var errs *multierror.Error
	payloads, err := a.opts.Source.Load(ctx)
	if err != nil {
		if len(payloads) == 0 {
			return nil, fmt.Errorf("load deployment registry: %w", err)
		}
		errs = multierror.Append(errs, err)
	}
	a.payloads = payloads
	log.Infof("loaded %d deployments from the registry", len(payloads))

	result := a.opts.Processor.RunPass(ctx, payloads)

	if a.opts.NoMonitor {
		return result, errs.ErrorOrNil()
	}

	mon, err := monitor.New(payloads, a.opts.Processor, a.opts.Source, a.opts.Monitor)
	if err != nil {
		return result, multierror.Append(errs, fmt.Errorf("create monitor: %w", err)).ErrorOrNil()
	}
	a.monitor = mon
	if err := mon.Start(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("start monitor: %w", err))
	}
	log.Infof("monitoring %d deployments", mon.Len())

	return result, errs.ErrorOrNil()
}

// OnHostShutdown stops the monitor, waiting for a running check up to the shutdown
// timeout, then unloads or uninstalls every artifact that is not marked always
// installed. Every step runs even when an earlier one fails. Calls after the first
// return nil.
func (a *Agent) OnHostShutdown(ctx context.Context) error {
	var err error
	a.shutdown.Do(func() {
		err = a.close(ctx)
	})
	return err
}

func (a *Agent) close(ctx context.Context) error {
	a.mu.Lock()
	mon, payloads := a.monitor, a.payloads
	a.mu.Unlock()

	var errs *multierror.Error
	if mon != nil {
		if err := mon.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if a.opts.Host == nil {
		return errs.ErrorOrNil()
	}
	for _, p := range payloads {
		behavior := p.Deployment.Settings.LoadBehavior
		if behavior.AlwaysInstalled {
			continue
		}
		if _, err := os.Stat(p.Destination.ArtifactPath); err != nil {
			continue
		}
		if err := a.opts.Host.Deactivate(ctx, p.Title(), p.Destination.ArtifactPath, behavior.Install); err != nil {
			log.WithField("artifact", p.Title()).Errorf("failed to release artifact: %v", err)
			errs = multierror.Append(errs, fmt.Errorf("release %s: %w", p.Title(), err))
		}
	}
	return errs.ErrorOrNil()
}
