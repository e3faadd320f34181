// Package deploy runs orchestration passes: install, update or repair each payload and
// persist what was checked.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/metrics"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/platform"
	"github.com/adamancini/autodeploy/internal/stage"
	"github.com/adamancini/autodeploy/internal/update"
	"github.com/adamancini/autodeploy/internal/versions"
)

// Executor performs the file work for a payload.
type Executor interface {
	Install(ctx context.Context, p *payload.Payload) error
	Apply(ctx context.Context, p *payload.Payload) error
	RepairDependencies(ctx context.Context, p *payload.Payload) error
	Recover(p *payload.Payload) (bool, error)
}

// HostCloser asks the host application to exit.
type HostCloser interface {
	CloseHost(ctx context.Context) error
}

// Options wires an Orchestrator.
type Options struct {
	Executor Executor
	Engine   *update.Engine
	// Notifier shows the restart message. Optional.
	Notifier update.Notifier
	// Closer is invoked once per pass when an applied update needs a restart. Optional.
	Closer HostCloser
	// Probe validates platform requirements. Optional.
	Probe platform.SystemProbe
	Store manifest.Store
}

// Orchestrator processes payloads one after another.
type Orchestrator struct {
	executor Executor
	engine   *update.Engine
	notifier update.Notifier
	closer   HostCloser
	probe    platform.SystemProbe
	store    manifest.Store
	locks    *stage.KeyedMutex

	mu              sync.Mutex
	pendingRestarts map[string]struct{}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(opts Options) *Orchestrator {
	store := opts.Store
	if store == nil {
		store = manifest.NewLocalStore()
	}
	return &Orchestrator{
		executor: opts.Executor,
		engine:   opts.Engine,
		notifier: opts.Notifier,
		closer:   opts.Closer,
		probe:    opts.Probe,
		store:    store,
		locks:    stage.NewKeyedMutex(),

		pendingRestarts: make(map[string]struct{}),
	}
}

// RunPass processes every payload in order. A failing payload is recorded and the pass
// moves on. When any applied update needs a restart, the host is closed once at the end.
func (o *Orchestrator) RunPass(ctx context.Context, payloads []*payload.Payload) *Result {
	start := time.Now()
	result := &Result{Pass: uuid.NewString()}
	logger := log.WithField("pass", result.Pass)
	logger.Debugf("processing %d payloads", len(payloads))

	for _, p := range payloads {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("pass interrupted: %w", err))
			break
		}
		op, err := o.ProcessPayload(ctx, p)
		result.add(op, err)
		metrics.Payloads.WithLabelValues(string(op.Action)).Inc()
	}

	if result.Restarts > 0 {
		if err := o.RequestRestart(ctx, result.Restarts); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	status := "success"
	if len(result.Errors) > 0 {
		status = "error"
	}
	metrics.Passes.WithLabelValues(status).Inc()
	metrics.PassDuration.Observe(time.Since(start).Seconds())

	logger.WithFields(log.Fields{
		"installed": result.Installed,
		"updated":   result.Updated,
		"repaired":  result.Repaired,
		"failed":    result.Failed,
	}).Infof("pass complete in %s", time.Since(start).Round(time.Millisecond))
	return result
}

// ProcessPayload brings one payload up to date. The UpdateQueryInfo is persisted on
// every path that gets as far as a check, whether or not anything changed.
func (o *Orchestrator) ProcessPayload(ctx context.Context, p *payload.Payload) (Operation, error) {
	unlock := o.locks.Lock(p.ID())
	defer unlock()

	op := Operation{Artifact: p.Title(), Available: p.Artifact.Identity.Version.String()}
	logger := log.WithFields(log.Fields{"artifact": p.Title(), "version": op.Available})

	if recovered, err := o.executor.Recover(p); err != nil {
		return fail(logger, op, ActionError, fmt.Errorf("recover %s: %w", p.Title(), err))
	} else if recovered {
		logger.Warn("restored the artifact left behind by an interrupted update")
	}

	if err := ValidatePlatform(p, o.probe); err != nil {
		return fail(logger, op, ActionError, err)
	}

	if !fileExists(p.Destination.ArtifactPath) {
		return o.install(ctx, p, op, logger)
	}

	deployed, err := o.deployedVersion(p)
	if err != nil {
		return fail(logger, op, ActionError, err)
	}
	op.Deployed = deployed.String()

	check := o.engine.GetCheckedUpdate(p, deployed)
	if check.Info.DependenciesPending && !check.Info.UpdateAvailable {
		return o.repair(ctx, check, op, logger)
	}

	proceed, err := o.engine.CanProceedWithUpdate(check)
	if err != nil {
		return fail(logger, op, ActionError, combine(err, o.persist(check)))
	}
	if !proceed {
		return o.skip(check, op, logger)
	}
	return o.apply(ctx, check, deployed, op, logger)
}

// Remind is the timer-driven check. It refreshes the UpdateQueryInfo and, once the
// reminder period has elapsed, reminds the user about an update that is still pending
// or about an applied update that still waits for a host restart. It never downloads:
// pending updates are applied by the next startup or event-driven pass.
func (o *Orchestrator) Remind(ctx context.Context, p *payload.Payload) (Operation, error) {
	op, err := o.remind(p)
	metrics.Payloads.WithLabelValues(string(op.Action)).Inc()
	return op, err
}

func (o *Orchestrator) remind(p *payload.Payload) (Operation, error) {
	unlock := o.locks.Lock(p.ID())
	defer unlock()

	op := Operation{Artifact: p.Title(), Available: p.Artifact.Identity.Version.String(), Action: ActionNone, Success: true}
	logger := log.WithFields(log.Fields{"artifact": p.Title(), "version": op.Available})

	expiration := p.Deployment.Settings.UpdateBehavior.Expiration
	if expiration == nil || !fileExists(p.Destination.ArtifactPath) {
		return op, nil
	}

	deployed, err := o.deployedVersion(p)
	if err != nil {
		return fail(logger, op, ActionError, err)
	}
	op.Deployed = deployed.String()

	check := o.engine.GetCheckedUpdate(p, deployed)
	reminded := false
	switch {
	case check.Info.UpdateAvailable:
		reminded, err = o.engine.Remind(check, *expiration)
	case o.restartPending(p):
		reminded, err = o.engine.RemindRestart(check, *expiration)
	}
	if err != nil {
		return fail(logger, op, ActionError, combine(err, o.persist(check)))
	}
	if !reminded {
		return o.skip(check, op, logger)
	}

	op.Action = ActionRemind
	logger.Info("reminder shown")
	if err := o.persist(check); err != nil {
		return fail(logger, op, ActionRemind, err)
	}
	return op, nil
}

func (o *Orchestrator) markRestartPending(p *payload.Payload) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingRestarts[p.ID()] = struct{}{}
}

// restartPending reports whether an update applied in this session still waits for the
// host to restart.
func (o *Orchestrator) restartPending(p *payload.Payload) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.pendingRestarts[p.ID()]
	return ok
}

// RequestRestart tells the user the host is about to close and closes it.
func (o *Orchestrator) RequestRestart(ctx context.Context, count int) error {
	if o.closer == nil {
		log.Warnf("%d deployed updates need a host restart; no close command is configured", count)
		return nil
	}
	if o.notifier != nil {
		msg := fmt.Sprintf("%d update(s) were deployed. The host application will now be closed so they can take effect. "+
			"Once closed, you may re-open it as you normally would.", count)
		if _, err := o.notifier.Notify(msg, "Restart required", manifest.UpdateQueryInfo{}, false); err != nil {
			log.Warnf("failed to show restart notice: %v", err)
		}
	}
	if err := o.closer.CloseHost(ctx); err != nil {
		return fmt.Errorf("close host application: %w", err)
	}
	return nil
}

func (o *Orchestrator) install(ctx context.Context, p *payload.Payload, op Operation, logger *log.Entry) (Operation, error) {
	op.Action = ActionInstall
	installErr := o.executor.Install(ctx, p)
	if installErr != nil && !errors.Is(installErr, stage.ErrDependenciesIncomplete) {
		return fail(logger, op, ActionInstall, installErr)
	}
	op.Deployed = op.Available

	check := o.engine.Check(p, p.Artifact.Identity.Version, nil)
	check.Info.DependenciesPending = installErr != nil
	if err := combine(installErr, o.persist(check)); err != nil {
		return fail(logger, op, ActionInstall, err)
	}
	op.Success = true
	return op, nil
}

func (o *Orchestrator) repair(ctx context.Context, check *update.CheckedUpdate, op Operation, logger *log.Entry) (Operation, error) {
	op.Action = ActionRepair
	err := o.executor.RepairDependencies(ctx, check.Payload)
	check.Info.DependenciesPending = err != nil
	if err := combine(err, o.persist(check)); err != nil {
		return fail(logger, op, ActionRepair, err)
	}
	op.Success = true
	return op, nil
}

func (o *Orchestrator) skip(check *update.CheckedUpdate, op Operation, logger *log.Entry) (Operation, error) {
	op.Action = ActionNone
	if check.Info.UpdateAvailable {
		op.Action = ActionDefer
		logger.Infof("update from %s deferred", op.Deployed)
	}
	if err := o.persist(check); err != nil {
		return fail(logger, op, op.Action, err)
	}
	op.Success = true
	return op, nil
}

func (o *Orchestrator) apply(ctx context.Context, check *update.CheckedUpdate, deployed manifest.Version, op Operation, logger *log.Entry) (Operation, error) {
	p := check.Payload
	op.Action = ActionUpdate

	applyErr := o.executor.Apply(ctx, p)
	if applyErr != nil && !errors.Is(applyErr, stage.ErrDependenciesIncomplete) {
		// Rolled back: the record still describes the deployed version.
		return fail(logger, op, ActionUpdate, combine(applyErr, o.persist(check)))
	}

	op.Deployed = op.Available
	op.Restart = check.Info.IsRestartRequired

	after := o.engine.Check(p, p.Artifact.Identity.Version, &check.Info)
	after.Info.DependenciesPending = applyErr != nil

	if p.Deployment.Settings.UpdateBehavior.RemoveDeprecatedVersion {
		mgr := versions.NewManager(p.Destination.ParentDirectory, p.Artifact.Identity.Version)
		if err := mgr.RemoveDeprecated(deployed); err != nil {
			logger.Warnf("failed to remove version %s: %v", deployed, err)
		}
	}

	if op.Restart {
		o.markRestartPending(p)
	}
	if err := combine(applyErr, o.persist(after)); err != nil {
		return fail(logger, op, ActionUpdate, err)
	}
	op.Success = true
	return op, nil
}

func (o *Orchestrator) deployedVersion(p *payload.Payload) (manifest.Version, error) {
	record, err := manifest.ReadArtifactRecord(p.ArtifactRecordPath())
	if err != nil {
		return manifest.Version{}, fmt.Errorf("read deployed manifest for %s: %w", p.Title(), err)
	}
	if record == nil {
		// An artifact without a record is treated as older than anything published.
		return manifest.Version{}, nil
	}
	return record.Identity.Version, nil
}

func (o *Orchestrator) persist(check *update.CheckedUpdate) error {
	if err := o.store.Serialize(&check.Info, check.Payload.QueryInfoRecordPath()); err != nil {
		return fmt.Errorf("persist update record for %s: %w", check.Payload.Title(), err)
	}
	return nil
}

func fail(logger *log.Entry, op Operation, action Action, err error) (Operation, error) {
	op.Action = action
	op.Success = false
	op.Error = err.Error()
	logger.Errorf("%s failed: %v", action, err)
	return op, err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
