// Package stage replaces a deployed artifact so that the destination always holds a
// working copy of either the old or the new version.
package stage

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/metrics"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/transport"
)

// ErrDependenciesIncomplete is returned when the artifact itself was deployed but at
// least one dependency or asset file was not written. The artifact stays installed.
var ErrDependenciesIncomplete = errors.New("artifact deployed but dependencies are incomplete")

// Host releases and re-acquires the artifact inside the host application.
type Host interface {
	Activate(ctx context.Context, title, path string, install bool) error
	Deactivate(ctx context.Context, title, path string, install bool) error
}

// DownloaderFactory returns the downloader for a payload's file host.
type DownloaderFactory func(host manifest.FileHost) (transport.Downloader, error)

// Executor applies staged updates, first-time installs and dependency repairs.
type Executor struct {
	host        Host
	store       manifest.Store
	downloaders DownloaderFactory
	locks       *KeyedMutex
}

// NewExecutor creates an executor.
func NewExecutor(host Host, store manifest.Store, downloaders DownloaderFactory) *Executor {
	return &Executor{
		host:        host,
		store:       store,
		downloaders: downloaders,
		locks:       NewKeyedMutex(),
	}
}

func (e *Executor) lock(p *payload.Payload) func() {
	return e.locks.Lock(p.Destination.ArtifactPath)
}

func installs(p *payload.Payload) bool {
	return p.Deployment.Settings.LoadBehavior.Install
}

// Apply replaces the deployed artifact with the payload's version.
//
// The host releases the artifact, the artifact and its co-located files are moved into
// the temp directory and the new artifact is downloaded. A failed download is rolled
// back and the original reactivated. After the new artifact is finalized, dependencies
// and asset files are written in place; a failure there returns
// ErrDependenciesIncomplete. The artifact is reactivated on every path.
//
// Cancelling ctx stops Apply only before anything has been moved.
func (e *Executor) Apply(ctx context.Context, p *payload.Payload) error {
	unlock := e.lock(p)
	defer unlock()

	logger := log.WithFields(log.Fields{"artifact": p.Title(), "version": p.Artifact.Identity.Version.String()})

	downloader, err := e.downloaders(p.FileHost)
	if err != nil {
		return fmt.Errorf("select downloader for %s: %w", p.Title(), err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := e.recover(p); err != nil {
		return fmt.Errorf("recover interrupted update of %s: %w", p.Title(), err)
	}
	if err := e.host.Deactivate(ctx, p.Title(), p.Destination.ArtifactPath, installs(p)); err != nil {
		return fmt.Errorf("release %s from host: %w", p.Title(), err)
	}

	// Once files move, the only outcomes are finalize or rollback.
	ctx = context.WithoutCancel(ctx)

	staged, err := e.stage(p)
	if err != nil {
		rbErr := e.rollback(p, staged)
		return e.reactivate(ctx, p, combine(fmt.Errorf("stage %s: %w", p.Title(), err), rbErr))
	}
	logger.Debugf("staged %d files in %s", len(staged), p.Destination.TempDirectory)

	if err := e.fetchArtifact(ctx, p, downloader); err != nil {
		logger.Warnf("download failed, rolling back: %v", err)
		metrics.Rollbacks.Inc()
		rbErr := e.rollback(p, staged)
		return e.reactivate(ctx, p, combine(fmt.Errorf("update %s: %w", p.Title(), err), rbErr))
	}

	finalizeErr := e.finalize(p)
	if finalizeErr != nil {
		logger.Warnf("finalize incomplete: %v", finalizeErr)
	}

	var result error
	if finalizeErr != nil {
		result = fmt.Errorf("finalize %s: %w", p.Title(), finalizeErr)
	}
	if err := e.fetchDependencies(ctx, p, downloader); err != nil {
		result = combine(result, fmt.Errorf("%w: %w", ErrDependenciesIncomplete, err))
	}
	if result == nil {
		logger.Infof("updated to %s", p.Artifact.Identity.Version)
	}
	return e.reactivate(ctx, p, result)
}

// Install performs a first-time deployment straight into place. Nothing is loaded yet,
// so there is nothing to stage.
func (e *Executor) Install(ctx context.Context, p *payload.Payload) error {
	unlock := e.lock(p)
	defer unlock()

	downloader, err := e.downloaders(p.FileHost)
	if err != nil {
		return fmt.Errorf("select downloader for %s: %w", p.Title(), err)
	}

	if err := e.fetchArtifact(ctx, p, downloader); err != nil {
		return fmt.Errorf("install %s: %w", p.Title(), err)
	}
	if err := e.store.Serialize(&p.Artifact, p.ArtifactRecordPath()); err != nil {
		return fmt.Errorf("persist artifact manifest for %s: %w", p.Title(), err)
	}

	var result error
	if err := e.fetchDependencies(context.WithoutCancel(ctx), p, downloader); err != nil {
		result = fmt.Errorf("%w: %w", ErrDependenciesIncomplete, err)
	}
	if err := e.host.Activate(ctx, p.Title(), p.Destination.ArtifactPath, installs(p)); err != nil {
		result = combine(result, fmt.Errorf("activate %s: %w", p.Title(), err))
	}
	if result == nil {
		log.WithField("artifact", p.Title()).Infof("installed %s", p.Artifact.Identity.Version)
	}
	return result
}

// RepairDependencies rewrites dependencies and asset files of an already finalized
// artifact: release, download, reactivate.
func (e *Executor) RepairDependencies(ctx context.Context, p *payload.Payload) error {
	unlock := e.lock(p)
	defer unlock()

	downloader, err := e.downloaders(p.FileHost)
	if err != nil {
		return fmt.Errorf("select downloader for %s: %w", p.Title(), err)
	}
	if err := e.host.Deactivate(ctx, p.Title(), p.Destination.ArtifactPath, installs(p)); err != nil {
		return fmt.Errorf("release %s from host: %w", p.Title(), err)
	}

	ctx = context.WithoutCancel(ctx)
	var result error
	if err := e.fetchDependencies(ctx, p, downloader); err != nil {
		result = fmt.Errorf("%w: %w", ErrDependenciesIncomplete, err)
	} else {
		log.WithField("artifact", p.Title()).Info("repaired dependencies")
	}
	return e.reactivate(ctx, p, result)
}

// Recover restores a destination left behind by an interrupted update. It returns true
// when anything was repaired.
func (e *Executor) Recover(p *payload.Payload) (bool, error) {
	unlock := e.lock(p)
	defer unlock()
	return e.recover(p)
}

func (e *Executor) reactivate(ctx context.Context, p *payload.Payload, result error) error {
	if err := e.host.Activate(ctx, p.Title(), p.Destination.ArtifactPath, installs(p)); err != nil {
		return combine(result, fmt.Errorf("reactivate %s: %w", p.Title(), err))
	}
	return result
}
