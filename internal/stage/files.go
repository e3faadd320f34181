package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/metrics"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/transport"
	"github.com/adamancini/autodeploy/internal/update"
)

// move is one file moved into the temp directory.
type move struct {
	from string
	to   string
}

// stage moves the artifact, its manifest record and every file declared next to it into
// the temp directory. The artifact always moves first. The returned moves are those that
// succeeded, even on error.
func (e *Executor) stage(p *payload.Payload) ([]move, error) {
	dest := p.Destination
	if err := os.MkdirAll(dest.TempDirectory, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dest.TempDirectory, err)
	}

	var moved []move
	for _, from := range colocatedFiles(p) {
		if !exists(from) {
			continue
		}
		to := filepath.Join(dest.TempDirectory, filepath.Base(from))
		if from == dest.ArtifactPath {
			to = dest.TempArtifactPath
		}
		if err := os.Rename(from, to); err != nil {
			return moved, fmt.Errorf("move %s aside: %w", filepath.Base(from), err)
		}
		moved = append(moved, move{from: from, to: to})
	}
	return moved, nil
}

// colocatedFiles lists the artifact first, then its record, then files the deployed and
// incoming manifests place next to the artifact.
func colocatedFiles(p *payload.Payload) []string {
	files := []string{p.Destination.ArtifactPath, p.ArtifactRecordPath()}
	seen := map[string]bool{files[0]: true, files[1]: true}
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	manifests := []*manifest.Artifact{&p.Artifact}
	if deployed, err := manifest.ReadArtifactRecord(p.ArtifactRecordPath()); err == nil && deployed != nil {
		manifests = append(manifests, deployed)
	}
	for _, a := range manifests {
		for _, dep := range a.Dependencies {
			if dep.Placement.NextToArtifact {
				add(p.DependencyPath(dep))
			}
			for _, asset := range dep.AssetFiles {
				if asset.Placement.NextToArtifact {
					add(p.AssetPath(asset))
				}
			}
		}
		for _, asset := range a.AssetFiles {
			if asset.Placement.NextToArtifact {
				add(p.AssetPath(asset))
			}
		}
	}
	return files
}

// rollback removes whatever was written at the artifact path and moves the staged files
// back. The temp directory is deleted only when every file made it back.
func (e *Executor) rollback(p *payload.Payload, staged []move) error {
	dest := p.Destination
	var result *multierror.Error

	if err := os.Remove(dest.ArtifactPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		result = multierror.Append(result, fmt.Errorf("remove new artifact: %w", err))
	}
	for i := len(staged) - 1; i >= 0; i-- {
		m := staged[i]
		if err := os.Rename(m.to, m.from); err != nil {
			result = multierror.Append(result, fmt.Errorf("restore %s: %w", filepath.Base(m.from), err))
		}
	}
	if result.ErrorOrNil() != nil {
		log.WithField("artifact", p.Title()).Errorf("rollback incomplete, keeping %s for recovery", dest.TempDirectory)
		return result.ErrorOrNil()
	}
	if err := os.RemoveAll(dest.TempDirectory); err != nil {
		log.Warnf("failed to remove %s: %v", dest.TempDirectory, err)
	}
	log.WithField("artifact", p.Title()).Info("rolled back to the previous version")
	return nil
}

// finalize deletes the temp directory, then records the new artifact manifest.
func (e *Executor) finalize(p *payload.Payload) error {
	if err := os.RemoveAll(p.Destination.TempDirectory); err != nil {
		return fmt.Errorf("remove %s: %w", p.Destination.TempDirectory, err)
	}
	if err := e.store.Serialize(&p.Artifact, p.ArtifactRecordPath()); err != nil {
		return fmt.Errorf("persist artifact manifest: %w", err)
	}
	return nil
}

// recover handles a temp directory left by a crash. When the artifact is missing but a
// staged copy exists, everything staged moves back. Otherwise the new artifact was
// already in place and the temp directory is discarded.
func (e *Executor) recover(p *payload.Payload) (bool, error) {
	dest := p.Destination
	if !exists(dest.TempDirectory) {
		return false, nil
	}
	logger := log.WithField("artifact", p.Title())

	if exists(dest.TempArtifactPath) && !exists(dest.ArtifactPath) {
		logger.Warnf("found interrupted update in %s, restoring previous version", dest.TempDirectory)
		entries, err := os.ReadDir(dest.TempDirectory)
		if err != nil {
			return false, fmt.Errorf("read %s: %w", dest.TempDirectory, err)
		}
		var result *multierror.Error
		for _, entry := range entries {
			from := filepath.Join(dest.TempDirectory, entry.Name())
			to := filepath.Join(dest.ParentDirectory, entry.Name())
			if from == dest.TempArtifactPath {
				to = dest.ArtifactPath
			}
			if exists(to) {
				continue
			}
			if err := os.Rename(from, to); err != nil {
				result = multierror.Append(result, fmt.Errorf("restore %s: %w", entry.Name(), err))
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			return false, err
		}
		metrics.Rollbacks.Inc()
	} else {
		logger.Warnf("discarding stale %s", dest.TempDirectory)
	}

	if err := os.RemoveAll(dest.TempDirectory); err != nil {
		return true, fmt.Errorf("remove %s: %w", dest.TempDirectory, err)
	}
	return true, nil
}

func (e *Executor) fetchArtifact(ctx context.Context, p *payload.Payload, d transport.Downloader) error {
	a := p.Artifact
	return fetch(ctx, d, a.URI, p.Destination.ArtifactPath, p.Destination.ArtifactFileName, a.Hash)
}

// fetchDependencies writes each dependency followed by its own asset files, then the
// artifact's asset files. The first failure stops the remaining downloads.
func (e *Executor) fetchDependencies(ctx context.Context, p *payload.Payload, d transport.Downloader) error {
	for _, dep := range p.Artifact.Dependencies {
		target := p.DependencyPath(dep)
		if err := fetch(ctx, d, dep.URI, target, filepath.Base(target), dep.Hash); err != nil {
			return err
		}
		for _, asset := range dep.AssetFiles {
			if err := fetch(ctx, d, asset.URI, p.AssetPath(asset), asset.Name, asset.Hash); err != nil {
				return err
			}
		}
	}
	for _, asset := range p.Artifact.AssetFiles {
		if err := fetch(ctx, d, asset.URI, p.AssetPath(asset), asset.Name, asset.Hash); err != nil {
			return err
		}
	}
	return nil
}

// fetch writes source to target. Hashed files are verified in memory before anything
// is written.
func fetch(ctx context.Context, d transport.Downloader, source, target, name string, hash *manifest.Hash) error {
	if hash == nil {
		if err := d.Download(ctx, source, target, true); err != nil {
			return fmt.Errorf("download %s: %w", name, err)
		}
		if info, err := os.Stat(target); err == nil {
			metrics.DownloadedBytes.Add(float64(info.Size()))
		}
		return nil
	}

	content, err := d.DownloadBytes(ctx, source)
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}
	if err := update.VerifyHash(name, content, hash); err != nil {
		return err
	}
	if err := transport.WriteFile(target, content, true); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	metrics.DownloadedBytes.Add(float64(len(content)))
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// combine joins the non-nil errors. A single error is returned as is.
func combine(errs ...error) error {
	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result == nil {
		return nil
	}
	if len(result.Errors) == 1 {
		return result.Errors[0]
	}
	return result
}
