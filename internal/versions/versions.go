// Package versions manages the per-version working directories next to a deployed artifact.
package versions

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/destination"
	"github.com/adamancini/autodeploy/internal/manifest"
)

// VersionInfo provides summary information about a working directory.
type VersionInfo struct {
	Version manifest.Version `json:"version" yaml:"version"`
	Path    string           `json:"path" yaml:"path"`
	ModTime time.Time        `json:"modified" yaml:"modified"`
	Size    int64            `json:"size" yaml:"size"`
	Current bool             `json:"current" yaml:"current"`
}

// Manager handles the working directories under one artifact's parent directory.
type Manager struct {
	parentDir string
	current   manifest.Version
}

// NewManager creates a manager for parentDir. The current version is never removed.
func NewManager(parentDir string, current manifest.Version) *Manager {
	return &Manager{parentDir: parentDir, current: current}
}

// List returns the working directories sorted by version, newest first. Directories
// whose name is not a version are ignored.
func (m *Manager) List() ([]VersionInfo, error) {
	entries, err := os.ReadDir(m.parentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []VersionInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", m.parentDir, err)
	}

	var versions []VersionInfo
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == destination.TempDirName {
			continue
		}
		v, err := manifest.ParseVersion(entry.Name())
		if err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(m.parentDir, entry.Name())
		versions = append(versions, VersionInfo{
			Version: v,
			Path:    path,
			ModTime: info.ModTime(),
			Size:    dirSize(path),
			Current: v.Equal(m.current),
		})
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[j].Version.LessThan(versions[i].Version)
	})
	return versions, nil
}

// Delete removes the working directory of version.
func (m *Manager) Delete(version manifest.Version) error {
	if version.IsZero() {
		return fmt.Errorf("version is required")
	}
	if version.Equal(m.current) {
		return fmt.Errorf("refusing to delete the deployed version %s", version)
	}

	path := filepath.Join(m.parentDir, version.String())
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("version not found: %s", version)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete version %s: %w", version, err)
	}
	return nil
}

// RemoveDeprecated removes the working directory of a superseded version. A missing
// directory is not an error.
func (m *Manager) RemoveDeprecated(old manifest.Version) error {
	if old.IsZero() || old.Equal(m.current) {
		return nil
	}
	if !dirExists(filepath.Join(m.parentDir, old.String())) {
		log.WithField("version", old.String()).Debug("no working directory to remove")
		return nil
	}
	return m.Delete(old)
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
