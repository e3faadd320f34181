// Package payload bundles the manifests of one deployable artifact with its resolved destination.
package payload

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adamancini/autodeploy/internal/destination"
	"github.com/adamancini/autodeploy/internal/manifest"
)

// Payload is the unit of work for the deployment engine. It is built fresh for every
// check cycle and is never mutated after construction.
type Payload struct {
	FileHost    manifest.FileHost
	Deployment  manifest.Deployment
	Artifact    manifest.Artifact
	Destination destination.Destination
}

// New validates the manifests and resolves the destination.
func New(host manifest.FileHost, d *manifest.Deployment, a *manifest.Artifact, roots destination.Roots) (*Payload, error) {
	if d == nil {
		return nil, fmt.Errorf("deployment manifest is required")
	}
	if a == nil {
		return nil, fmt.Errorf("artifact manifest is required")
	}
	if err := manifest.Validate("deployment", d); err != nil {
		return nil, err
	}
	if err := manifest.Validate("artifact", a); err != nil {
		return nil, err
	}
	if a.Identity.Version.IsZero() {
		return nil, &manifest.ValidationError{Kind: "artifact", Fields: []string{"AddIn.Identity.Version: failed 'required'"}}
	}

	dest, err := destination.Resolve(roots, destination.Input{
		Basis:         d.Settings.DeploymentBasis,
		Manufacturer:  d.Description.Manufacturer,
		Product:       d.Description.Product,
		HostBitness:   d.TargetHostBitness,
		Version:       a.Identity.Version.String(),
		ArtifactName:  a.Identity.Name,
		FileExtension: a.Identity.FileExtension,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve destination for %s: %w", a.Identity.DisplayTitle(), err)
	}

	p := &Payload{
		FileHost:    host,
		Deployment:  *d,
		Artifact:    *a,
		Destination: *dest,
	}
	if err := p.validatePlacements(); err != nil {
		return nil, fmt.Errorf("resolve files for %s: %w", a.Identity.DisplayTitle(), err)
	}
	return p, nil
}

// validatePlacements checks every manifest-supplied file name and subdirectory and
// rejects targets outside the parent directory.
func (p *Payload) validatePlacements() error {
	checkPlacement := func(field string, placement manifest.Placement) error {
		if placement.NextToArtifact || strings.TrimSpace(placement.SubDirectory) == "" {
			return nil
		}
		return destination.ValidateRelative(field+" subdirectory", placement.SubDirectory)
	}
	checkTarget := func(field, target string) error {
		if !destination.Contains(p.Destination.ParentDirectory, target) {
			return destination.ValidationError{Field: field, Message: fmt.Sprintf("target %s is outside %s", target, p.Destination.ParentDirectory)}
		}
		return nil
	}
	checkAssets := func(assets []manifest.AssetFile) error {
		for _, asset := range assets {
			if err := destination.ValidateComponent("asset file name", asset.Name); err != nil {
				return err
			}
			if err := checkPlacement("asset file", asset.Placement); err != nil {
				return err
			}
			if err := checkTarget("asset file "+asset.Name, p.AssetPath(asset)); err != nil {
				return err
			}
		}
		return nil
	}

	for _, dep := range p.Artifact.Dependencies {
		if err := destination.ValidateComponent("dependency name", dep.Identity.Name); err != nil {
			return err
		}
		path := p.DependencyPath(dep)
		if err := destination.ValidateComponent("dependency file name", filepath.Base(path)); err != nil {
			return err
		}
		if err := checkPlacement("dependency", dep.Placement); err != nil {
			return err
		}
		if err := checkTarget("dependency "+dep.Identity.Name, path); err != nil {
			return err
		}
		if err := checkAssets(dep.AssetFiles); err != nil {
			return err
		}
	}
	return checkAssets(p.Artifact.AssetFiles)
}

// ID identifies the payload across cycles. It is stable while the artifact keeps its
// name and install location, whatever its version.
func (p *Payload) ID() string {
	return filepath.Join(p.Destination.ParentDirectory, p.Destination.ArtifactFileName)
}

// Title returns the artifact title used in messages and host install calls.
func (p *Payload) Title() string {
	return p.Artifact.Identity.DisplayTitle()
}

// ArtifactRecordPath returns where the deployed artifact manifest is persisted.
func (p *Payload) ArtifactRecordPath() string {
	return manifest.ArtifactRecordPath(p.Destination.ParentDirectory, p.Artifact.Identity.Name)
}

// QueryInfoRecordPath returns where the UpdateQueryInfo is persisted.
func (p *Payload) QueryInfoRecordPath() string {
	return manifest.QueryInfoRecordPath(p.Destination.ParentDirectory, p.Artifact.Identity.Name)
}

// DependencyPath returns the target path of a dependency file.
func (p *Payload) DependencyPath(dep manifest.Dependency) string {
	name := dep.Identity.Name
	if ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(dep.Identity.FileExtension), ".")); ext != "" {
		name += "." + ext
	}
	return p.placedPath(dep.Placement, name)
}

// AssetPath returns the target path of an asset file.
func (p *Payload) AssetPath(asset manifest.AssetFile) string {
	return p.placedPath(asset.Placement, asset.Name)
}

func (p *Payload) placedPath(placement manifest.Placement, name string) string {
	switch {
	case placement.NextToArtifact:
		return filepath.Join(p.Destination.ParentDirectory, name)
	case strings.TrimSpace(placement.SubDirectory) != "":
		return filepath.Join(p.Destination.WorkingDirectory, placement.SubDirectory, name)
	default:
		return filepath.Join(p.Destination.WorkingDirectory, name)
	}
}

// UsesEventTrigger reports whether the payload is watched for file-share changes.
func (p *Payload) UsesEventTrigger() bool {
	return p.FileHost.HostType.IsFileServer() && p.Deployment.Settings.UpdateBehavior.RealTime
}
