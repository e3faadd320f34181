// Package registry resolves the deployment registry into deployment payloads.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/destination"
	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/transport"
	"github.com/adamancini/autodeploy/internal/types"
)

// PayloadSource produces fresh payloads for every check cycle.
type PayloadSource interface {
	Load(ctx context.Context) ([]*payload.Payload, error)
	Refresh(ctx context.Context, id string) (*payload.Payload, error)
}

// Source reads the registry and the manifests it points at.
type Source struct {
	uri   string
	roots destination.Roots
	opts  transport.Options
}

// NewSource creates a source for the registry at uri.
func NewSource(uri string, roots destination.Roots, opts transport.Options) *Source {
	return &Source{uri: uri, roots: roots, opts: opts}
}

// URI returns the registry location.
func (s *Source) URI() string {
	return s.uri
}

// Load builds one payload per published deployment. A deployment that cannot be
// resolved is skipped; its error is part of the returned multierror, and the payloads
// that did resolve are still returned.
func (s *Source) Load(ctx context.Context) ([]*payload.Payload, error) {
	reg, err := s.registry(ctx)
	if err != nil {
		return nil, err
	}

	var (
		payloads []*payload.Payload
		errs     *multierror.Error
	)
	for i, entry := range reg.PublishedDeployments {
		p, err := s.resolve(ctx, entry)
		if err != nil {
			log.WithField("manifest", entry.ManifestURI).Errorf("skipping deployment: %v", err)
			errs = multierror.Append(errs, fmt.Errorf("deployment %d (%s): %w", i+1, entry.ManifestURI, err))
			continue
		}
		payloads = append(payloads, p)
	}
	return payloads, errs.ErrorOrNil()
}

// Refresh rebuilds the payload with the given ID.
func (s *Source) Refresh(ctx context.Context, id string) (*payload.Payload, error) {
	payloads, err := s.Load(ctx)
	for _, p := range payloads {
		if p.ID() == id {
			return p, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("deployment %s is no longer published", id)
}

func (s *Source) registry(ctx context.Context) (*manifest.Registry, error) {
	host := manifest.FileHost{HostType: types.FileHostFileServer}
	if isURL(s.uri) {
		host.HostType = types.FileHostWebServer
	}
	d, err := transport.ForHost(host, s.opts)
	if err != nil {
		return nil, err
	}

	reg, err := manifest.Deserialize[manifest.Registry](ctx, manifest.NewFileStore(d), s.uri)
	if err != nil {
		return nil, fmt.Errorf("failed to load deployment registry: %w", err)
	}
	if err := manifest.Validate("registry", reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *Source) resolve(ctx context.Context, entry manifest.PublishedDeployment) (*payload.Payload, error) {
	d, err := transport.ForHost(entry.FileHost, s.opts)
	if err != nil {
		return nil, err
	}
	store := manifest.NewFileStore(d)

	deploymentURI := Resolve(s.uri, entry.ManifestURI)
	deployment, err := manifest.Deserialize[manifest.Deployment](ctx, store, deploymentURI)
	if err != nil {
		return nil, withMountHint(entry.FileHost, err)
	}
	deployment.ArtifactURI = Resolve(deploymentURI, deployment.ArtifactURI)

	artifact, err := manifest.Deserialize[manifest.Artifact](ctx, store, deployment.ArtifactURI)
	if err != nil {
		return nil, withMountHint(entry.FileHost, err)
	}
	resolveArtifactURIs(artifact, deployment.ArtifactURI)

	return payload.New(entry.FileHost, deployment, artifact, s.roots)
}

func resolveArtifactURIs(a *manifest.Artifact, base string) {
	a.URI = Resolve(base, a.URI)
	for i := range a.Dependencies {
		dep := &a.Dependencies[i]
		dep.URI = Resolve(base, dep.URI)
		for j := range dep.AssetFiles {
			dep.AssetFiles[j].URI = Resolve(base, dep.AssetFiles[j].URI)
		}
	}
	for i := range a.AssetFiles {
		a.AssetFiles[i].URI = Resolve(base, a.AssetFiles[i].URI)
	}
}

func withMountHint(host manifest.FileHost, err error) error {
	if host.HostType.IsFileServer() && host.RequiresAuthentication {
		return fmt.Errorf("%w (the file share requires authentication: mount it with valid credentials before starting the agent)", err)
	}
	return err
}

// Resolve interprets ref relative to the manifest at base. Absolute paths and URLs are
// returned unchanged.
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || isURL(ref) || strings.HasPrefix(strings.ToLower(ref), "file://") || filepath.IsAbs(ref) || isUNC(ref) {
		return ref
	}

	if isURL(base) {
		b, err := url.Parse(base)
		if err != nil {
			return ref
		}
		r, err := url.Parse(filepath.ToSlash(ref))
		if err != nil {
			return ref
		}
		return b.ResolveReference(r).String()
	}
	return filepath.Join(filepath.Dir(manifest.LocalPath(base)), ref)
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func isUNC(s string) bool {
	return strings.HasPrefix(s, `\\`) || strings.HasPrefix(s, "//")
}
