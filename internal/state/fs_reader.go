package state

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/versions"
)

// FilesystemReader reads state from the records persisted next to each artifact.
type FilesystemReader struct{}

// Read implements Reader. A record that cannot be decoded is an error; a missing one
// is not.
func (r *FilesystemReader) Read(p *payload.Payload) (*ArtifactState, error) {
	s := &ArtifactState{
		ID:           p.ID(),
		Title:        p.Title(),
		ArtifactPath: p.Destination.ArtifactPath,
		Installed:    exists(p.Destination.ArtifactPath),
		Interrupted:  exists(p.Destination.TempArtifactPath),
	}

	record, err := manifest.ReadArtifactRecord(p.ArtifactRecordPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact record: %w", err)
	}
	if record != nil {
		s.Deployed = record.Identity.Version
	}

	s.Info, err = manifest.ReadQueryInfoRecord(p.QueryInfoRecordPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read update record: %w", err)
	}

	s.Versions, err = versions.NewManager(p.Destination.ParentDirectory, s.Deployed).List()
	if err != nil {
		// Non-fatal, the records are what matter
		log.Warnf("could not list versions of %s: %v", p.Title(), err)
	}
	return s, nil
}

// ReadAll reads every payload. A payload that fails is logged and left out.
func ReadAll(r Reader, payloads []*payload.Payload) Report {
	report := make(Report, 0, len(payloads))
	for _, p := range payloads {
		s, err := r.Read(p)
		if err != nil {
			log.WithField("artifact", p.Title()).Errorf("could not read deployed state: %v", err)
			continue
		}
		report = append(report, s)
	}
	return report
}
