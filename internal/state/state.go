// Package state reads what is currently deployed for a payload without changing anything.
package state

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/versions"
)

// ArtifactState is the deployed state of one payload.
type ArtifactState struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	ArtifactPath string `json:"artifact_path" yaml:"artifact_path"`
	// Installed reports whether the artifact file exists.
	Installed bool `json:"installed" yaml:"installed"`
	// Deployed is the version in the persisted artifact manifest. Zero when there is none.
	Deployed manifest.Version `json:"deployed_version" yaml:"deployed_version"`
	// Info is the persisted UpdateQueryInfo, nil before the first pass.
	Info *manifest.UpdateQueryInfo `json:"update_query_info,omitempty" yaml:"update_query_info,omitempty"`
	// Interrupted is set when a staged update was left behind by a crashed process.
	Interrupted bool                   `json:"interrupted" yaml:"interrupted"`
	Versions    []versions.VersionInfo `json:"versions,omitempty" yaml:"versions,omitempty"`
}

// Reader defines the interface for reading deployed state.
type Reader interface {
	Read(p *payload.Payload) (*ArtifactState, error)
}

// String renders the state for text output.
func (s *ArtifactState) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", s.Title)
	fmt.Fprintf(&b, "  path:       %s\n", s.ArtifactPath)
	if !s.Installed {
		b.WriteString("  installed:  no\n")
	} else {
		fmt.Fprintf(&b, "  deployed:   %s\n", orNone(s.Deployed.String()))
	}
	if s.Interrupted {
		b.WriteString("  warning:    interrupted update, recovered on the next pass\n")
	}
	if s.Info != nil {
		fmt.Fprintf(&b, "  available:  %s\n", orNone(s.Info.AvailableVersion.String()))
		fmt.Fprintf(&b, "  checked:    %s\n", formatTime(s.Info.LastChecked))
		if s.Info.UpdateAvailable {
			fmt.Fprintf(&b, "  update:     pending (mandatory: %t, restart: %t)\n", s.Info.IsMandatoryUpdate, s.Info.IsRestartRequired)
			fmt.Fprintf(&b, "  notified:   %s\n", formatTime(s.Info.LastNotified))
		}
		if s.Info.DependenciesPending {
			b.WriteString("  warning:    dependencies incomplete, repaired on the next pass\n")
		}
	}
	for _, v := range s.Versions {
		marker := ""
		if v.Current {
			marker = " (current)"
		}
		fmt.Fprintf(&b, "  version:    %s%s\n", v.Version, marker)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Report is the state of every payload.
type Report []*ArtifactState

// String renders every entry separated by a blank line.
func (r Report) String() string {
	if len(r) == 0 {
		return "No deployments."
	}
	parts := make([]string, len(r))
	for i, s := range r {
		parts[i] = s.String()
	}
	return strings.Join(parts, "\n\n")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
