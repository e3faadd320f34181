package cmd

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"github.com/adamancini/autodeploy/internal/output"
)

var (
	buildCommit = "none"
	buildDate   = "unknown"
)

// versionInfo is the build information printed by version.
type versionInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
	Go      string `json:"go" yaml:"go"`
	OS      string `json:"os" yaml:"os"`
	Arch    string `json:"arch" yaml:"arch"`
}

func (v versionInfo) String() string {
	return fmt.Sprintf("autodeploy version %s (commit %s, built %s, %s %s/%s)",
		v.Version, v.Commit, v.Date, v.Go, v.OS, v.Arch)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return output.Print(cmd.OutOrStdout(), outputFormat, versionInfo{
				Version: autodeployVersion,
				Commit:  buildCommit,
				Date:    buildDate,
				Go:      goruntime.Version(),
				OS:      goruntime.GOOS,
				Arch:    goruntime.GOARCH,
			})
		},
	}
}
