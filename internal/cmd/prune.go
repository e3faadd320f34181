package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/output"
	"github.com/adamancini/autodeploy/internal/versions"
)

// prunedArtifact is the prune outcome for one artifact.
type prunedArtifact struct {
	Artifact string                 `json:"artifact" yaml:"artifact"`
	Deleted  []versions.VersionInfo `json:"deleted" yaml:"deleted"`
	Kept     int                    `json:"kept" yaml:"kept"`
	Error    string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

func newPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old working directories",
		Long: `Prune removes the working directories of versions that are no longer deployed,
keeping the newest --keep versions of every artifact. The deployed version is
never removed and counts toward --keep.

Examples:
  autodeploy prune              # Keep the newest 2 versions
  autodeploy prune --keep 1     # Keep only the deployed version`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), cmd.OutOrStdout(), keep)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", versions.DefaultKeepCount, "Number of versions to keep per artifact")

	return cmd
}

func runPrune(ctx context.Context, stdout io.Writer, keep int) error {
	if keep < 1 {
		return fmt.Errorf("--keep must be at least 1")
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	payloads, _, err := loadPayloads(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		results []prunedArtifact
		failed  int
	)
	for _, p := range payloads {
		entry := prunedArtifact{Artifact: p.Title()}

		var current manifest.Version
		record, err := manifest.ReadArtifactRecord(p.ArtifactRecordPath())
		if err != nil {
			entry.Error = err.Error()
			results = append(results, entry)
			failed++
			continue
		}
		if record != nil {
			current = record.Identity.Version
		}

		pruned, err := versions.NewManager(p.Destination.ParentDirectory, current).Prune(keep)
		if err != nil {
			entry.Error = err.Error()
			failed++
		} else {
			entry.Deleted = pruned.Deleted
			entry.Kept = pruned.Kept
		}
		results = append(results, entry)
	}

	if format == output.FormatText {
		printPruneText(stdout, results)
	} else if err := output.NewWriter(stdout, format).Write(results); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if failed > 0 {
		return fmt.Errorf("failed to prune %d artifacts", failed)
	}
	return nil
}

func printPruneText(w io.Writer, results []prunedArtifact) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(w, "No deployments.")
		return
	}
	for _, r := range results {
		switch {
		case r.Error != "":
			_, _ = fmt.Fprintf(w, "%s: %s\n", r.Artifact, r.Error)
		case len(r.Deleted) == 0:
			_, _ = fmt.Fprintf(w, "%s: nothing to prune (%d kept)\n", r.Artifact, r.Kept)
		default:
			_, _ = fmt.Fprintf(w, "%s: removed %d, kept %d\n", r.Artifact, len(r.Deleted), r.Kept)
			for _, v := range r.Deleted {
				_, _ = fmt.Fprintf(w, "  - %s\n", v.Version)
			}
		}
	}
}
