package cmd

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adamancini/autodeploy/internal/output"
	"github.com/adamancini/autodeploy/internal/state"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the deployed state of every artifact",
		Long: `Status shows, for every deployment in the registry, the deployed version,
the last recorded update check and the working directories kept on disk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runStatus(ctx context.Context, stdout io.Writer) error {
	if _, err := output.ParseFormat(outputFormat); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	payloads, loadErrs, err := loadPayloads(ctx, cfg)
	if err != nil {
		return err
	}

	report := state.ReadAll(&state.FilesystemReader{}, payloads)
	if err := output.Print(stdout, outputFormat, report); err != nil {
		return err
	}

	for _, msg := range loadErrs {
		log.Warnf("registry: %s", msg)
	}
	return nil
}
