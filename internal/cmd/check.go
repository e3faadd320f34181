package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/adamancini/autodeploy/internal/config"
	"github.com/adamancini/autodeploy/internal/diff"
	"github.com/adamancini/autodeploy/internal/output"
	"github.com/adamancini/autodeploy/internal/payload"
	"github.com/adamancini/autodeploy/internal/state"
)

// errChangesPending is returned by check --exit-code when a pass would change anything.
var errChangesPending = errors.New("deployments are not up to date")

func newCheckCmd() *cobra.Command {
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show what the next deployment pass would do (dry-run)",
		Long: `Check reads the registry and the deployed records and reports, for every
published artifact, whether the next pass would install, update, repair or
roll back an interrupted update. Nothing is downloaded or changed.

With --exit-code the command fails when any change is pending.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), exitCode)
		},
	}

	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit non-zero when changes are pending")

	return cmd
}

func runCheck(ctx context.Context, stdout io.Writer, exitCode bool) error {
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
	result := diff.Compute(payloads, report, newProbe(cfg))
	result.Errors = append(result.Errors, loadErrs...)

	if err := output.Print(stdout, outputFormat, result); err != nil {
		return err
	}

	install, update, repair, errs := result.Summary()
	if exitCode && install+update+repair+errs > 0 {
		return errChangesPending
	}
	return nil
}

// loadPayloads loads the registry. Entries that failed to resolve are returned as
// messages alongside the payloads that did.
func loadPayloads(ctx context.Context, cfg *config.Config) ([]*payload.Payload, []string, error) {
	source, _, err := newSource(cfg)
	if err != nil {
		return nil, nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payloads, err := source.Load(ctx)
	if err == nil {
		return payloads, nil, nil
	}
	if len(payloads) == 0 {
		return nil, nil, fmt.Errorf("load deployment registry: %w", err)
	}

	var messages []string
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			messages = append(messages, e.Error())
		}
	} else {
		messages = append(messages, err.Error())
	}
	return payloads, messages, nil
}
