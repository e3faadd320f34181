package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adamancini/autodeploy/internal/deploy"
	"github.com/adamancini/autodeploy/internal/metrics"
	"github.com/adamancini/autodeploy/internal/output"
)

func newRunCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deploy, update and monitor the published artifacts",
		Long: `Run performs the host startup sequence: it loads the registry, runs one
deployment pass over every published artifact and then keeps monitoring them,
on a timer or by watching the manifests, until it receives SIGINT or SIGTERM.

On exit every artifact that is not marked always-installed is unloaded or
uninstalled from the host.

Use --once to run a single pass and exit without monitoring or releasing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), cmd.OutOrStdout(), once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run one deployment pass and exit")

	return cmd
}

// runAgent executes the startup pass, then blocks until a signal when monitoring.
func runAgent(ctx context.Context, stdout io.Writer, once bool) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		srv, err := metrics.Listen(cfg.Metrics.Listen)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	w, err := newWiring(cfg, once)
	if err != nil {
		return err
	}
	defer w.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, startErr := w.agent.OnHostStartup(ctx)
	if startErr != nil {
		log.Errorf("startup: %v", startErr)
	}
	if result != nil && !quiet {
		if err := writeResult(stdout, format, result); err != nil {
			return err
		}
	}
	if result == nil {
		return startErr
	}

	if once {
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d deployments failed", result.Failed, len(result.Operations))
		}
		return startErr
	}

	<-ctx.Done()
	log.Info("shutting down")

	// The signal context is already cancelled; releasing artifacts needs a live one.
	if err := w.agent.OnHostShutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// writeResult outputs a pass result in the selected format.
func writeResult(w io.Writer, format output.Format, result *deploy.Result) error {
	if format != output.FormatText {
		return output.NewWriter(w, format).Write(result)
	}

	for _, op := range result.Operations {
		line := fmt.Sprintf("%-8s %s", op.Action, op.Artifact)
		if op.Available != "" && op.Available != op.Deployed {
			line += fmt.Sprintf(" (%s -> %s)", orNone(op.Deployed), op.Available)
		} else if op.Deployed != "" {
			line += fmt.Sprintf(" (%s)", op.Deployed)
		}
		if op.Error != "" {
			line += ": " + op.Error
		}
		_, _ = fmt.Fprintln(w, line)
	}

	_, _ = fmt.Fprintf(w, "\nInstalled: %d, Updated: %d, Repaired: %d, Skipped: %d, Failed: %d\n",
		result.Installed, result.Updated, result.Repaired, result.Skipped, result.Failed)
	if result.Restarts > 0 {
		_, _ = fmt.Fprintln(w, "A host restart was requested.")
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
