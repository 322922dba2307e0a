package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/AI-Template-SDK/senso-batchfix/internal/config"
	"github.com/AI-Template-SDK/senso-batchfix/internal/database"
	"github.com/AI-Template-SDK/senso-batchfix/internal/logging"
	"github.com/AI-Template-SDK/senso-batchfix/internal/metrics"
	"github.com/AI-Template-SDK/senso-batchfix/internal/models"
	"github.com/AI-Template-SDK/senso-batchfix/internal/reconcile"
	"github.com/spf13/cobra"
)

// RunReconcile drives a full reconciliation pass. Missing configuration or
// an unreachable database abort with a non-zero exit; per-entity failures
// are part of the report and leave the exit code untouched.
func RunReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	scopeFlag, err := cmd.Flags().GetString("scope")
	if err != nil {
		return fmt.Errorf("failed to read --scope flag: %w", err)
	}
	kind, err := models.ParseScopeKind(scopeFlag)
	if err != nil {
		return err
	}

	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("failed to read --dry-run flag: %w", err)
	}
	entity, err := cmd.Flags().GetString("entity")
	if err != nil {
		return fmt.Errorf("failed to read --entity flag: %w", err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("failed to read --json flag: %w", err)
	}
	metricsAddr, err := cmd.Flags().GetString("metrics-addr")
	if err != nil {
		return fmt.Errorf("failed to read --metrics-addr flag: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database connected")

	collector, err := metrics.NewReconcileCollector()
	if err != nil {
		return fmt.Errorf("failed to build metrics collector: %w", err)
	}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	runner, err := reconcile.NewRunner(reconcile.RunnerConfig{
		Store:    database.NewRunBatchRepository(db),
		Kind:     kind,
		DryRun:   dryRun,
		Logger:   logger,
		Observer: collector,
	})
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, entity)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	renderReport(os.Stdout, report)
	return nil
}
