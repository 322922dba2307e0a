package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the batchfix command tree.
func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "batchfix",
		Short: "Backfill question run batches by scope and day",
		Long: `Batchfix assigns pre-batch question runs to question run batches,
partitioned by owning scope (org or network) and calendar day of creation,
and keeps exactly one batch per scope flagged as latest.

The store connection comes from DATABASE_URL.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Assign unbatched question runs to per-day batches",
		RunE:  RunReconcile,
	}
	reconcileCmd.Flags().String("scope", "", "Scope kind to process: org|network (required)")
	reconcileCmd.Flags().Bool("dry-run", false, "Perform all reads and report intended effects without writing")
	reconcileCmd.Flags().String("entity", "", "Process only this scope entity id instead of discovering all")
	reconcileCmd.Flags().Bool("json", false, "Print the final report as JSON")
	reconcileCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address while running (e.g. :9090)")
	_ = reconcileCmd.MarkFlagRequired("scope")

	rootCmd.AddCommand(reconcileCmd)
	return rootCmd
}
