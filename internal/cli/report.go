package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/AI-Template-SDK/senso-batchfix/internal/reconcile"
)

// renderReport prints the final summary. Dry-run output carries a prefix
// but keeps the exact line shape of a real run so the two can be diffed.
func renderReport(w io.Writer, report reconcile.Report) {
	prefix := ""
	if report.DryRun {
		prefix = "[DRY RUN] "
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "FINAL SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "%sScope kind: %s\n", prefix, report.Scope)
	fmt.Fprintf(w, "%sEntities processed: %d\n", prefix, report.EntitiesProcessed)
	fmt.Fprintf(w, "%sBatches created: %d\n", prefix, report.BatchesCreated)
	fmt.Fprintf(w, "%sBatches reused: %d\n", prefix, report.BatchesReused)
	fmt.Fprintf(w, "%sQuestion runs updated: %d of %d requested\n", prefix, report.RunsAssigned, report.RunsRequested)

	if len(report.Failures) > 0 {
		fmt.Fprintf(w, "Failures: %d\n", len(report.Failures))
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  - %s %s: %s\n", report.Scope, f.ScopeID, f.Error)
		}
	}
}
