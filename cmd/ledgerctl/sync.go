package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/mmdatafocus/backoffice/workflow"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Re-project upstream records into transactions",
	Long: `Runs the event projector over every qualifying upstream record.

Records that already have an active transaction are skipped; with --force the
existing transaction is realigned with the upstream values instead.`,
	Example: `  ledgerctl sync --kind=invoice
  ledgerctl sync --kind=all --tenant=acme --force`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("kind", "all", "Source kind: invoice, receipt, job_order, waybill or all")
	syncCmd.Flags().Bool("force", false, "Repair existing projections instead of skipping them")
	syncCmd.Flags().String("tenant", "", "Only this tenant (default: every active tenant)")
}

func parseSyncKind(value string) (*models.SourceKind, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "all") {
		return nil, nil
	}
	kind, err := models.ParseSourceKind(value)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(workflow.SyncKinds, kind) {
		return nil, fmt.Errorf("%w: %s records are not projected", utils.ErrInvalidInput, kind)
	}
	return &kind, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	kindFlag, _ := cmd.Flags().GetString("kind")
	force, _ := cmd.Flags().GetBool("force")
	tenant, _ := cmd.Flags().GetString("tenant")

	kind, err := parseSyncKind(kindFlag)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	tenants, err := app.tenantIds(ctx, tenant)
	if err != nil {
		return err
	}

	results := make([]workflow.SyncResult, 0, len(tenants))
	failed := 0
	for _, id := range tenants {
		result, err := app.projector.SyncAll(ctx, models.SystemScope(id), kind, force)
		if err != nil {
			config.LogError(config.GetLogger(), "ledgerctl", "sync", "tenant sync", id, err)
			failed++
			continue
		}
		failed += result.Failed
		results = append(results, result)
	}
	if err := printJSON(cmd, results); err != nil {
		return err
	}
	return reportFailures(cmd, failed)
}
