package main

import (
	"time"

	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill-ledgers",
	Short: "Rebuild monthly ledgers from transactions",
	Long: `Rebuilds every monthly ledger between a tenant's earliest and latest
non-void transaction. Each month commits on its own.`,
	Example: `  ledgerctl backfill-ledgers --tenant=acme --verify`,
	RunE:    runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().String("tenant", "", "Only this tenant (default: every active tenant)")
	backfillCmd.Flags().Bool("refresh-outstanding", false, "Also refresh outstanding invoices and pending receipts")
	backfillCmd.Flags().Bool("verify", false, "Check every rebuilt month against its transactions")
}

type backfillResult struct {
	TenantId   string   `json:"tenant_id"`
	Months     int      `json:"months"`
	Refreshed  int      `json:"refreshed,omitempty"`
	Mismatches []string `json:"mismatches,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func runBackfill(cmd *cobra.Command, args []string) error {
	tenant, _ := cmd.Flags().GetString("tenant")
	refresh, _ := cmd.Flags().GetBool("refresh-outstanding")
	verify, _ := cmd.Flags().GetBool("verify")

	ctx := cmd.Context()
	tenants, err := app.tenantIds(ctx, tenant)
	if err != nil {
		return err
	}
	logger := config.GetLogger()
	results := make([]backfillResult, 0, len(tenants))
	failed := 0
	for _, id := range tenants {
		result := backfillResult{TenantId: id}
		if err := backfillTenant(cmd, id, refresh, verify, &result); err != nil {
			config.LogError(logger, "ledgerctl", "backfill-ledgers", "tenant backfill", id, err)
			result.Error = err.Error()
			failed++
		}
		failed += len(result.Mismatches)
		results = append(results, result)
	}
	if err := printJSON(cmd, results); err != nil {
		return err
	}
	return reportFailures(cmd, failed)
}

func backfillTenant(cmd *cobra.Command, tenantId string, refresh bool, verify bool, result *backfillResult) error {
	ctx := cmd.Context()
	scope := models.SystemScope(tenantId)
	unlock, err := utils.TenantLock(ctx, tenantId, "LedgerBackfill", 30*time.Minute, "ledgerctl", "backfill-ledgers")
	if err != nil {
		return err
	}
	defer unlock()

	months, err := app.ledgers.Backfill(ctx, scope)
	result.Months = months
	if err != nil {
		return err
	}
	if !refresh && !verify {
		return nil
	}
	rows, err := app.ledgers.List(ctx, scope, 0)
	if err != nil {
		return err
	}
	for _, row := range rows {
		month := time.Month(row.Month)
		if refresh {
			if _, err := app.ledgers.RefreshOutstanding(ctx, scope, row.Year, month); err != nil {
				return err
			}
			result.Refreshed++
		}
		if verify {
			if err := app.ledgers.Verify(ctx, scope, row.Year, month); err != nil {
				if utils.KindOf(err) != "Internal" {
					return err
				}
				result.Mismatches = append(result.Mismatches, err.Error())
			}
		}
	}
	return nil
}
