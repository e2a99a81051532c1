package main

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/models/reports"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate and store a financial report",
	Long: `Generates an income statement for --from..--to, or a balance sheet as of
--to, stores it and prints the payload.`,
	Example: `  ledgerctl report --kind=income_statement --tenant=acme --from=2025-01-01 --to=2025-03-31
  ledgerctl report --kind=balance_sheet --tenant=acme --to=2025-03-31 --archive`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("kind", string(models.ReportKindIncomeStatement), "income_statement or balance_sheet")
	reportCmd.Flags().String("tenant", "", "Tenant to report on")
	reportCmd.Flags().String("from", "", "First day of the period (income statement)")
	reportCmd.Flags().String("to", "", "Last day of the period, or the as-of date of a balance sheet (default: today)")
	reportCmd.Flags().Bool("archive", false, "Also archive the payload to REPORT_ARCHIVE_BUCKET")
}

type reportOutput struct {
	ReportId   string  `json:"report_id"`
	ArchiveURL *string `json:"archive_url,omitempty"`
	Report     any     `json:"report"`
}

func runReport(cmd *cobra.Command, args []string) error {
	kindFlag, _ := cmd.Flags().GetString("kind")
	tenant, _ := cmd.Flags().GetString("tenant")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	archive, _ := cmd.Flags().GetBool("archive")

	if tenant == "" {
		return fmt.Errorf("%w: --tenant is required", utils.ErrInvalidInput)
	}
	kind, err := models.ParseReportKind(kindFlag)
	if err != nil {
		return err
	}
	if kind != models.ReportKindIncomeStatement && kind != models.ReportKindBalanceSheet {
		return fmt.Errorf("%w: report kind %s is not generated", utils.ErrInvalidInput, kind)
	}
	end := utils.DateOnly(time.Now().UTC())
	if to != "" {
		if end, err = utils.ParseDate(to); err != nil {
			return err
		}
	}

	generator := reports.NewGenerator(app.db, app.directory, app.sources.Invoices, app.sources.Payables).WithSettings(app.settings)
	if archive {
		if app.settings.ReportArchiveBucket == "" {
			return fmt.Errorf("%w: --archive needs REPORT_ARCHIVE_BUCKET", utils.ErrInvalidInput)
		}
		generator = generator.WithArchiver(reports.GCSArchiver{Bucket: app.settings.ReportArchiveBucket})
	}

	ctx := cmd.Context()
	scope := models.SystemScope(tenant)
	var (
		payload any
		stored  *models.FinancialReport
	)
	switch kind {
	case models.ReportKindIncomeStatement:
		if from == "" {
			return fmt.Errorf("%w: --from is required for an income statement", utils.ErrInvalidInput)
		}
		start, err := utils.ParseDate(from)
		if err != nil {
			return err
		}
		payload, stored, err = generator.IncomeStatement(ctx, scope, start, end)
		if err != nil {
			return err
		}
	case models.ReportKindBalanceSheet:
		payload, stored, err = generator.BalanceSheet(ctx, scope, end)
		if err != nil {
			return err
		}
	}
	return printJSON(cmd, reportOutput{ReportId: stored.ID, ArchiveURL: stored.ArchiveURL, Report: payload})
}
