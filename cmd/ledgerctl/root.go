package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/upstream"
	"github.com/mmdatafocus/backoffice/workflow"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// engine holds the components shared by every command.
type engine struct {
	db        *gorm.DB
	settings  config.Settings
	directory *models.TenantDirectory
	store     *models.TransactionStore
	ledgers   *models.LedgerAggregator
	sources   upstream.Sources
	projector *workflow.Projector
}

var app *engine

func newEngine(db *gorm.DB, settings config.Settings) *engine {
	directory := models.NewTenantDirectory(db)
	sources := upstream.NewSources(db)
	store := models.NewTransactionStore(db, directory).WithSettings(settings)
	return &engine{
		db:        db,
		settings:  settings,
		directory: directory,
		store:     store,
		ledgers:   models.NewLedgerAggregator(db, directory, sources.Invoices, sources.Receipts).WithSettings(settings),
		sources:   sources,
		projector: workflow.NewProjector(store, workflow.Sources{
			Invoices:  sources.Invoices,
			Receipts:  sources.Receipts,
			JobOrders: sources.JobOrders,
			Waybills:  sources.Waybills,
		}),
	}
}

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Operator commands for the accounting ledger engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if app != nil {
			return nil
		}
		config.ConnectDatabaseWithRetry()
		config.ConnectRedisWithRetry(cmd.Context())
		models.MigrateTable()
		app = newEngine(config.GetDB(), config.LoadSettings())
		return nil
	},
}

// tenantIds resolves --tenant: one checked tenant, or every active tenant when empty.
func (e *engine) tenantIds(ctx context.Context, tenant string) ([]string, error) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return e.directory.ListTenantIds(ctx)
	}
	if _, err := e.directory.GetTenant(ctx, tenant); err != nil {
		return nil, err
	}
	return []string{tenant}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reportFailures(cmd *cobra.Command, failed int) error {
	if failed == 0 {
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d failed\n", failed)
	return &partialFailure{failed: failed}
}

func init() {
	rootCmd.SetErr(os.Stderr)
}
