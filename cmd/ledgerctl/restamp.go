package main

import (
	"fmt"

	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
	"github.com/mmdatafocus/backoffice/workflow"
	"github.com/spf13/cobra"
)

var restampCmd = &cobra.Command{
	Use:   "restamp-currency",
	Short: "Restamp a tenant's transactions with its currency symbol",
	Long: `Sets the tenant currency (when --symbol is given) and restamps every
transaction carrying a different symbol. Amounts are not converted.`,
	Example: `  ledgerctl restamp-currency --tenant=acme --symbol=₦
  ledgerctl restamp-currency --tenant=acme`,
	RunE: runRestamp,
}

func init() {
	rootCmd.AddCommand(restampCmd)
	restampCmd.Flags().String("tenant", "", "Tenant to restamp")
	restampCmd.Flags().String("symbol", "", "New currency symbol (default: the tenant's current symbol)")
	restampCmd.Flags().String("code", "", "ISO currency code (default: derived from the symbol)")
}

func runRestamp(cmd *cobra.Command, args []string) error {
	tenant, _ := cmd.Flags().GetString("tenant")
	symbol, _ := cmd.Flags().GetString("symbol")
	code, _ := cmd.Flags().GetString("code")
	if tenant == "" {
		return fmt.Errorf("%w: --tenant is required", utils.ErrInvalidInput)
	}
	result, err := workflow.RestampCurrency(cmd.Context(), app.db, app.directory, models.SystemScope(tenant), symbol, code)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}
