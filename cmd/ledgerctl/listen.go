package main

import (
	"github.com/mmdatafocus/backoffice/config"
	"github.com/mmdatafocus/backoffice/workflow"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Project upstream notifications from Pub/Sub",
	Long: `Receives upstream change notifications from a Pub/Sub subscription and
projects them until interrupted.`,
	Example: `  ledgerctl listen --subscription=ledger-events`,
	RunE:    runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().String("subscription", "", "Subscription name (default: LEDGER_EVENTS_SUBSCRIPTION)")
	listenCmd.Flags().Int("max-outstanding", 10, "Messages handled concurrently")
}

func runListen(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("subscription")
	maxOutstanding, _ := cmd.Flags().GetInt("max-outstanding")
	if name == "" {
		name = app.settings.EventsSubscription
	}

	ctx := cmd.Context()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	defer config.ClosePubSub()
	sub, err := config.GetSubscription(ctx, client, name)
	if err != nil {
		return err
	}
	config.GetLogger().WithField("subscription", name).Info("listening for ledger events")
	return workflow.NewDispatcher(app.projector).Listen(ctx, sub, maxOutstanding)
}
