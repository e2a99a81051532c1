// Command ledgerctl is the operator CLI of the ledger engine: projection re-syncs, ledger
// backfills, currency restamps, on-demand reports and the notification listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmdatafocus/backoffice/utils"
)

const (
	exitOK             = 0
	exitInvalid        = 1
	exitTenantNotFound = 2
	exitPartialFailure = 3
)

// partialFailure is returned by bulk commands that finished with failed items.
type partialFailure struct {
	failed int
}

func (e *partialFailure) Error() string {
	return fmt.Sprintf("%d items failed", e.failed)
}

func exitCode(err error) int {
	var partial *partialFailure
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &partial):
		return exitPartialFailure
	case errors.Is(err, utils.ErrTenantNotFound):
		return exitTenantNotFound
	default:
		return exitInvalid
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
	}
	os.Exit(exitCode(err))
}
