// Command usermover grants legacy users their stores: it reads tbl_users and
// tbl_store, resolves each user's consolidation groups or serial numbers to
// store mids and writes the pairs to the join table.
//
// Usage:
//
//	usermover run --config job.json [--dry-run]
//	usermover validate --config job.json
//	usermover kinds
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// register all backends with the storage factory.
	// the job file selects one, but every kind is built in.
	_ "usermover/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "usermover: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "usermover",
		Short:         "Move legacy user store grants into the store/user join table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd(), newKindsCmd())
	return root
}
