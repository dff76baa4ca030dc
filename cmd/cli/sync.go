package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvoronin-dev/pocketledger/internal/common"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued mutations now",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := ledger.Engine.Sync(cmd.Context())
		switch {
		case errors.Is(err, common.ErrSyncInProgress):
			fmt.Println("A sync pass is already running.")
			return nil
		case errors.Is(err, common.ErrNotAuthenticated):
			return fmt.Errorf("not logged in; run: pocketledger login")
		case errors.Is(err, common.ErrTokenExpired):
			return fmt.Errorf("session expired; run: pocketledger login")
		case err != nil:
			return fmt.Errorf("sync: %w", err)
		}

		fmt.Printf("Synced %d item(s).\n", res.SyncedItems)
		for _, e := range res.Errors {
			fmt.Printf("  dropped %s %s (%s): %s\n", e.Operation, e.Collection, e.EntryID, e.Reason)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		// one probe so status is current rather than last-observed
		ledger.Watcher.ProbeOnce(cmd.Context())

		st, err := ledger.Engine.Status(cmd.Context())
		if err != nil {
			return err
		}
		mode := "offline"
		if st.Online {
			mode = "online"
		}
		fmt.Printf("Server: %s (%s)\n", ledger.Config.ServerURL, mode)
		fmt.Printf("Pending mutations: %d\n", st.PendingCount)
		if st.LastSyncAt != nil {
			fmt.Printf("Last sync: %s\n", st.LastSyncAt.Local().Format(time.RFC1123))
		} else {
			fmt.Println("Last sync: never")
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run in the foreground, probing connectivity and syncing",
	Long: `Watch keeps the client running: it probes server reachability, replays the
queue as soon as connectivity returns, and repeats a sync pass periodically
while online. Stop with Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Watching for connectivity; Ctrl-C to stop.")
		ledger.Watcher.Run(ctx)
		return nil
	},
}
