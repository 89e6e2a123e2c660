package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hostmirror/hostmirror/internal/sync"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass against the remote library",
		Long: `Fetch the remote file listing and reconcile it with the local mirror.
The first run is a full sync; later runs are incremental, considering only
files modified since the last successful pass. Interrupt with Ctrl-C to
cancel cooperatively.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan sync.Snapshot, 1)

	unsubscribe := svc.engine.Subscribe(func(snap sync.Snapshot) {
		switch snap.Status {
		case sync.StatusRunning:
			if snap.Progress.Total > 0 {
				statusf("\r%3d%%  %d/%d  %s",
					snap.Progress.Percentage, snap.Progress.Processed,
					snap.Progress.Total, snap.Progress.CurrentLabel)
			}
		case sync.StatusCompleted, sync.StatusError, sync.StatusIdle:
			select {
			case done <- snap:
			default:
			}
		}
	})
	defer unsubscribe()

	if _, err := svc.engine.Start(flagAccount, sync.Overrides{}); err != nil {
		return err
	}

	var final sync.Snapshot

	select {
	case final = <-done:
	case <-ctx.Done():
		statusf("\nCancelling...\n")

		if err := svc.engine.Cancel(); err == nil {
			final = <-done
		}
	}

	statusf("\n")

	switch final.Status {
	case sync.StatusCompleted:
		statusf("Sync complete: %d added, %d updated, %d duplicates, %d deleted, %d errors.\n",
			final.Stats.Added, final.Stats.Updated, final.Stats.Duplicates,
			final.Stats.Deleted, final.Stats.Errors)

		return nil
	case sync.StatusIdle:
		statusf("Sync cancelled.\n")
		return nil
	default:
		return fmt.Errorf("sync failed: %s", final.Message)
	}
}
