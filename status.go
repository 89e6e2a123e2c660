package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hostmirror/hostmirror/internal/debrid"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show account and mirror status",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.store.Close()

	ctx := cmd.Context()

	user, err := svc.service.User(ctx)

	switch {
	case errors.Is(err, debrid.ErrNotLoggedIn):
		statusf("Account: not linked (run `hostmirror login`)\n")
	case err != nil:
		statusf("Account: unreachable (%v)\n", err)
	default:
		statusf("Account: %s (%s)\n", user.Username, user.Type)
	}

	lastSync, err := svc.store.LastSync(ctx, flagAccount)
	if err != nil {
		return err
	}

	if lastSync.IsZero() {
		statusf("Last sync: never (next run will be a full sync)\n")
	} else {
		statusf("Last sync: %s\n", lastSync.Format("2006-01-02 15:04:05"))
	}

	snap := svc.engine.Status()
	statusf("Job: %s\n", snap.Status)

	return nil
}
