package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Disconnect the account and remove the stored credential",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogout(cmd *cobra.Command, _ []string) error {
	holder, err := loadHolder(slog.Default())
	if err != nil {
		return err
	}

	logger := buildLogger(holder.Config().Logging)

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ClearCredential(cmd.Context(), flagAccount); err != nil {
		return fmt.Errorf("removing credential: %w", err)
	}

	statusf("Logged out.\n")

	return nil
}
