package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hostmirror/hostmirror/internal/debrid"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Link your account via device-code authorization",
		Long: `Link your file-host account. A user code and verification URL are
displayed; open the URL in any browser, enter the code, and approve the
request. The issued credential is stored in the mirror database and
refreshed automatically from then on.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	bootstrapLogger := slog.Default()

	holder, err := loadHolder(bootstrapLogger)
	if err != nil {
		return err
	}

	logger := buildLogger(holder.Config().Logging)

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	flow := debrid.NewFlow(debrid.FlowConfig{
		OAuthBase: holder.Config().Network.OAuthBase,
	}, defaultHTTPClient(), logger)

	cred, err := flow.Authorize(cmd.Context(), func(session debrid.Session) {
		statusf("Open %s in your browser and enter the code:\n\n    %s\n\nWaiting for approval...\n",
			session.VerificationURL, session.UserCode)
	})
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	if _, err := st.UpsertCredential(cmd.Context(), flagAccount, cred); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}

	statusf("Logged in. Credential valid until %s.\n", cred.ExpiresAt.Format("2006-01-02 15:04"))

	return nil
}
