package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/hrnotify/internal/credential"
	"github.com/nhle/hrnotify/internal/session"
)

func logoutCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session and this role's read state",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := credential.OpenVault()
			if err != nil {
				return err
			}
			sess, err := vault.LoadSession()
			if errors.Is(err, credential.ErrNoSession) {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			if err != nil {
				return err
			}

			st, err := e.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := session.Forget(cmd.Context(), st, sess.Role); err != nil {
				return err
			}
			if err := vault.ClearSession(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
