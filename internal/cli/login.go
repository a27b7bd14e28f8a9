package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/hrnotify/internal/credential"
	"github.com/nhle/hrnotify/internal/model"
)

type loginInput struct {
	token  string
	userID string
	role   string
}

func loginCommand(e *env) *cobra.Command {
	in := loginInput{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the session token and identity in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.token == "" || in.userID == "" {
				if err := loginForm(&in).RunWithContext(cmd.Context()); err != nil {
					return err
				}
			}
			sess, err := in.session()
			if err != nil {
				return err
			}

			vault, err := credential.OpenVault()
			if err != nil {
				return err
			}
			if err := vault.SaveSession(sess); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", sess.UserID, sess.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.token, "token", "", "Session token (prompted when empty)")
	cmd.Flags().StringVar(&in.userID, "user", "", "User id (prompted when empty)")
	cmd.Flags().StringVar(&in.role, "role", string(model.RoleEmployee), "Role: Admin, Department Head or Employee")
	return cmd
}

func loginForm(in *loginInput) *huh.Form {
	notEmpty := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("required")
		}
		return nil
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Token").
				EchoMode(huh.EchoModePassword).
				Value(&in.token).
				Validate(notEmpty),
			huh.NewInput().
				Title("User id").
				Value(&in.userID).
				Validate(notEmpty),
			huh.NewSelect[string]().
				Title("Role").
				Options(
					huh.NewOption("Admin", string(model.RoleAdmin)),
					huh.NewOption("Department Head", string(model.RoleDepartmentHead)),
					huh.NewOption("Employee", string(model.RoleEmployee)),
				).
				Value(&in.role),
		),
	)
}

func (in loginInput) session() (credential.Session, error) {
	token := strings.TrimSpace(in.token)
	userID := strings.TrimSpace(in.userID)
	if token == "" || userID == "" {
		return credential.Session{}, errors.New("token and user id are required")
	}
	return credential.Session{
		Token:  token,
		UserID: userID,
		Role:   model.ParseRole(in.role),
	}, nil
}
