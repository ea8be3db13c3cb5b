package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/services"
)

func newJanitorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Housekeeping of expired rows",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one janitor pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.services()
			if err != nil {
				return err
			}
			rep, err := st.Janitor.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "permissions=%d tokens=%d idempotency=%d\n",
				rep.Permissions, rep.Tokens, rep.Idempotency)
			return err
		},
	})
	return cmd
}

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Register accounts and guests",
	}

	var acc services.NewAccount
	var role string
	createAccount := &cobra.Command{
		Use:   "create-account",
		Short: "Register a user who can log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.services()
			if err != nil {
				return err
			}
			acc.Role = domain.Role(role)
			u, err := st.Users.CreateAccount(cmd.Context(), acc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %d created: %s (%s)\n", u.ID, u.Account.Login, u.Account.Role)
			return nil
		},
	}
	f := createAccount.Flags()
	f.StringVar(&acc.FirstName, "first-name", "", "first name")
	f.StringVar(&acc.LastName, "last-name", "", "last name")
	f.StringVar(&acc.Login, "login", "", "login")
	f.StringVar(&acc.Password, "password", "", "password")
	f.StringVar(&acc.CardID, "card", "", "card id")
	f.StringVar(&acc.Email, "email", "", "email")
	f.StringVar(&role, "role", string(domain.RoleUser), "user, concierge or admin")
	for _, name := range []string{"first-name", "login", "password"} {
		_ = createAccount.MarkFlagRequired(name)
	}

	var guest services.NewGuest
	createGuest := &cobra.Command{
		Use:   "create-guest",
		Short: "Register a borrower without an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.services()
			if err != nil {
				return err
			}
			u, err := st.Users.CreateGuest(cmd.Context(), guest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "guest %d created: %s %s\n", u.ID, u.FirstName, u.LastName)
			return nil
		},
	}
	g := createGuest.Flags()
	g.StringVar(&guest.FirstName, "first-name", "", "first name")
	g.StringVar(&guest.LastName, "last-name", "", "last name")
	g.StringVar(&guest.Document, "document", "", "identity document number")
	g.StringVar(&guest.Phone, "phone", "", "phone number")
	g.StringVar(&guest.Organization, "organization", "", "organization")
	_ = createGuest.MarkFlagRequired("first-name")

	cmd.AddCommand(createAccount, createGuest)
	return cmd
}
