package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/services"
	"github.com/tbourn/room-access-backend/internal/utils"
)

const stampLayout = "2006-01-02 15:04"

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect, approve and reject hand-over sessions",
	}
	cmd.AddCommand(newSessionListCmd(a), newSessionApproveCmd(a), newSessionRejectCmd(a))
	return cmd
}

func newSessionListCmd(a *app) *cobra.Command {
	var (
		userID, conciergeID uint
		page, size          int
	)
	cmd := &cobra.Command{
		Use:   "list [status]",
		Short: "List sessions, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.services()
			if err != nil {
				return err
			}
			f := services.SessionFilter{UserID: userID, ConciergeID: conciergeID}
			if len(args) == 1 {
				f.Status = domain.SessionStatus(args[0])
			}
			items, total, err := st.Sessions.List(cmd.Context(), f, page, size)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), items, st.Clock.Location())
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(items), total)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "only sessions of this borrower id")
	cmd.Flags().UintVar(&conciergeID, "concierge", 0, "only sessions opened by this concierge id")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 20, "page size")
	return cmd
}

func printSessions(out io.Writer, items []domain.Session, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tCONCIERGE\tSTATUS\tSTARTED\tENDED")
	for _, s := range items {
		ended := "-"
		if s.EndTime != nil {
			ended = s.EndTime.In(loc).Format(stampLayout)
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n",
			s.ID, s.UserID, s.ConciergeID, s.Status, s.StartTime.In(loc).Format(stampLayout), ended)
	}
	w.Flush()
}

func newSessionApproveCmd(a *app) *cobra.Command {
	var creds services.Credentials
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Commit every staged operation of a session",
		Long: `Approve authenticates a concierge by login and password or by card and
commits the session's pending operations to the device history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := sessionID(args[0])
			if err != nil {
				return err
			}
			st, err := a.services()
			if err != nil {
				return err
			}
			ops, err := st.Approval.Approve(cmd.Context(), id, creds)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DEVICE\tOPERATION\tENTITLED\tAT")
			for _, op := range ops {
				fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", op.DeviceID, op.OperationType, op.Entitled,
					op.Timestamp.In(st.Clock.Location()).Format(stampLayout))
			}
			w.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "session %d approved, %d operations committed\n", id, len(ops))
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.Login, "login", "", "concierge login")
	cmd.Flags().StringVar(&creds.Password, "password", "", "concierge password")
	cmd.Flags().StringVar(&creds.CardID, "card", "", "concierge card id")
	cmd.MarkFlagsRequiredTogether("login", "password")
	cmd.MarkFlagsMutuallyExclusive("login", "card")
	cmd.MarkFlagsOneRequired("login", "card")
	return cmd
}

func newSessionRejectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Discard every staged operation of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := sessionID(args[0])
			if err != nil {
				return err
			}
			st, err := a.services()
			if err != nil {
				return err
			}
			n, err := st.Approval.Reject(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %d rejected, %d pending operations discarded\n", id, n)
			return nil
		},
	}
}

func sessionID(s string) (uint, error) {
	id, ok := utils.ParseID(s)
	if !ok {
		return 0, fmt.Errorf("invalid session id %s", strconv.Quote(s))
	}
	return id, nil
}
