package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/room-access-backend/internal/services"
)

func newPermissionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Manage room permissions",
	}
	cmd.AddCommand(newPermissionListCmd(a), newPermissionGrantCmd(a), newPermissionPruneCmd(a))
	return cmd
}

func newPermissionListCmd(a *app) *cobra.Command {
	var (
		userID uint
		room   string
		at     string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permissions, optionally narrowed to a user, room or instant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.services()
			if err != nil {
				return err
			}
			var f services.PermissionFilter
			if userID != 0 {
				f.UserID = &userID
			}
			if room != "" {
				r, err := st.Registry.GetRoomByNumber(cmd.Context(), room)
				if err != nil {
					return err
				}
				f.RoomID = &r.ID
			}
			if at != "" {
				t, err := parseLocalTime(at, st.Clock.Location())
				if err != nil {
					return err
				}
				f.Time = &t
			}
			rows, err := st.Permissions.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			loc := st.Clock.Location()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSER\tROOM\tFROM\tTO")
			for _, p := range rows {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", p.ID, p.UserID, p.RoomNumber,
					p.StartsAt.In(loc).Format(stampLayout), p.EndsAt.In(loc).Format(stampLayout))
			}
			return w.Flush()
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "holder user id")
	cmd.Flags().StringVar(&room, "room", "", "room number")
	cmd.Flags().StringVar(&at, "at", "", "only permissions active at this time")
	return cmd
}

func newPermissionGrantCmd(a *app) *cobra.Command {
	var (
		userID   uint
		room     string
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Reserve a room for a user over an interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.services()
			if err != nil {
				return err
			}
			loc := st.Clock.Location()
			start, err := parseLocalTime(from, loc)
			if err != nil {
				return err
			}
			end, err := parseLocalTime(to, loc)
			if err != nil {
				return err
			}
			r, err := st.Registry.GetRoomByNumber(cmd.Context(), room)
			if err != nil {
				return err
			}
			p, err := st.Permissions.Grant(cmd.Context(), userID, r.ID, start, end)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "permission %d granted: user %d, room %s, %s to %s\n",
				p.ID, p.UserID, r.Number, start.In(loc).Format(stampLayout), end.In(loc).Format(stampLayout))
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "holder user id")
	cmd.Flags().StringVar(&room, "room", "", "room number")
	cmd.Flags().StringVar(&from, "from", "", "start, RFC3339 or \"YYYY-MM-DD HH:MM\" in the site zone")
	cmd.Flags().StringVar(&to, "to", "", "end, same formats as --from")
	for _, name := range []string{"user", "room", "from", "to"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newPermissionPruneCmd(a *app) *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete permissions that ended before the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.services()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("retention") {
				retention = a.cfg.PermissionRetention
			}
			n, err := st.Permissions.PruneExpired(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d permissions\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "keep permissions that ended within this window (default from config)")
	return cmd
}

// parseLocalTime accepts RFC3339, or a minute-precision civil time in loc.
func parseLocalTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(stampLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or %q", s, stampLayout)
	}
	return t.UTC(), nil
}
