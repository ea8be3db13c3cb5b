package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tbourn/room-access-backend/internal/domain"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/services"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			if err := repo.AutoMigrate(db); err != nil {
				return err
			}
			log.Info().Str("db", a.cfg.DBPath).Msg("schema up to date")
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", a.cfg.DBPath)
			return nil
		},
	}
}

// Fixture is the document accepted by "roomaccess seed".
type Fixture struct {
	Rooms       []string            `yaml:"rooms"`
	Devices     []FixtureDevice     `yaml:"devices"`
	Accounts    []FixtureAccount    `yaml:"accounts"`
	Guests      []FixtureGuest      `yaml:"guests"`
	Permissions []FixturePermission `yaml:"permissions"`
}

type FixtureDevice struct {
	Code    string `yaml:"code"`
	Room    string `yaml:"room"`
	Type    string `yaml:"type"`
	Version string `yaml:"version"`
}

type FixtureAccount struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Login     string `yaml:"login"`
	Password  string `yaml:"password"`
	CardID    string `yaml:"card_id"`
	Email     string `yaml:"email"`
	Role      string `yaml:"role"`
}

type FixtureGuest struct {
	FirstName    string `yaml:"first_name"`
	LastName     string `yaml:"last_name"`
	Document     string `yaml:"document"`
	Phone        string `yaml:"phone"`
	Organization string `yaml:"organization"`
}

// FixturePermission names its holder by login or card, and its room by
// number.
type FixturePermission struct {
	Login    string    `yaml:"login"`
	CardID   string    `yaml:"card_id"`
	Room     string    `yaml:"room"`
	StartsAt time.Time `yaml:"starts_at"`
	EndsAt   time.Time `yaml:"ends_at"`
}

// SeedReport counts what a fixture created.
type SeedReport struct {
	Rooms, Devices, Accounts, Guests, Permissions int
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Import rooms, devices, users and permissions from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var fx Fixture
			if err := yaml.Unmarshal(raw, &fx); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			st, err := a.services()
			if err != nil {
				return err
			}
			rep, err := seed(cmd, st, fx)
			fmt.Fprintf(cmd.OutOrStdout(), "rooms=%d devices=%d accounts=%d guests=%d permissions=%d\n",
				rep.Rooms, rep.Devices, rep.Accounts, rep.Guests, rep.Permissions)
			return err
		},
	}
}

// seed applies fx in dependency order and stops at the first failure.
func seed(cmd *cobra.Command, st *services.Stack, fx Fixture) (SeedReport, error) {
	ctx := cmd.Context()
	var rep SeedReport

	for _, number := range fx.Rooms {
		if _, err := st.Registry.CreateRoom(ctx, number); err != nil {
			return rep, fmt.Errorf("room %q: %w", number, err)
		}
		rep.Rooms++
	}
	for _, d := range fx.Devices {
		version := domain.DeviceVersion(d.Version)
		if version == "" {
			version = domain.VersionPrimary
		}
		if _, err := st.Registry.CreateDevice(ctx, d.Code, d.Room, domain.DeviceType(d.Type), version); err != nil {
			return rep, fmt.Errorf("device %q: %w", d.Code, err)
		}
		rep.Devices++
	}
	for _, acc := range fx.Accounts {
		_, err := st.Users.CreateAccount(ctx, services.NewAccount{
			FirstName: acc.FirstName, LastName: acc.LastName,
			Login: acc.Login, Password: acc.Password,
			CardID: acc.CardID, Email: acc.Email, Role: domain.Role(acc.Role),
		})
		if err != nil {
			return rep, fmt.Errorf("account %q: %w", acc.Login, err)
		}
		rep.Accounts++
	}
	for _, g := range fx.Guests {
		_, err := st.Users.CreateGuest(ctx, services.NewGuest{
			FirstName: g.FirstName, LastName: g.LastName,
			Document: g.Document, Phone: g.Phone, Organization: g.Organization,
		})
		if err != nil {
			return rep, fmt.Errorf("guest %s %s: %w", g.FirstName, g.LastName, err)
		}
		rep.Guests++
	}
	for _, p := range fx.Permissions {
		holder, err := st.Users.FindBorrower(ctx, services.BorrowerRef{Login: p.Login, CardID: p.CardID})
		if err != nil {
			return rep, fmt.Errorf("permission holder %q: %w", p.Login+p.CardID, err)
		}
		room, err := st.Registry.GetRoomByNumber(ctx, p.Room)
		if err != nil {
			return rep, fmt.Errorf("permission room %q: %w", p.Room, err)
		}
		if _, err := st.Permissions.Grant(ctx, holder.IdentityID(), room.ID, p.StartsAt, p.EndsAt); err != nil {
			return rep, fmt.Errorf("permission %s/%s: %w", p.Room, holder.DisplayName(), err)
		}
		rep.Permissions++
	}
	log.Info().Interface("report", rep).Msg("fixture imported")
	return rep, nil
}
