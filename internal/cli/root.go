// Package cli implements the roomaccess command tree: the HTTP server and
// the operator commands that drive the same services from a terminal.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/config"
	"github.com/tbourn/room-access-backend/internal/repo"
	"github.com/tbourn/room-access-backend/internal/services"
	"github.com/tbourn/room-access-backend/internal/sysutil"
)

// Version is overridden at link time with -ldflags "-X".
var Version = "dev"

// EnvConfigFile names a config file when --config is not given.
const EnvConfigFile = "ROOMACCESS_CONFIG"

type app struct {
	cfgFile string
	cfg     config.Config

	db    *gorm.DB
	stack *services.Stack
}

func newRoot() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:   "roomaccess",
		Short: "Room and device access control",
		Long: `Run the room access HTTP API, or manage rooms, devices, permissions
and hand-over sessions directly against the database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (YAML, TOML, JSON or .env), default $"+EnvConfigFile)

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newSeedCmd(a),
		newSessionCmd(a),
		newPermissionCmd(a),
		newJanitorCmd(a),
		newUserCmd(a),
	)
	return root, a
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	root, a := newRoot()
	err := root.Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) load() error {
	if path := sysutil.FirstNonEmpty(a.cfgFile, os.Getenv(EnvConfigFile)); path != "" {
		if err := config.LoadFile(path); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	return nil
}

func (a *app) openDB() (*gorm.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := repo.OpenSQLite(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.cfg.DBPath, err)
	}
	a.db = db
	return db, nil
}

// services opens the database, brings the schema up to date and wires the
// service stack.
func (a *app) services() (*services.Stack, error) {
	if a.stack != nil {
		return a.stack, nil
	}
	db, err := a.openDB()
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.stack = services.NewStack(db, services.StackOptions{
		Location:            a.cfg.Location(),
		JWTSecret:           a.cfg.Auth.JWTSecret,
		TokenTTL:            a.cfg.Auth.TokenTTL,
		BcryptCost:          a.cfg.Auth.BcryptCost,
		DenyReturns:         a.cfg.AdmissionDenyReturns,
		IdempotencyTTL:      a.cfg.IdempotencyTTL,
		PermissionRetention: a.cfg.PermissionRetention,
		JanitorInterval:     a.cfg.JanitorInterval,
	})
	return a.stack, nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}
	a.db, a.stack = nil, nil
}
