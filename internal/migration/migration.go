package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
	comdomain "github.com/smallbiznis/affina/internal/commission/domain"
	creditdomain "github.com/smallbiznis/affina/internal/credit/domain"
	"github.com/smallbiznis/affina/internal/events"
	networkdomain "github.com/smallbiznis/affina/internal/network/domain"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded SQL migrations against Postgres.
// All core tables are created automatically on startup so a fresh
// install is usable without manual schema work.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema through gorm for the dialects the SQL
// migrations do not target (sqlite, mysql).
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(
		&tierdomain.Tier{},
		&creditdomain.Balance{},
		&creditdomain.JournalEntry{},
		&affdomain.Affiliate{},
		&affdomain.CustomerLink{},
		&networkdomain.Node{},
		&comdomain.Commission{},
		&comdomain.ProcessedOrder{},
		&events.Row{},
	)
}
