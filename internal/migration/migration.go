package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	entitlementdomain "github.com/smallbiznis/licensia/internal/entitlement/domain"
	ledgerdomain "github.com/smallbiznis/licensia/internal/ledger/domain"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded SQL migrations against postgres. The
// schema is created automatically on startup so a fresh install needs no
// manual steps.
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

// AutoMigrate builds the schema through gorm for the drivers the versioned
// migrations do not cover (sqlite, mysql).
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&partydomain.PartyNode{},
		&subscriptiondomain.Subscription{},
		&entitlementdomain.Override{},
		&ledgerdomain.Batch{},
		&ledgerdomain.Entry{},
	)
}
