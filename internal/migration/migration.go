package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accreditationdomain "github.com/smallbiznis/bistro/internal/accreditation/domain"
	auditdomain "github.com/smallbiznis/bistro/internal/audit/domain"
	creditdomain "github.com/smallbiznis/bistro/internal/credit/domain"
	inventorydomain "github.com/smallbiznis/bistro/internal/inventory/domain"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	orderdomain "github.com/smallbiznis/bistro/internal/order/domain"
	userdomain "github.com/smallbiznis/bistro/internal/user/domain"
	"gorm.io/gorm"
)

// Models lists every table in creation order.
func Models() []any {
	return []any{
		&userdomain.User{},
		&auditdomain.AuditLog{},
		&inventorydomain.Category{},
		&inventorydomain.Subcategory{},
		&inventorydomain.Location{},
		&inventorydomain.Product{},
		&inventorydomain.Variant{},
		&creditdomain.CreditLine{},
		&creditdomain.Movement{},
		&creditdomain.Audit{},
		&accreditationdomain.Request{},
		&orderdomain.Order{},
		&orderdomain.Line{},
		&notificationdomain.Channel{},
		&notificationdomain.Preference{},
		&notificationdomain.Notification{},
	}
}

// Apply brings the schema up to date. Postgres runs the embedded SQL migrations;
// the other dialects are local or test setups and get AutoMigrate.
func Apply(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "", "postgres", "postgresql":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	default:
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
}

// RunMigrations applies the embedded postgres migrations.
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
	// migrator.Close would close the shared *sql.DB.

	return nil
}
