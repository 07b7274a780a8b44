package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"giftpool/internal/middleware"

	"gorm.io/gorm"
)

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (AppliedMigration) TableName() string {
	return "schema_migrations"
}

const createSchemaMigrationsSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	checksum VARCHAR(64) NOT NULL,
	applied_at TIMESTAMP NOT NULL
);`

// Migrator applies embedded SQL migrations and records them in schema_migrations.
// Each migration runs in its own transaction together with its record.
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

// NewMigrator returns a Migrator over the embedded migrations.
func NewMigrator(db *gorm.DB) (*Migrator, error) {
	ms, err := Migrations()
	if err != nil {
		return nil, err
	}
	return &Migrator{db: db, migrations: ms}, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	if err := m.db.WithContext(ctx).Exec(createSchemaMigrationsSQL).Error; err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// Applied lists the recorded migrations in version order.
func (m *Migrator) Applied(ctx context.Context) ([]AppliedMigration, error) {
	if !m.db.Migrator().HasTable(&AppliedMigration{}) {
		return nil, nil
	}
	var rows []AppliedMigration
	if err := m.db.WithContext(ctx).Order("version ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return rows, nil
}

// Pending returns the migrations not yet applied. It fails when the recorded history
// does not match the embedded scripts.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.verify(applied); err != nil {
		return nil, err
	}

	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}
	var pending []Migration
	for _, mg := range m.migrations {
		if !done[mg.Version] {
			pending = append(pending, mg)
		}
	}
	return pending, nil
}

// verify rejects recorded versions the code does not know and scripts edited after
// they were applied.
func (m *Migrator) verify(applied []AppliedMigration) error {
	byVersion := make(map[int]Migration, len(m.migrations))
	for _, mg := range m.migrations {
		byVersion[mg.Version] = mg
	}

	var problems []string
	for _, a := range applied {
		mg, ok := byVersion[a.Version]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%06d is recorded but not embedded", a.Version))
		case a.Checksum != mg.Checksum:
			problems = append(problems, fmt.Sprintf("%s was edited after it was applied", mg))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("schema_migrations out of sync: %s", strings.Join(problems, "; "))
}

// Up applies every pending migration and reports how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, mg := range pending {
		middleware.Logger.Info("applying migration", slog.String("migration", mg.String()))
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mg.Up).Error; err != nil {
				return err
			}
			return tx.Create(&AppliedMigration{
				Version:   mg.Version,
				Name:      mg.Name,
				Checksum:  mg.Checksum,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return i, fmt.Errorf("migration %s: %w", mg, err)
		}
	}
	return len(pending), nil
}

// Down reverts version, which must be the most recently applied migration.
func (m *Migrator) Down(ctx context.Context, version int) error {
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return fmt.Errorf("no migrations applied")
	}
	if latest := applied[len(applied)-1].Version; latest != version {
		return fmt.Errorf("can only roll back the latest migration %06d, not %06d", latest, version)
	}
	mg, ok := FindMigration(version)
	if !ok {
		return fmt.Errorf("migration %06d is not embedded", version)
	}

	middleware.Logger.Info("rolling back migration", slog.String("migration", mg.String()))
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mg.Down).Error; err != nil {
			return fmt.Errorf("migration %s down: %w", mg, err)
		}
		return tx.Where("version = ?", version).Delete(&AppliedMigration{}).Error
	})
}

// RunMigrations applies all pending embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	m, err := NewMigrator(db)
	if err != nil {
		return err
	}
	_, err = m.Up(ctx)
	return err
}
