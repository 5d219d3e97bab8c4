package repository

import (
	"errors"
	"fmt"

	"github.com/Maksumys/schema-migrator/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("ledger row not found")

func HasLedgerTable(db *gorm.DB, table string) bool {
	return db.Migrator().HasTable(table)
}

func CreateLedgerTable(db *gorm.DB, table string) error {
	return db.Exec(`
		CREATE TABLE IF NOT EXISTS ? (
			migration_id   TEXT PRIMARY KEY,
			name           TEXT NOT NULL DEFAULT '',
			checksum       TEXT NOT NULL DEFAULT '',
			applied_at_utc TIMESTAMP NOT NULL
		)
	`, clause.Table{Name: table}).Error
}

// GetApplied returns ledger rows ordered by migration id.
func GetApplied(db *gorm.DB, table string) ([]models.AppliedMigration, error) {
	var rows []models.AppliedMigration
	if err := db.Table(table).Order("migration_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	return rows, nil
}

func InsertApplied(db *gorm.DB, table string, row models.AppliedMigration) error {
	if err := db.Table(table).Create(&row).Error; err != nil {
		return fmt.Errorf("insert %s into %s: %w", row.MigrationID, table, err)
	}
	return nil
}

func DeleteApplied(db *gorm.DB, table string, migrationID string) error {
	res := db.Table(table).Where("migration_id = ?", migrationID).Delete(&models.AppliedMigration{})
	if res.Error != nil {
		return fmt.Errorf("delete %s from %s: %w", migrationID, table, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete %s from %s: %w", migrationID, table, ErrNotFound)
	}
	return nil
}
