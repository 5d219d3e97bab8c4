package migrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Maksumys/schema-migrator/internal/models"
	"github.com/Maksumys/schema-migrator/internal/repository"
	"gorm.io/gorm"
)

const DefaultLedgerTable = "schema_migrations"

// AppliedRecord is a ledger entry: a migration that has been applied and when.
type AppliedRecord struct {
	MigrationID string
	Name        string
	Checksum    string
	AppliedAt   time.Time
}

// Ledger persists which migrations have been applied.
//
// MarkApplied and MarkReverted take the migration's own transaction handle so the schema
// change and its ledger entry commit or roll back together.
type Ledger struct {
	db    *gorm.DB
	table string
}

func NewLedger(db *gorm.DB, table string) *Ledger {
	if table == "" {
		table = DefaultLedgerTable
	}
	return &Ledger{db: db, table: table}
}

func (l *Ledger) Table() string {
	return l.table
}

// Ensure creates the ledger table if it does not exist yet.
func (l *Ledger) Ensure(ctx context.Context) error {
	db := l.db.WithContext(ctx)
	if repository.HasLedgerTable(db, l.table) {
		return nil
	}
	if err := repository.CreateLedgerTable(db, l.table); err != nil {
		return fmt.Errorf("create ledger table %s: %w", l.table, err)
	}
	return nil
}

// ListApplied returns ledger entries in ascending id order. A missing ledger table reads
// as an empty ledger.
func (l *Ledger) ListApplied(ctx context.Context) ([]AppliedRecord, error) {
	db := l.db.WithContext(ctx)
	if !repository.HasLedgerTable(db, l.table) {
		return nil, nil
	}

	rows, err := repository.GetApplied(db, l.table)
	if err != nil {
		return nil, err
	}

	records := make([]AppliedRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, AppliedRecord{
			MigrationID: row.MigrationID,
			Name:        row.Name,
			Checksum:    row.Checksum,
			AppliedAt:   row.AppliedAt.Time,
		})
	}
	return records, nil
}

func (l *Ledger) MarkApplied(tx *gorm.DB, m Migration, at time.Time) error {
	return repository.InsertApplied(tx, l.table, models.AppliedMigration{
		MigrationID: m.ID,
		Name:        m.Name,
		Checksum:    Checksum(m),
		AppliedAt:   models.NewUTCTime(at),
	})
}

func (l *Ledger) MarkReverted(tx *gorm.DB, migrationID string) error {
	return repository.DeleteApplied(tx, l.table, migrationID)
}
