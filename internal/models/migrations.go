package models

// AppliedMigration is one row of the ledger table.
type AppliedMigration struct {
	MigrationID string  `gorm:"column:migration_id;primaryKey"`
	Name        string  `gorm:"column:name"`
	Checksum    string  `gorm:"column:checksum"`
	AppliedAt   UTCTime `gorm:"column:applied_at_utc"`
}
