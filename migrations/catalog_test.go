package migrations

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	migrator "github.com/Maksumys/schema-migrator"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	viewV1ID = "20240521120000_company_license_view"
	viewV2ID = "20240612090000_company_license_view_status"
)

func newTestManager(t *testing.T) (*gorm.DB, *migrator.MigrationManager) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "registry.db")), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	source, err := Source()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	manager, err := migrator.NewMigrationsManager(db, source, migrator.WithLogger(logger))
	require.NoError(t, err)
	return db, manager
}

func viewColumns(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	rows, err := db.Raw("SELECT * FROM v_company_licenses LIMIT 0").Rows()
	require.NoError(t, err)
	defer rows.Close()

	columns, err := rows.Columns()
	require.NoError(t, err)
	return columns
}

func count(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Table(table).Count(&n).Error)
	return n
}

func TestCatalogIsValid(t *testing.T) {
	source, err := Source()
	require.NoError(t, err)
	assert.Equal(t, len(All()), source.Len())

	ids := make(map[string]bool)
	for _, m := range All() {
		assert.NotEmpty(t, m.Name, m.ID)
		assert.False(t, ids[m.ID], "duplicate id %s", m.ID)
		ids[m.ID] = true
	}

	// checksums must not depend on process state
	for i, m := range All() {
		assert.Equal(t, migrator.Checksum(m), migrator.Checksum(source.ListAll()[i]))
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	db, manager := newTestManager(t)
	ctx := context.Background()

	report, err := manager.Migrate(ctx, "")
	require.NoError(t, err)
	assert.Len(t, report.Completed, len(All()))

	for _, table := range []string{"vehicle_types", "license_types", "companies", "company_licenses", "registry_audit"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.EqualValues(t, 4, count(t, db, "vehicle_types"))
	assert.EqualValues(t, 3, count(t, db, "license_types"))
	assert.True(t, db.Migrator().HasColumn("vehicle_types", "legacy_code"))
	assert.Contains(t, viewColumns(t, db), "status")

	_, ok, err := manager.CheckFulfillment(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = manager.Downgrade(ctx, viewV1ID)
	require.NoError(t, err)
	assert.NotContains(t, viewColumns(t, db), "status")
	assert.Contains(t, viewColumns(t, db), "company_name")
	assert.False(t, db.Migrator().HasColumn("vehicle_types", "legacy_code"))

	_, err = manager.Downgrade(ctx, migrator.TargetInitial)
	require.NoError(t, err)
	for _, table := range []string{"vehicle_types", "license_types", "companies", "company_licenses", "registry_audit"} {
		assert.False(t, db.Migrator().HasTable(table), table)
	}

	applied, err := manager.Ledger().ListApplied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	_, err = manager.Migrate(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 4, count(t, db, "vehicle_types"))
}

func TestCatalogViewAndDataMigrations(t *testing.T) {
	db, manager := newTestManager(t)
	ctx := context.Background()

	_, err := manager.Migrate(ctx, viewV2ID)
	require.NoError(t, err)

	require.NoError(t, db.Exec(`INSERT INTO companies (id, name, tax_number) VALUES ('c1', '  Northwind Haulage ', '7701000001')`).Error)
	require.NoError(t, db.Exec(`INSERT INTO company_licenses (id, company_id, license_type_id, vehicle_type_id, license_number, issued_on, expires_on)
		VALUES ('l1', 'c1', ?, ?, 'FR-0001', '2024-01-10', '2030-01-10')`,
		seedID("license_types", "freight"), seedID("vehicle_types", "truck")).Error)

	var row struct {
		CompanyName string
		LicenseType string
		VehicleType string
		Status      string
	}
	require.NoError(t, db.Table("v_company_licenses").Where("id = ?", "l1").Take(&row).Error)
	assert.Equal(t, "  Northwind Haulage ", row.CompanyName)
	assert.Equal(t, "Freight transport", row.LicenseType)
	assert.Equal(t, "Truck", row.VehicleType)
	assert.Equal(t, "active", row.Status)

	_, err = manager.Migrate(ctx, "")
	require.NoError(t, err)

	var name string
	require.NoError(t, db.Raw(`SELECT name FROM companies WHERE id = 'c1'`).Scan(&name).Error)
	assert.Equal(t, "Northwind Haulage", name)
}

func TestCatalogReappliesOverLostLedger(t *testing.T) {
	db, manager := newTestManager(t)
	ctx := context.Background()

	_, err := manager.Migrate(ctx, "")
	require.NoError(t, err)
	require.NoError(t, db.Exec(`DELETE FROM schema_migrations`).Error)

	source, err := Source()
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	fresh, err := migrator.NewMigrationsManager(db, source, migrator.WithLogger(logger))
	require.NoError(t, err)

	report, err := fresh.Migrate(ctx, "")
	require.NoError(t, err, "every migration must tolerate its changes already being in place")
	assert.Len(t, report.Completed, len(All()))
	assert.EqualValues(t, 4, count(t, db, "vehicle_types"))

	_, ok, err := fresh.CheckFulfillment(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
