package database

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/Maksumys/schema-migrator/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestOpenSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Driver = config.DriverSQLite
	cfg.DSN = filepath.Join(t.TempDir(), "registry.db")

	db, err := Open(cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	assert.Equal(t, "sqlite", db.Dialector.Name())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpenErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Driver = "mysql"
	cfg.DSN = "whatever"
	_, err := Open(cfg, quietLogger())
	assert.Error(t, err)

	cfg.Driver = config.DriverPostgres
	cfg.DSN = "postgres://registry@localhost:notaport/fleet"
	_, err = Open(cfg, quietLogger())
	assert.Error(t, err)
}

func TestGormLevel(t *testing.T) {
	tests := map[logrus.Level]gormlogger.LogLevel{
		logrus.TraceLevel: gormlogger.Info,
		logrus.DebugLevel: gormlogger.Info,
		logrus.InfoLevel:  gormlogger.Warn,
		logrus.WarnLevel:  gormlogger.Warn,
		logrus.ErrorLevel: gormlogger.Error,
		logrus.FatalLevel: gormlogger.Silent,
		logrus.PanicLevel: gormlogger.Silent,
	}
	for level, want := range tests {
		assert.Equal(t, want, gormLevel(level), level.String())
	}
}
