package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(vars map[string]string) func(string) string {
	return func(name string) string { return vars[name] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: sqlite
dsn: registry.db
ledger_table: registry_migrations
lock_retries: 3
lock_retry_delay: 250ms
statement_timeout: 30s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "registry.db", cfg.DSN)
	assert.Equal(t, "registry_migrations", cfg.LedgerTable)
	assert.Equal(t, 3, cfg.LockRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.LockRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.StatementTimeout)
	assert.Equal(t, "info", cfg.LogLevel, "unset keys keep their defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: [postgres"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"MIGRATE_DRIVER":           "sqlite",
		"MIGRATE_DSN":              "file.db",
		"MIGRATE_LOCK_RETRIES":     "5",
		"MIGRATE_LOCK_RETRY_DELAY": "2s",
		"MIGRATE_LOG_LEVEL":        "debug",
	}))
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "file.db", cfg.DSN)
	assert.Equal(t, 5, cfg.LockRetries)
	assert.Equal(t, 2*time.Second, cfg.LockRetryDelay)
	assert.Equal(t, "debug", cfg.LogLevel)

	bad := Default()
	assert.Error(t, bad.ApplyEnv(envMap(map[string]string{"MIGRATE_LOCK_RETRIES": "many"})))
}

func TestResolveBuildsPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "full",
			env: map[string]string{
				"POSTGRES_HOST": "db", "POSTGRES_PORT": "6432", "POSTGRES_USER": "registry",
				"POSTGRES_PASSWORD": "secret", "POSTGRES_DB": "fleet",
			},
			want: "postgres://registry:secret@db:6432/fleet?sslmode=disable",
		},
		{
			name: "default port without password",
			env:  map[string]string{"POSTGRES_HOST": "db", "POSTGRES_USER": "registry", "POSTGRES_DB": "fleet"},
			want: "postgres://registry@db:5432/fleet?sslmode=disable",
		},
		{
			name: "incomplete",
			env:  map[string]string{"POSTGRES_HOST": "db"},
			want: "",
		},
		{
			name: "bad port",
			env:  map[string]string{"POSTGRES_HOST": "db", "POSTGRES_USER": "u", "POSTGRES_DB": "d", "POSTGRES_PORT": "x"},
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.ApplyEnv(envMap(tc.env)))
			cfg.Resolve(envMap(tc.env))
			assert.Equal(t, tc.want, cfg.DSN)
		})
	}

	pgEnv := envMap(map[string]string{"POSTGRES_HOST": "db", "POSTGRES_USER": "u", "POSTGRES_DB": "d"})

	explicit := Default()
	explicit.DSN = "postgres://explicit"
	explicit.Resolve(pgEnv)
	assert.Equal(t, "postgres://explicit", explicit.DSN)

	lite := Default()
	lite.Driver = DriverSQLite
	lite.Resolve(pgEnv)
	assert.Empty(t, lite.DSN, "POSTGRES_* only applies to postgres")
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.DSN = "postgres://localhost/fleet"
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*Config){
		"driver":      func(c *Config) { c.Driver = "mysql" },
		"dsn":         func(c *Config) { c.DSN = "" },
		"ledger":      func(c *Config) { c.LedgerTable = "" },
		"retries":     func(c *Config) { c.LockRetries = 0 },
		"retry delay": func(c *Config) { c.LockRetryDelay = -time.Second },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
