package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
log:
  level: warn
  format: json
datasources:
  local:
    driver: sqlite3
    database: ":memory:"
    procedures:
      EchoValues: {schema: main, procedure: echo_values}
  ora:
    driver: godror
    hostname: db.internal
    port: 1521
    database: ORCLPDB1
    user: app
    password: from-file
    max_open: 16
    max_wait: 5s
    conn_max_idle_time: 1d
    validation_query: SELECT 1 FROM DUAL
    procedures:
      GET_CUSTOMER:
        schema: sales
        procedure: get_customer
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, "spbind.yml", validConfig))
	require.NoError(t, err)

	assert.Equal(t, Log{Level: "warn", Format: "json"}, cfg.Log)
	assert.Equal(t, []string{"local", "ora"}, cfg.DataSourceNames())
	assert.Equal(t, []string{"EchoValues", "GET_CUSTOMER"}, cfg.ProcedureKeys())

	wantLocal := &DataSource{
		Driver:          DriverSQLite,
		Database:        ":memory:",
		MaxIdle:         defaultMaxIdle,
		MaxOpen:         defaultMaxOpen,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
		MaxWait:         defaultMaxWait,
		Procedures:      map[string]Procedure{"EchoValues": {Schema: "main", Procedure: "echo_values"}},
	}
	if diff := cmp.Diff(wantLocal, cfg.DataSources["local"]); diff != "" {
		t.Errorf("local datasource mismatch (-want +got):\n%s", diff)
	}

	ora := cfg.DataSources["ora"]
	assert.Equal(t, "1521", ora.Port)
	assert.Equal(t, 16, ora.MaxOpen)
	assert.Equal(t, defaultMaxIdle, ora.MaxIdle)
	assert.Equal(t, 5*time.Second, ora.MaxWait)
	assert.Equal(t, 24*time.Hour, ora.ConnMaxIdleTime)
	assert.Equal(t, "SELECT 1 FROM DUAL", ora.ValidationQuery)

	name, p, ok := cfg.Procedure("GET_CUSTOMER")
	require.True(t, ok)
	assert.Equal(t, "ora", name)
	assert.Equal(t, "sales.get_customer", p.String())

	_, _, ok = cfg.Procedure("get_customer")
	assert.False(t, ok)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPBIND_LOG_LEVEL", "debug")
	t.Setenv("SPBIND_DATASOURCES_ORA_PASSWORD", "from-env")

	cfg, err := Load(writeConfig(t, "spbind.yaml", validConfig))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.DataSources["ora"].Password)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "spbind.yml", `
datasources:
  local:
    driver: sqlite3
    url: "file::memory:?cache=shared"
    procedures:
      k: {schema: s, procedure: p}
`))
	require.NoError(t, err)
	assert.Equal(t, Log{Level: "info", Format: "text"}, cfg.Log)
	assert.Equal(t, defaultMaxWait, cfg.DataSources["local"].MaxWait)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorContains(t, err, "error reading config file")

	_, err = Load(writeConfig(t, "unknown.yml", `
datasources:
  local:
    driver: sqlite3
    database: x.db
    pool_size: 3
    procedures:
      k: {schema: s, procedure: p}
`))
	assert.ErrorContains(t, err, "pool_size")

	_, err = Load(writeConfig(t, "invalid.yml", `
datasources:
  local:
    driver: sqlite3
    database: x.db
`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	procs := map[string]Procedure{"k": {Schema: "s", Procedure: "p"}}
	hostDS := func() *DataSource {
		return &DataSource{
			Driver: DriverMySQL, Hostname: "h", Port: "3306", Database: "d",
			User: "u", Password: "p", Procedures: procs,
		}
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no datasources", func(c *Config) { c.DataSources = nil }, "at least one datasource"},
		{"missing driver", func(c *Config) { c.DataSources["a"].Driver = "" }, "driver is required"},
		{"unknown driver", func(c *Config) { c.DataSources["a"].Driver = "db2" }, `unknown driver "db2"`},
		{"url and host", func(c *Config) { c.DataSources["a"].URL = "u:p@tcp(h)/d" }, "url cannot be combined"},
		{"no address", func(c *Config) { c.DataSources["a"].Port = "" }, "either url or hostname"},
		{"no user", func(c *Config) { c.DataSources["a"].User = "" }, "user is required"},
		{"no password", func(c *Config) { c.DataSources["a"].Password = "" }, "password is required"},
		{"negative pool", func(c *Config) { c.DataSources["a"].MaxOpen = -1 }, "cannot be negative"},
		{"no procedures", func(c *Config) { c.DataSources["a"].Procedures = nil }, "at least one procedure"},
		{"blank schema", func(c *Config) {
			c.DataSources["a"].Procedures = map[string]Procedure{"k": {Schema: " ", Procedure: "p"}}
		}, "schema is required. procedure key: k"},
		{"blank procedure", func(c *Config) {
			c.DataSources["a"].Procedures = map[string]Procedure{"k": {Schema: "s"}}
		}, "procedure is required. procedure key: k"},
		{"duplicate key", func(c *Config) { c.DataSources["b"] = hostDS() }, `procedure key "k" is defined in datasources "a" and "b"`},
		{"dotted key", func(c *Config) {
			c.DataSources["a"].Procedures = map[string]Procedure{"sales.k": {Schema: "s", Procedure: "p"}}
		}, `procedure key "sales.k" cannot contain '.'`},
		{"sqlite without database", func(c *Config) {
			c.DataSources["a"] = &DataSource{Driver: DriverSQLite, Procedures: procs}
		}, "url or database is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{DataSources: map[string]*DataSource{"a": hostDS()}}
			require.NoError(t, cfg.Validate())
			tc.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
