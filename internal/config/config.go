package config

import (
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "SPBIND"

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverGodror   = "godror"
	DriverOracle   = "oracle"
	DriverSQLite   = "sqlite3"
)

const (
	defaultMaxIdle         = 8
	defaultMaxOpen         = 1028
	defaultConnMaxIdleTime = 10 * time.Second
	defaultMaxWait         = 2 * time.Second
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Log         Log                    `mapstructure:"log" yaml:"log"`
	DataSources map[string]*DataSource `mapstructure:"datasources" yaml:"datasources"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type DataSource struct {
	Driver          string               `mapstructure:"driver" yaml:"driver"`
	URL             string               `mapstructure:"url" yaml:"url"`
	Hostname        string               `mapstructure:"hostname" yaml:"hostname"`
	Port            string               `mapstructure:"port" yaml:"port"`
	Database        string               `mapstructure:"database" yaml:"database"`
	User            string               `mapstructure:"user" yaml:"user"`
	Password        string               `mapstructure:"password" yaml:"password"`
	MaxIdle         int                  `mapstructure:"max_idle" yaml:"max_idle"`
	MaxOpen         int                  `mapstructure:"max_open" yaml:"max_open"`
	ConnMaxIdleTime time.Duration        `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	MaxWait         time.Duration        `mapstructure:"max_wait" yaml:"max_wait"`
	ValidationQuery string               `mapstructure:"validation_query" yaml:"validation_query"`
	Procedures      map[string]Procedure `mapstructure:"procedures" yaml:"procedures"`
}

// Procedure is the call target of one procedure key.
type Procedure struct {
	Schema    string `mapstructure:"schema" yaml:"schema"`
	Procedure string `mapstructure:"procedure" yaml:"procedure"`
}

func (p Procedure) String() string {
	return p.Schema + "." + p.Procedure
}

// Load reads the configuration file at path, applies SPBIND_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "error reading config file %s", path)
	}

	cfg := &Config{}
	decoderCfg := func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			StringToDurationHookFunc(),
		)
		dc.ErrorUnused = true
	}
	if err := v.Unmarshal(cfg, decoderCfg); err != nil {
		return nil, errors.Wrap(err, "cannot decode configuration")
	}
	if err := restoreProcedureKeys(path, cfg); err != nil {
		return nil, errors.Wrap(err, "cannot read procedure keys")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	for _, ds := range c.DataSources {
		if ds == nil {
			continue
		}
		if ds.MaxIdle == 0 {
			ds.MaxIdle = defaultMaxIdle
		}
		if ds.MaxOpen == 0 {
			ds.MaxOpen = defaultMaxOpen
		}
		if ds.ConnMaxIdleTime == 0 {
			ds.ConnMaxIdleTime = defaultConnMaxIdleTime
		}
		if ds.MaxWait == 0 {
			ds.MaxWait = defaultMaxWait
		}
	}
}

// Validate checks the datasources and their procedure keys. A procedure key
// must be unique across all datasources.
func (c *Config) Validate() error {
	if len(c.DataSources) == 0 {
		return errors.Wrap(ErrInvalidConfig, "at least one datasource must be configured")
	}
	owners := make(map[string]string)
	for _, name := range c.DataSourceNames() {
		ds := c.DataSources[name]
		if ds == nil {
			return errors.Wrapf(ErrInvalidConfig, "datasource %q is empty", name)
		}
		if err := ds.validate(name); err != nil {
			return err
		}
		for _, key := range sortedKeys(ds.Procedures) {
			if owner, dup := owners[key]; dup {
				return errors.Wrapf(ErrInvalidConfig, "procedure key %q is defined in datasources %q and %q", key, owner, name)
			}
			owners[key] = name
			if strings.Contains(key, ".") {
				return errors.Wrapf(ErrInvalidConfig, "procedure key %q cannot contain '.'", key)
			}
			p := ds.Procedures[key]
			if strings.TrimSpace(p.Schema) == "" {
				return errors.Wrapf(ErrInvalidConfig, "schema is required. procedure key: %s", key)
			}
			if strings.TrimSpace(p.Procedure) == "" {
				return errors.Wrapf(ErrInvalidConfig, "procedure is required. procedure key: %s", key)
			}
		}
	}
	return nil
}

func (ds *DataSource) validate(name string) error {
	switch ds.Driver {
	case DriverMySQL, DriverPostgres, DriverGodror, DriverOracle, DriverSQLite:
	case "":
		return errors.Wrapf(ErrInvalidConfig, "driver is required. datasource: %s", name)
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown driver %q. datasource: %s", ds.Driver, name)
	}

	if ds.Driver == DriverSQLite {
		if ds.URL == "" && ds.Database == "" {
			return errors.Wrapf(ErrInvalidConfig, "url or database is required. datasource: %s", name)
		}
	} else {
		hostBased := ds.Hostname != "" || ds.Port != "" || ds.Database != ""
		switch {
		case ds.URL != "" && hostBased:
			return errors.Wrapf(ErrInvalidConfig, "url cannot be combined with hostname, port and database. datasource: %s", name)
		case ds.URL == "" && (ds.Hostname == "" || ds.Port == "" || ds.Database == ""):
			return errors.Wrapf(ErrInvalidConfig, "either url or hostname, port and database are required. datasource: %s", name)
		}
		if ds.User == "" {
			return errors.Wrapf(ErrInvalidConfig, "user is required. datasource: %s", name)
		}
		if ds.Password == "" {
			return errors.Wrapf(ErrInvalidConfig, "password is required. datasource: %s", name)
		}
	}

	if ds.MaxIdle < 0 || ds.MaxOpen < 0 || ds.ConnMaxIdleTime < 0 || ds.MaxWait < 0 {
		return errors.Wrapf(ErrInvalidConfig, "pool settings cannot be negative. datasource: %s", name)
	}
	if len(ds.Procedures) == 0 {
		return errors.Wrapf(ErrInvalidConfig, "at least one procedure is required. datasource: %s", name)
	}
	return nil
}

func (c *Config) DataSourceNames() []string {
	return sortedKeys(c.DataSources)
}

// Procedure returns the datasource name and call target registered for key.
func (c *Config) Procedure(key string) (string, Procedure, bool) {
	for name, ds := range c.DataSources {
		if p, ok := ds.Procedures[key]; ok {
			return name, p, true
		}
	}
	return "", Procedure{}, false
}

// ProcedureKeys returns every procedure key, sorted.
func (c *Config) ProcedureKeys() []string {
	var keys []string
	for _, ds := range c.DataSources {
		for key := range ds.Procedures {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
