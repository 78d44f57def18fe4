package datasource

import (
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/godror/godror"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/ignaciocaff/spbind/internal/config"
)

// dsn returns the data source name handed to sql.Open for ds. Postgres pools
// are opened from pgxConfig instead.
func dsn(ds *config.DataSource) (string, error) {
	switch ds.Driver {
	case config.DriverMySQL:
		return mysqlDSN(ds)
	case config.DriverGodror:
		return godrorDSN(ds), nil
	case config.DriverOracle:
		return goOraDSN(ds)
	case config.DriverSQLite:
		if ds.URL != "" {
			return ds.URL, nil
		}
		return ds.Database, nil
	}
	return "", errors.Errorf("unsupported driver %q", ds.Driver)
}

func mysqlDSN(ds *config.DataSource) (string, error) {
	cfg := mysql.NewConfig()
	if ds.URL != "" {
		var err error
		if cfg, err = mysql.ParseDSN(ds.URL); err != nil {
			return "", errors.Wrap(err, "invalid mysql url")
		}
	} else {
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(ds.Hostname, ds.Port)
		cfg.DBName = ds.Database
	}
	if ds.User != "" {
		cfg.User = ds.User
	}
	if ds.Password != "" {
		cfg.Passwd = ds.Password
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func pgxConfig(ds *config.DataSource) (*pgx.ConnConfig, error) {
	connString := ds.URL
	if connString == "" {
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(ds.User, ds.Password),
			Host:   net.JoinHostPort(ds.Hostname, ds.Port),
			Path:   "/" + ds.Database,
		}
		connString = u.String()
	}
	connConfig, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "invalid postgres url")
	}
	if ds.URL != "" {
		if ds.User != "" {
			connConfig.User = ds.User
		}
		if ds.Password != "" {
			connConfig.Password = ds.Password
		}
	}
	return connConfig, nil
}

func godrorDSN(ds *config.DataSource) string {
	var p godror.ConnectionParams
	p.Username = ds.User
	p.Password = godror.NewPassword(ds.Password)
	if ds.URL != "" {
		p.ConnectString = ds.URL
	} else {
		p.ConnectString = net.JoinHostPort(ds.Hostname, ds.Port) + "/" + ds.Database
	}
	return p.StringWithPassword()
}

func goOraDSN(ds *config.DataSource) (string, error) {
	if ds.URL != "" {
		return ds.URL, nil
	}
	port, err := strconv.Atoi(ds.Port)
	if err != nil {
		return "", errors.Wrapf(err, "invalid port %q", ds.Port)
	}
	return go_ora.BuildUrl(ds.Hostname, port, ds.Database, ds.User, ds.Password, nil), nil
}
