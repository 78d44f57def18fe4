package datasource

import (
	"context"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ignaciocaff/spbind/internal/config"
	"github.com/ignaciocaff/spbind/internal/core"
)

// Registry owns one connection pool per configured datasource and resolves
// procedure keys to connections and call targets.
type Registry struct {
	cfg   *config.Config
	pools map[string]*sqlx.DB
}

// Open creates the pools of every datasource in cfg. Pools connect lazily;
// use Ping to check them.
func Open(cfg *config.Config) (*Registry, error) {
	r := &Registry{cfg: cfg, pools: make(map[string]*sqlx.DB, len(cfg.DataSources))}
	for _, name := range cfg.DataSourceNames() {
		ds := cfg.DataSources[name]
		db, err := openPool(ds)
		if err != nil {
			_ = r.Close()
			return nil, errors.Wrapf(err, "cannot open datasource %q", name)
		}
		db.SetMaxIdleConns(ds.MaxIdle)
		db.SetMaxOpenConns(ds.MaxOpen)
		db.SetConnMaxIdleTime(ds.ConnMaxIdleTime)
		r.pools[name] = db
	}
	return r, nil
}

func openPool(ds *config.DataSource) (*sqlx.DB, error) {
	if ds.Driver == config.DriverPostgres {
		connConfig, err := pgxConfig(ds)
		if err != nil {
			return nil, err
		}
		return sqlx.NewDb(stdlib.OpenDB(*connConfig, stdlib.OptionAfterConnect(registerDecimal)), ds.Driver), nil
	}
	source, err := dsn(ds)
	if err != nil {
		return nil, err
	}
	return sqlx.Open(ds.Driver, source)
}

// registerDecimal makes NUMERIC columns scan as decimal.Decimal.
func registerDecimal(_ context.Context, conn *pgx.Conn) error {
	pgxdecimal.Register(conn.TypeMap())
	return nil
}

// dialectOf returns the statement dialect spoken by driver.
func dialectOf(driver string) core.Dialect {
	switch driver {
	case config.DriverGodror:
		return core.DialectOracle.WithCursors(core.NewRowsCursor)
	case config.DriverOracle:
		return core.DialectOracle.WithCursors(newRefCursor)
	case config.DriverMySQL:
		return core.DialectMySQL
	case config.DriverPostgres:
		return core.DialectPostgres
	}
	return core.DialectEscape
}

// Conn acquires a connection from the pool serving key, waiting at most the
// datasource's max_wait.
func (r *Registry) Conn(ctx context.Context, key string) (core.Conn, error) {
	name, _, ok := r.cfg.Procedure(key)
	if !ok {
		return nil, errors.Wrapf(core.ErrUnknownKey, "key %q", key)
	}
	db, ds := r.pools[name], r.cfg.DataSources[name]
	if wait := ds.MaxWait; wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot acquire connection from datasource %q", name)
	}
	return core.NewSQLConn(conn, dialectOf(ds.Driver)), nil
}

func (r *Registry) CallTarget(key string) (string, string, error) {
	_, p, ok := r.cfg.Procedure(key)
	if !ok {
		return "", "", errors.Wrapf(core.ErrUnknownKey, "key %q", key)
	}
	return p.Schema, p.Procedure, nil
}

// DB returns the pool of the named datasource.
func (r *Registry) DB(name string) (*sqlx.DB, bool) {
	db, ok := r.pools[name]
	return db, ok
}

// Ping checks every pool concurrently, running the datasource's validation
// query when one is configured. The returned map holds the failure per
// datasource name; the error is the first failure.
func (r *Registry) Ping(ctx context.Context) (map[string]error, error) {
	results := make(map[string]error, len(r.pools))
	errs := make([]error, len(r.pools))
	names := r.cfg.DataSourceNames()
	var eg errgroup.Group
	for i, name := range names {
		db, query := r.pools[name], r.cfg.DataSources[name].ValidationQuery
		eg.Go(func() error {
			errs[i] = ping(ctx, db, query)
			return errors.Wrapf(errs[i], "datasource %q", name)
		})
	}
	err := eg.Wait()
	for i, name := range names {
		results[name] = errs[i]
	}
	return results, err
}

func ping(ctx context.Context, db *sqlx.DB, query string) error {
	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping failed")
	}
	if query == "" {
		return nil
	}
	if _, err := db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "validation query failed")
	}
	return nil
}

// Close closes every pool.
func (r *Registry) Close() error {
	var first error
	for name, db := range r.pools {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Str("datasource", name).Msg("cannot close datasource")
			if first == nil {
				first = errors.Wrapf(err, "cannot close datasource %q", name)
			}
		}
	}
	r.pools = nil
	return first
}
