package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// echoDriver behaves like an Oracle driver with out-binds: ExecContext copies
// every in_<x> argument to the out_<x> destination and opens a two-row cursor
// for every *driver.Rows destination. QueryContext rejects output parameters.
type echoDriver struct {
	mu      sync.Mutex
	queries []string
	cursors []*echoCursorRows
}

var testEchoDriver = &echoDriver{}

func init() {
	sql.Register("spbind_echo", testEchoDriver)
}

func (d *echoDriver) Open(string) (driver.Conn, error) {
	return &echoDriverConn{d: d}, nil
}

func (d *echoDriver) lastQuery() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queries) == 0 {
		return ""
	}
	return d.queries[len(d.queries)-1]
}

type echoDriverConn struct {
	d *echoDriver
}

func (c *echoDriverConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare is not supported")
}

func (c *echoDriverConn) Close() error {
	return nil
}

func (c *echoDriverConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions are not supported")
}

func (c *echoDriverConn) CheckNamedValue(nv *driver.NamedValue) error {
	if _, ok := nv.Value.(sql.Out); ok {
		return nil
	}
	return driver.ErrSkip
}

func (c *echoDriverConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.queries = append(c.d.queries, query)

	inputs := make(map[string]driver.Value, len(args))
	for _, arg := range args {
		if _, ok := arg.Value.(sql.Out); !ok {
			inputs[arg.Name] = arg.Value
		}
	}
	for _, arg := range args {
		out, ok := arg.Value.(sql.Out)
		if !ok {
			continue
		}
		switch dest := out.Dest.(type) {
		case *driver.Rows:
			cursor := &echoCursorRows{name: arg.Name}
			c.d.cursors = append(c.d.cursors, cursor)
			*dest = cursor
		case sql.Scanner:
			in := "in_" + strings.TrimPrefix(arg.Name, "out_")
			if err := dest.Scan(inputs[in]); err != nil {
				return nil, errors.Wrapf(err, "cannot copy %s to %s", in, arg.Name)
			}
		default:
			return nil, fmt.Errorf("unsupported destination %T for %s", out.Dest, arg.Name)
		}
	}
	return driver.RowsAffected(0), nil
}

func (c *echoDriverConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	for _, arg := range args {
		if _, ok := arg.Value.(sql.Out); ok {
			return nil, fmt.Errorf("output parameter %s is not copied back by a query", arg.Name)
		}
	}
	return nil, errors.New("queries are not supported")
}

// echoCursorRows yields the rows (cursor name, 1) and (cursor name, 2).
type echoCursorRows struct {
	name   string
	i      int
	closed bool
}

func (r *echoCursorRows) Columns() []string {
	return []string{"NAME", "N"}
}

func (r *echoCursorRows) Close() error {
	r.closed = true
	return nil
}

func (r *echoCursorRows) Next(dest []driver.Value) error {
	if r.i == 2 {
		return io.EOF
	}
	r.i++
	dest[0] = r.name
	dest[1] = int64(r.i)
	return nil
}
