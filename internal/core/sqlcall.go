package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// QueryConn is the part of *sql.Conn (and *sqlx.Conn) the adapter needs.
type QueryConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Cursor is a result set returned through an output parameter (REF CURSOR).
// Dest is bound as sql.Out{Dest: Dest()}; Rows opens it once the call ran.
type Cursor interface {
	Dest() any
	Rows() (driver.Rows, error)
	io.Closer
}

// NewRowsCursor returns a Cursor for drivers binding cursor parameters to a
// *driver.Rows destination, such as godror.
func NewRowsCursor() Cursor {
	return &rowsCursor{}
}

type rowsCursor struct {
	rows driver.Rows
}

func (c *rowsCursor) Dest() any {
	return &c.rows
}

func (c *rowsCursor) Rows() (driver.Rows, error) {
	if c.rows == nil {
		return nil, errors.New("cursor was not opened by the call")
	}
	return c.rows, nil
}

func (c *rowsCursor) Close() error {
	if c.rows == nil {
		return nil
	}
	rows := c.rows
	c.rows = nil
	return rows.Close()
}

// Dialect renders the call escape "{call schema.procedure(?,...)}" in the
// statement syntax of a driver.
type Dialect struct {
	Name string
	// Render builds the statement for target (schema.procedure) from the
	// parameter names in binding order. Nil sends the escape unchanged.
	Render func(target string, params []string) string
	// Positional dialects bind arguments by position and have no output parameters.
	Positional bool
	// NewCursor, when set, makes result sets come back through cursor output
	// parameters instead of as results of the statement.
	NewCursor func() Cursor
}

// WithCursors returns a copy of d reading result sets through cursors made by newCursor.
func (d Dialect) WithCursors(newCursor func() Cursor) Dialect {
	d.NewCursor = newCursor
	return d
}

var (
	// DialectEscape sends the call escape as is, with named arguments.
	DialectEscape = Dialect{Name: "escape"}

	// DialectOracle calls the procedure in a PL/SQL block using named notation.
	DialectOracle = Dialect{Name: "oracle", Render: renderOracle}

	DialectMySQL = Dialect{Name: "mysql", Render: renderPositional(questionMark), Positional: true}

	DialectPostgres = Dialect{Name: "postgres", Render: renderPositional(dollarOrdinal), Positional: true}
)

func questionMark(int) string {
	return "?"
}

func dollarOrdinal(i int) string {
	return fmt.Sprintf("$%d", i+1)
}

func renderOracle(target string, params []string) string {
	cmdText := fmt.Sprintf("BEGIN %s(", target)
	for i, p := range params {
		if i > 0 {
			cmdText += ", "
		}
		cmdText += fmt.Sprintf("%s => :%s", p, p)
	}
	cmdText += "); END;"
	return cmdText
}

func renderPositional(placeholder func(int) string) func(string, []string) string {
	return func(target string, params []string) string {
		cmdText := fmt.Sprintf("CALL %s(", target)
		for i := range params {
			if i > 0 {
				cmdText += ", "
			}
			cmdText += placeholder(i)
		}
		cmdText += ")"
		return cmdText
	}
}

// callTarget extracts schema.procedure from a call escape.
func callTarget(query string) (string, bool) {
	rest, ok := strings.CutPrefix(query, "{call ")
	if !ok || !strings.HasSuffix(rest, ")}") {
		return "", false
	}
	target, _, ok := strings.Cut(rest, "(")
	return target, ok
}

// NewSQLConn adapts a database/sql connection to Conn. Named dialects pass
// inputs as sql.Named arguments and outputs as sql.Named(name, sql.Out{...}).
// A call with outputs or cursors runs through ExecContext, since drivers copy
// sql.Out destinations back only there; its result sets are its cursors.
// Otherwise it runs through QueryContext and its result sets are the
// statement's own. Update counts are not observable through database/sql and
// always read as -1.
func NewSQLConn(conn QueryConn, dialect Dialect) Conn {
	return &sqlConn{conn: conn, dialect: dialect}
}

type sqlConn struct {
	conn    QueryConn
	dialect Dialect
}

func (c *sqlConn) PrepareCall(_ context.Context, query string) (Call, error) {
	return &sqlCall{conn: c.conn, dialect: c.dialect, query: query, outs: map[string]any{}}, nil
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}

type sqlCall struct {
	conn     QueryConn
	dialect  Dialect
	query    string
	names    []string
	args     []any
	outs     map[string]any
	cursors  []Cursor
	cur      int
	executed bool
	rows     *sql.Rows
	pending  bool
}

func (c *sqlCall) SetInput(name string, value any) error {
	if c.executed {
		return errors.New("call already executed")
	}
	value = bindValue(value)
	c.names = append(c.names, name)
	if c.dialect.Positional {
		c.args = append(c.args, value)
	} else {
		c.args = append(c.args, sql.Named(name, value))
	}
	return nil
}

// bindValue turns values database/sql cannot convert into driver values.
func bindValue(value any) any {
	switch x := value.(type) {
	case big.Int:
		return decimal.NewFromBigInt(&x, 0)
	case *big.Int:
		if x == nil {
			return nil
		}
		return decimal.NewFromBigInt(x, 0)
	}
	return value
}

func (c *sqlCall) RegisterOutput(name string, wire WireType) error {
	if c.executed {
		return errors.New("call already executed")
	}
	if c.dialect.Positional {
		return errors.Errorf("output parameter %q: the %s dialect has no output parameters", name, c.dialect.Name)
	}
	if _, ok := c.outs[name]; ok {
		return errors.Errorf("output %q registered twice", name)
	}
	var dest any
	switch wire {
	case WireInteger:
		dest = &sql.NullInt64{}
	case WireFloat, WireDouble:
		dest = &sql.NullFloat64{}
	case WireBoolean:
		dest = &sql.NullBool{}
	case WireTimestamp:
		dest = &sql.NullTime{}
	default:
		dest = &sql.NullString{}
	}
	c.outs[name] = dest
	c.names = append(c.names, name)
	c.args = append(c.args, sql.Named(name, sql.Out{Dest: dest}))
	return nil
}

// statement renders the query through the dialect when it is a call escape.
func (c *sqlCall) statement() string {
	if c.dialect.Render == nil {
		return c.query
	}
	target, ok := callTarget(c.query)
	if !ok {
		return c.query
	}
	return c.dialect.Render(target, c.names)
}

// RegisterCursor binds a cursor parameter for the next result set. Dialects
// without cursors return result sets from the statement, so it is a no-op.
func (c *sqlCall) RegisterCursor(name string) error {
	if c.executed {
		return errors.New("call already executed")
	}
	if c.dialect.NewCursor == nil {
		return nil
	}
	if name == "" {
		return errors.New("a cursor result set needs a parameter name")
	}
	cursor := c.dialect.NewCursor()
	c.cursors = append(c.cursors, cursor)
	c.names = append(c.names, name)
	c.args = append(c.args, sql.Named(name, sql.Out{Dest: cursor.Dest()}))
	return nil
}

func (c *sqlCall) Execute(ctx context.Context) (bool, error) {
	if c.executed {
		return false, errors.New("call already executed")
	}
	c.executed = true
	if len(c.outs) > 0 || len(c.cursors) > 0 {
		if _, err := c.conn.ExecContext(ctx, c.statement(), c.args...); err != nil {
			return false, errors.Wrap(err, "error executing call")
		}
		c.pending = len(c.cursors) > 0
		return c.pending, nil
	}
	rows, err := c.conn.QueryContext(ctx, c.statement(), c.args...)
	if err != nil {
		return false, errors.Wrap(err, "error executing call")
	}
	c.rows = rows
	return c.position()
}

// position reports whether the cursor stands on a result set with columns.
func (c *sqlCall) position() (bool, error) {
	cols, err := c.rows.Columns()
	if err != nil {
		return false, errors.Wrap(err, "cannot read result set columns")
	}
	c.pending = len(cols) > 0
	return c.pending, nil
}

func (c *sqlCall) Output(name string) (any, error) {
	dest, ok := c.outs[name]
	if !ok {
		return nil, errors.Errorf("output %q is not registered", name)
	}
	switch d := dest.(type) {
	case *sql.NullInt64:
		if d.Valid {
			return d.Int64, nil
		}
	case *sql.NullFloat64:
		if d.Valid {
			return d.Float64, nil
		}
	case *sql.NullBool:
		if d.Valid {
			return d.Bool, nil
		}
	case *sql.NullTime:
		if d.Valid {
			return d.Time, nil
		}
	case *sql.NullString:
		if d.Valid {
			return d.String, nil
		}
	}
	return nil, nil
}

func (c *sqlCall) ResultSet() (Rows, error) {
	if !c.pending {
		return nil, nil
	}
	c.pending = false
	if len(c.cursors) > 0 {
		rows, err := c.cursors[c.cur].Rows()
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open cursor %d", c.cur+1)
		}
		cols := rows.Columns()
		return &cursorRows{rows: rows, index: columnIndex(cols), dests: make([]driver.Value, len(cols))}, nil
	}
	cols, err := c.rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read result set columns")
	}
	return &sqlRows{rows: c.rows, index: columnIndex(cols), dests: make([]any, len(cols))}, nil
}

// columnIndex maps lower-cased column names to their first position.
func columnIndex(cols []string) map[string]int {
	index := make(map[string]int, len(cols))
	for i, col := range cols {
		if _, ok := index[strings.ToLower(col)]; !ok {
			index[strings.ToLower(col)] = i
		}
	}
	return index
}

func (c *sqlCall) UpdateCount() int64 {
	return -1
}

func (c *sqlCall) MoreResults(_ context.Context) (bool, error) {
	if len(c.cursors) > 0 {
		c.pending = false
		if c.cur+1 >= len(c.cursors) {
			c.cur = len(c.cursors)
			return false, nil
		}
		c.cur++
		c.pending = true
		return true, nil
	}
	if c.rows == nil {
		return false, nil
	}
	c.pending = false
	if !c.rows.NextResultSet() {
		return false, errors.Wrap(c.rows.Err(), "cannot advance to next result set")
	}
	return c.position()
}

func (c *sqlCall) Close() error {
	var first error
	for _, cursor := range c.cursors {
		if err := cursor.Close(); err != nil && first == nil {
			first = err
		}
	}
	if c.rows != nil {
		if err := c.rows.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// sqlRows reads the current result set of a call. Closing it leaves the
// underlying cursor open so the call can advance to the next result.
type sqlRows struct {
	rows  *sql.Rows
	index map[string]int
	dests []any
	err   error
}

func (r *sqlRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	ptrs := make([]any, len(r.dests))
	for i := range r.dests {
		r.dests[i] = nil
		ptrs[i] = &r.dests[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = errors.Wrap(err, "error scanning row")
		return false
	}
	return true
}

func (r *sqlRows) Value(column string) (any, error) {
	i, ok := r.index[strings.ToLower(column)]
	if !ok {
		return nil, errors.Errorf("column %q not found in result set", column)
	}
	return r.dests[i], nil
}

func (r *sqlRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *sqlRows) Close() error {
	return nil
}

// cursorRows reads a cursor result set. The call closes its cursors, so
// Close is a no-op here too.
type cursorRows struct {
	rows  driver.Rows
	index map[string]int
	dests []driver.Value
	err   error
	done  bool
}

func (r *cursorRows) Next() bool {
	if r.done {
		return false
	}
	for i := range r.dests {
		r.dests[i] = nil
	}
	if err := r.rows.Next(r.dests); err != nil {
		r.done = true
		if err != io.EOF {
			r.err = errors.Wrap(err, "error fetching cursor row")
		}
		return false
	}
	return true
}

func (r *cursorRows) Value(column string) (any, error) {
	i, ok := r.index[strings.ToLower(column)]
	if !ok {
		return nil, errors.Errorf("column %q not found in result set", column)
	}
	return r.dests[i], nil
}

func (r *cursorRows) Err() error {
	return r.err
}

func (r *cursorRows) Close() error {
	return nil
}
