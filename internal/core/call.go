package core

import (
	"context"
	"fmt"
)

// Resolver is the configuration collaborator: it owns the pools and the
// key -> schema.procedure mapping.
type Resolver interface {
	// Conn returns a live connection for the procedure key. Unknown keys must
	// be reported with an error wrapping ErrUnknownKey.
	Conn(ctx context.Context, key string) (Conn, error)
	// CallTarget returns the schema and procedure names for the key.
	CallTarget(key string) (schema, procedure string, err error)
}

// Conn is a connection scoped to one execution.
type Conn interface {
	PrepareCall(ctx context.Context, query string) (Call, error)
	Close() error
}

// Call is a prepared stored-procedure call. After Execute the call is
// positioned on its first result; MoreResults moves to the next one.
type Call interface {
	SetInput(name string, value any) error
	RegisterOutput(name string, wire WireType) error
	// Execute runs the call and reports whether the first result is a result set.
	Execute(ctx context.Context) (bool, error)
	Output(name string) (any, error)
	// ResultSet returns the current result set, or nil when the current result
	// is an update count or there are no more results.
	ResultSet() (Rows, error)
	// UpdateCount returns the current update count, or -1 when the current
	// result is a result set or there are no more results.
	UpdateCount() int64
	// MoreResults advances to the next result and reports whether it is a result set.
	MoreResults(ctx context.Context) (bool, error)
	Close() error
}

// CursorRegistrar is implemented by calls whose driver returns result sets
// through cursor parameters. Cursors are registered in result-set order.
type CursorRegistrar interface {
	RegisterCursor(name string) error
}

// Rows is a forward-only cursor over one result set.
type Rows interface {
	Next() bool
	Value(column string) (any, error)
	Err() error
	Close() error
}

// WireType is the declared type of an output parameter. Date and date-time
// members are declared as WireTimestamp rather than falling back to
// WireVarchar, so the driver hands back a time value the Date and DateTime
// arms accept.
type WireType int

const (
	WireVarchar WireType = iota
	WireInteger
	WireFloat
	WireDouble
	WireBoolean
	WireTimestamp
)

func (w WireType) String() string {
	switch w {
	case WireVarchar:
		return "VARCHAR"
	case WireInteger:
		return "INTEGER"
	case WireFloat:
		return "FLOAT"
	case WireDouble:
		return "DOUBLE"
	case WireBoolean:
		return "BOOLEAN"
	case WireTimestamp:
		return "TIMESTAMP"
	}
	return fmt.Sprintf("WireType(%d)", int(w))
}
