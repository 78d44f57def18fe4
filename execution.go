package spbind

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/ignaciocaff/spbind/internal/core"
)

type (
	Executor         = core.Executor
	Option           = core.Option
	Resolver         = core.Resolver
	Conn             = core.Conn
	Call             = core.Call
	Rows             = core.Rows
	QueryConn        = core.QueryConn
	Dialect          = core.Dialect
	Cursor           = core.Cursor
	CursorRegistrar  = core.CursorRegistrar
	WireType         = core.WireType
	Accessor         = core.Accessor
	AccessorDeclarer = core.AccessorDeclarer
	Date             = core.Date
	Transformer      = core.Transformer
	TransformerFunc  = core.TransformerFunc
	Target           = core.Target
	Error            = core.Error
	Kind             = core.Kind
)

var (
	ErrPrecondition   = core.ErrPrecondition
	ErrConfiguration  = core.ErrConfiguration
	ErrBinding        = core.ErrBinding
	ErrTransformation = core.ErrTransformation
	ErrUnderDelivery  = core.ErrUnderDelivery
	ErrExecution      = core.ErrExecution
	ErrUnknownKey     = core.ErrUnknownKey
)

var (
	DialectEscape   = core.DialectEscape
	DialectOracle   = core.DialectOracle
	DialectMySQL    = core.DialectMySQL
	DialectPostgres = core.DialectPostgres
)

// New returns an executor that obtains connections and call targets from resolver.
func New(resolver Resolver, opts ...Option) *Executor {
	return core.NewExecutor(resolver, opts...)
}

// Execute calls the stored procedure registered under key, binding the members
// of input as parameters, and returns a new O populated from the output
// parameters and result sets.
func Execute[O any](ctx context.Context, exec *Executor, key string, input any) (*O, error) {
	outType := reflect.TypeOf((*O)(nil)).Elem()
	if outType.Kind() == reflect.Pointer {
		return nil, &Error{Kind: core.KindPrecondition, Type: outType.String(),
			Msg: "output type must be a struct type, not a pointer"}
	}
	res, err := exec.Execute(ctx, key, input, outType)
	if err != nil {
		return nil, err
	}
	out, ok := res.(*O)
	if !ok {
		return nil, &Error{Kind: core.KindPrecondition, Type: outType.String(),
			Msg: fmt.Sprintf("unexpected result type %T", res)}
	}
	return out, nil
}

func WithLogger(l zerolog.Logger) Option {
	return core.WithLogger(l)
}

func WithTransformer(name string, unit Transformer) Option {
	return core.WithTransformer(name, unit)
}

func WithFactory[T any](fn func() *T) Option {
	return core.WithFactory(fn)
}

// Default returns a pointer to s, for Accessor.Default.
func Default(s string) *string {
	return core.Default(s)
}

func DateOf(t time.Time) Date {
	return core.DateOf(t)
}

// DefaultTransform is the built-in coercion matrix; custom units may delegate to it.
func DefaultTransform(ctx context.Context, value any, target reflect.Type) (any, error) {
	return core.DefaultTransform(ctx, value, target)
}

// NewSQLConn adapts a database/sql connection for resolvers backed by database/sql.
func NewSQLConn(conn QueryConn, dialect Dialect) Conn {
	return core.NewSQLConn(conn, dialect)
}

// NewRowsCursor returns a Cursor for drivers that bind cursor parameters to
// a *driver.Rows destination.
func NewRowsCursor() Cursor {
	return core.NewRowsCursor()
}
