package core

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/jmoiron/sqlx/reflectx"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Executor runs stored procedures bound to plain structs. It holds no
// per-call state and is safe for concurrent use.
type Executor struct {
	resolver Resolver
	opts     *options
}

func NewExecutor(resolver Resolver, opts ...Option) *Executor {
	return &Executor{resolver: resolver, opts: newOptions(opts...)}
}

// Execute calls the procedure registered under key with the members of input
// and returns a pointer to a new instance of outType holding the output
// parameters and result sets.
func (e *Executor) Execute(ctx context.Context, key string, input any, outType reflect.Type) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if key == "" || input == nil || outType == nil || e.resolver == nil {
		return nil, newError(KindPrecondition, nil, "",
			"procedure key %q, input %v, output type %v and resolver cannot be null", key, input, outType)
	}
	in := reflect.ValueOf(input)
	if in.Kind() == reflect.Pointer {
		if in.IsNil() {
			return nil, newError(KindPrecondition, nil, in.Type().String(), "input cannot be null")
		}
		in = in.Elem()
	}
	if in.Kind() != reflect.Struct {
		return nil, newError(KindPrecondition, nil, in.Type().String(), "input must be a struct")
	}
	if !in.CanAddr() {
		cp := reflect.New(in.Type()).Elem()
		cp.Set(in)
		in = cp
	}
	outType = reflectx.Deref(outType)

	ec := newExecContext(key)
	defer ec.clear()
	logger := e.opts.logger.With().
		Str("sp_key", key).
		Str("execution_id", ec.id.String()).
		Logger()
	ctx = withExecContext(logger.WithContext(ctx), ec)

	inInfo, err := introspect(in.Type())
	if err != nil {
		return nil, err
	}
	outInfo, err := introspect(outType)
	if err != nil {
		return nil, err
	}
	pending, err := sequenceMapping(ec, outInfo)
	if err != nil {
		return nil, err
	}

	conn, err := e.resolver.Conn(ctx, key)
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return nil, wrapError(KindPrecondition, ec, err, "", "invalid key %q, data source cannot be null", key)
		}
		return nil, wrapError(KindExecution, ec, err, "", "cannot acquire connection for key %q", key)
	}
	if conn == nil {
		return nil, newError(KindPrecondition, ec, "", "invalid key %q, data source cannot be null", key)
	}
	defer closeQuietly(ctx, "connection", conn)

	schema, procedure, err := e.resolver.CallTarget(key)
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return nil, wrapError(KindPrecondition, ec, err, "", "unable to find procedure for key %q", key)
		}
		return nil, wrapError(KindConfiguration, ec, err, "", "cannot resolve procedure for key %q", key)
	}
	cmdText := buildCmdText(schema, procedure, inInfo.paramCount()+outInfo.paramCount())
	ec.setQuery(cmdText)
	log.Ctx(ctx).Debug().Str("query", cmdText).Msg("executing stored procedure")

	call, err := conn.PrepareCall(ctx, cmdText)
	if err != nil {
		return nil, wrapError(KindExecution, ec, err, "", "cannot prepare call")
	}
	defer closeQuietly(ctx, "statement", call)

	if err := e.bindInput(ctx, call, inInfo, in); err != nil {
		return nil, err
	}
	if err := e.declareOutputs(ctx, call, outInfo); err != nil {
		return nil, err
	}
	hasResultSet, err := call.Execute(ctx)
	if err != nil {
		return nil, wrapError(KindExecution, ec, err, "", "error executing stored procedure")
	}
	out, err := e.bindOutput(ctx, call, outInfo)
	if err != nil {
		return nil, err
	}
	if err := e.drainResultSets(ctx, call, hasResultSet, outInfo, pending, out.Elem()); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// buildCmdText renders the fixed call template with one placeholder per parameter.
func buildCmdText(schema, procedure string, params int) string {
	cmdText := fmt.Sprintf("{call %s.%s(", schema, procedure)
	for i := 0; i < params; i++ {
		if i > 0 {
			cmdText += ","
		}
		cmdText += "?"
	}
	cmdText += ")}"
	return cmdText
}

func closeQuietly(ctx context.Context, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msgf("cannot close %s", what)
	}
}
