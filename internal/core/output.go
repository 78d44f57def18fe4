package core

import (
	"context"
	"reflect"
	"sort"

	"github.com/jmoiron/sqlx/reflectx"
)

// wireTypeOf chooses the declared output type for a member's static type.
func wireTypeOf(t reflect.Type) WireType {
	t = reflectx.Deref(t)
	switch TargetOf(t) {
	case TargetInt:
		return WireInteger
	case TargetFloat:
		if t.Kind() == reflect.Float32 {
			return WireFloat
		}
		return WireDouble
	case TargetDecimal, TargetBigInt:
		return WireDouble
	case TargetBool:
		return WireBoolean
	case TargetDate, TargetDateTime:
		return WireTimestamp
	}
	return WireVarchar
}

func (e *Executor) declareOutputs(ctx context.Context, call Call, ti *typeInfo) error {
	ec := execContextFrom(ctx)
	for _, m := range ti.scalars(false) {
		if err := call.RegisterOutput(m.param, wireTypeOf(m.typ)); err != nil {
			return wrapError(KindBinding, ec, err, ti.typ.String(), "exception occurred setting output parameter %q", m.param)
		}
	}
	cr, ok := call.(CursorRegistrar)
	if !ok {
		return nil
	}
	lists := append([]*member(nil), ti.lists...)
	sort.Slice(lists, func(i, j int) bool { return lists[i].seq < lists[j].seq })
	for _, m := range lists {
		if err := cr.RegisterCursor(m.param); err != nil {
			return wrapError(KindBinding, ec, err, ti.typ.String(), "exception occurred setting cursor parameter %q", m.param)
		}
	}
	return nil
}

// bindOutput builds a new output instance from the call's output parameters
// and returns a pointer to it.
func (e *Executor) bindOutput(ctx context.Context, call Call, ti *typeInfo) (reflect.Value, error) {
	out, err := e.opts.construct(execContextFrom(ctx), ti.typ)
	if err != nil {
		return reflect.Value{}, err
	}
	for _, m := range ti.scalars(false) {
		if err := e.populate(ctx, ti.typ, m, out.Elem(), call.Output); err != nil {
			return reflect.Value{}, err
		}
	}
	return out, nil
}

// populate reads one member through read, substitutes its default for null,
// transforms it to the member's static type and writes it onto dst.
func (e *Executor) populate(ctx context.Context, owner reflect.Type, m *member, dst reflect.Value,
	read func(string) (any, error)) (err error) {
	ec := execContextFrom(ctx)
	defer ec.enter(m.label())()
	defer recoverBinding(ec, owner, &err)

	unit, err := e.opts.unitFor(ec, owner, m)
	if err != nil {
		return err
	}
	val, err := read(m.param)
	if err != nil {
		return wrapError(KindBinding, ec, err, owner.String(), "exception while reading %q", m.param)
	}
	if val == nil && m.def != nil {
		val = *m.def
	}
	val, err = unit.Transform(ctx, val, m.typ)
	if err != nil {
		return asEngineError(KindTransformation, ec, err, owner.String(), "exception while transforming %q", m.param)
	}
	if err := m.set(dst, val); err != nil {
		return wrapError(KindBinding, ec, err, owner.String(), "exception while setting %q", m.param)
	}
	return nil
}
