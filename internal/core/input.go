package core

import (
	"context"
	"fmt"
	"reflect"
)

// bindInput attaches every scalar member of in (an addressable struct) to the
// call under its declared parameter name. Accessor-declared members go first.
func (e *Executor) bindInput(ctx context.Context, call Call, ti *typeInfo, in reflect.Value) error {
	for _, m := range ti.scalars(true) {
		if err := e.bindInputMember(ctx, call, ti, m, in); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) bindInputMember(ctx context.Context, call Call, ti *typeInfo, m *member, in reflect.Value) (err error) {
	ec := execContextFrom(ctx)
	defer ec.enter(m.label())()
	defer recoverBinding(ec, ti.typ, &err)

	unit, err := e.opts.unitFor(ec, ti.typ, m)
	if err != nil {
		return err
	}
	val, err := m.get(in)
	if err != nil {
		return wrapError(KindBinding, ec, err, ti.typ.String(), "exception while populating call")
	}
	if val == nil && m.def != nil {
		val = *m.def
	}
	val, err = unit.Transform(ctx, val, nil)
	if err != nil {
		return asEngineError(KindTransformation, ec, err, ti.typ.String(), "exception while transforming parameter %q", m.param)
	}
	if err := call.SetInput(m.param, val); err != nil {
		return wrapError(KindBinding, ec, err, ti.typ.String(), "exception while populating call")
	}
	return nil
}

// recoverBinding turns a panic raised by user accessors or reflection into a
// binding failure.
func recoverBinding(ec *execContext, owner reflect.Type, err *error) {
	if r := recover(); r != nil {
		*err = wrapError(KindBinding, ec, fmt.Errorf("panic: %v", r), owner.String(), "exception while binding member")
	}
}
