package core

import (
	"context"
	"reflect"
	"sort"

	"github.com/jmoiron/sqlx/reflectx"
	"github.com/rs/zerolog/log"
)

// sequenceMapping maps each result-set ordinal of ti to its list member. The
// ordinals must be unique and form 1..N.
func sequenceMapping(ec *execContext, ti *typeInfo) (map[int]*member, error) {
	seqs := make(map[int]*member, len(ti.lists))
	ordinals := make([]int, 0, len(ti.lists))
	for _, m := range ti.lists {
		ordinals = append(ordinals, m.seq)
		if _, dup := seqs[m.seq]; dup {
			return nil, newError(KindConfiguration, ec, ti.typ.String(),
				"result set sequence numbers must be unique: %v", ordinals)
		}
		seqs[m.seq] = m
	}
	if len(ordinals) == 0 {
		return seqs, nil
	}
	sort.Ints(ordinals)
	if ordinals[0] != 1 {
		return nil, newError(KindConfiguration, ec, ti.typ.String(),
			"result set sequence numbers must start at 1: %v", ordinals)
	}
	if ordinals[len(ordinals)-1] != len(ordinals) {
		return nil, newError(KindConfiguration, ec, ti.typ.String(),
			"result set sequence numbers are not contiguous: %v", ordinals)
	}
	return seqs, nil
}

// drainResultSets walks every remaining result of call, binding the n-th result
// set to the list member with ordinal n. Result sets beyond the declared
// ordinals are skipped.
func (e *Executor) drainResultSets(ctx context.Context, call Call, hasResultSet bool, ti *typeInfo,
	pending map[int]*member, out reflect.Value) error {
	ec := execContextFrom(ctx)
	declared := len(pending)
	seq, consumed := 1, 0
	for hasResultSet || call.UpdateCount() != -1 {
		if hasResultSet {
			m, ok := pending[seq]
			if !ok {
				q, _ := ec.snapshot()
				log.Ctx(ctx).Warn().
					Int("seq_num", seq).
					Str("query", q).
					Msg("result set is ignored: no list member declares this sequence number")
			} else {
				if err := e.bindList(ctx, call, ti, m, out); err != nil {
					return err
				}
				delete(pending, seq)
				seq++
				consumed++
			}
		}
		var err error
		if hasResultSet, err = call.MoreResults(ctx); err != nil {
			return wrapError(KindExecution, ec, err, ti.typ.String(), "cannot move to the next result")
		}
	}

	if consumed == 0 && declared > 0 {
		return e.emptyLists(ctx, ti, out)
	}
	if len(pending) != 0 {
		return newError(KindUnderDelivery, ec, ti.typ.String(),
			"stored procedure didn't return enough result sets: expected %d, actual %d", declared, consumed)
	}
	return nil
}

// emptyLists sets every list member to an empty list; the procedure returned
// no result set at all.
func (e *Executor) emptyLists(ctx context.Context, ti *typeInfo, out reflect.Value) error {
	for _, m := range ti.lists {
		if err := e.emptyList(ctx, ti, m, out); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) emptyList(ctx context.Context, ti *typeInfo, m *member, out reflect.Value) (err error) {
	ec := execContextFrom(ctx)
	defer ec.enter(m.label())()
	defer recoverBinding(ec, ti.typ, &err)
	if err := requireList(ec, ti, m); err != nil {
		return err
	}
	if err := m.set(out, reflect.MakeSlice(m.typ, 0, 0).Interface()); err != nil {
		return wrapError(KindBinding, ec, err, ti.typ.String(), "unable to set result set %d", m.seq)
	}
	return nil
}

func requireList(ec *execContext, ti *typeInfo, m *member) error {
	if m.typ.Kind() != reflect.Slice {
		return newError(KindConfiguration, ec, ti.typ.String(), "result set member %s must be a list, got %s", m.name, m.typ)
	}
	return nil
}

func (e *Executor) bindList(ctx context.Context, call Call, ti *typeInfo, m *member, out reflect.Value) (err error) {
	ec := execContextFrom(ctx)
	defer ec.enter(m.label())()
	defer recoverBinding(ec, ti.typ, &err)
	if err := requireList(ec, ti, m); err != nil {
		return err
	}

	rows, err := call.ResultSet()
	if err != nil {
		return wrapError(KindExecution, ec, err, ti.typ.String(), "exception occurred while processing result set %d", m.seq)
	}
	list := reflect.MakeSlice(m.typ, 0, 0)
	if rows != nil {
		defer closeQuietly(ctx, "result set", rows)
		if list, err = e.materialize(ctx, rows, m.typ); err != nil {
			return err
		}
	}
	if err := m.set(out, list.Interface()); err != nil {
		return wrapError(KindBinding, ec, err, ti.typ.String(), "unable to set result set %d", m.seq)
	}
	return nil
}

// materialize builds one row instance per row of rows into a slice of listType.
func (e *Executor) materialize(ctx context.Context, rows Rows, listType reflect.Type) (reflect.Value, error) {
	ec := execContextFrom(ctx)
	elem := listType.Elem()
	rowT := reflectx.Deref(elem)
	rowInfo, err := introspect(rowT)
	if err != nil {
		return reflect.Value{}, err
	}
	scalars := rowInfo.scalars(false)
	list := reflect.MakeSlice(listType, 0, 0)
	for rows.Next() {
		inst, err := e.opts.construct(ec, rowT)
		if err != nil {
			return reflect.Value{}, err
		}
		for _, m := range scalars {
			if err := e.populate(ctx, rowT, m, inst.Elem(), rows.Value); err != nil {
				return reflect.Value{}, err
			}
		}
		if elem.Kind() == reflect.Pointer {
			list = reflect.Append(list, inst)
		} else {
			list = reflect.Append(list, inst.Elem())
		}
	}
	if err := rows.Err(); err != nil {
		return reflect.Value{}, wrapError(KindExecution, ec, err, rowT.String(), "exception occurred while processing result set")
	}
	return list, nil
}
