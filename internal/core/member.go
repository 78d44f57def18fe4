package core

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/jmoiron/sqlx/reflectx"
)

const (
	tagName        = "sp"
	defaultTagName = "default"

	optTransform = "transform"
	optResultSet = "resultset"
)

// Accessor declares a member through an accessor method instead of a struct tag.
// Method must be an exported Get<X>, Is<X> or Set<X> method of the pointer type,
// and <X> (or <x>) must name a field of the struct.
type Accessor struct {
	Method    string
	Param     string
	Default   *string
	Transform string
	// ResultSet, when positive, declares a list-result member with that ordinal.
	ResultSet int
}

// AccessorDeclarer is implemented by types declaring members through accessors.
type AccessorDeclarer interface {
	SPAccessors() []Accessor
}

// Default returns a pointer to s, for use in Accessor declarations.
func Default(s string) *string {
	return &s
}

var (
	fieldMapper = reflectx.NewMapperFunc(tagName, strings.ToLower)
	typeInfos   sync.Map // reflect.Type -> *typeInfo
)

type member struct {
	param    string
	def      *string
	unit     string
	seq      int
	name     string
	accessor string
	typ      reflect.Type
	index    []int
	exported bool
	getter   string
	setter   string
}

func (m *member) label() string {
	return m.typ.String() + " " + m.name
}

func (m *member) isList() bool {
	return m.seq > 0
}

// typeInfo is the immutable binding metadata of one struct type.
type typeInfo struct {
	typ       reflect.Type
	fields    []*member
	accessors []*member
	lists     []*member
	err       error
}

// scalars returns the non-list members, accessor-declared ones first when
// accessorsFirst is set.
func (ti *typeInfo) scalars(accessorsFirst bool) []*member {
	res := make([]*member, 0, len(ti.fields)+len(ti.accessors))
	if accessorsFirst {
		res = append(res, ti.accessors...)
		return append(res, ti.fields...)
	}
	res = append(res, ti.fields...)
	return append(res, ti.accessors...)
}

func (ti *typeInfo) paramCount() int {
	return len(ti.fields) + len(ti.accessors)
}

// introspect returns the metadata of t, which must be a struct type. Results,
// failures included, are cached per type.
func introspect(t reflect.Type) (*typeInfo, error) {
	ti := lookupTypeInfo(t, map[reflect.Type]bool{})
	return ti, ti.err
}

func lookupTypeInfo(t reflect.Type, visiting map[reflect.Type]bool) *typeInfo {
	if v, ok := typeInfos.Load(t); ok {
		return v.(*typeInfo)
	}
	ti := buildTypeInfo(t, visiting)
	v, _ := typeInfos.LoadOrStore(t, ti)
	return v.(*typeInfo)
}

func buildTypeInfo(t reflect.Type, visiting map[reflect.Type]bool) *typeInfo {
	ti := &typeInfo{typ: t}
	if t.Kind() != reflect.Struct {
		ti.err = newError(KindConfiguration, nil, t.String(), "binding type must be a struct")
		return ti
	}
	visiting[t] = true
	defer delete(visiting, t)

	if err := ti.collectFields(); err != nil {
		ti.err = err
		return ti
	}
	if err := ti.collectAccessors(); err != nil {
		ti.err = err
		return ti
	}

	unique := make(map[string]struct{}, ti.paramCount())
	for _, m := range ti.scalars(false) {
		if _, ok := unique[m.param]; ok {
			ti.err = newError(KindConfiguration, nil, t.String(), "duplicate field %q", m.param)
			return ti
		}
		unique[m.param] = struct{}{}
	}

	for _, m := range ti.lists {
		row, ok := rowType(m.typ)
		if !ok || row.Kind() != reflect.Struct || visiting[row] {
			continue
		}
		if rowInfo := lookupTypeInfo(row, visiting); rowInfo.err != nil {
			ti.err = rowInfo.err
			return ti
		}
	}
	return ti
}

func (ti *typeInfo) collectFields() error {
	if name, ok := unexportedTagged(ti.typ, map[reflect.Type]bool{}); ok {
		return newError(KindConfiguration, nil, ti.typ.String(), "field %s is tagged %q but not exported", name, tagName)
	}
	sm := fieldMapper.TypeMap(ti.typ)
	for _, fi := range sm.Index {
		tag, ok := fi.Field.Tag.Lookup(tagName)
		if !ok || !promoted(fi) {
			continue
		}
		name, opts := parseTag(tag)
		m := &member{
			param:    name,
			unit:     opts[optTransform],
			name:     fi.Field.Name,
			typ:      fi.Field.Type,
			index:    fi.Index,
			exported: true,
		}
		if def, ok := fi.Field.Tag.Lookup(defaultTagName); ok {
			m.def = &def
		}
		if raw, ok := opts[optResultSet]; ok {
			seq, err := parseOrdinal(raw)
			if err != nil {
				return newError(KindConfiguration, nil, ti.typ.String(), "field %s: %s", fi.Field.Name, err)
			}
			m.seq = seq
			ti.lists = append(ti.lists, m)
			continue
		}
		if m.param == "" {
			return newError(KindConfiguration, nil, ti.typ.String(), "field %s declares an empty parameter name", fi.Field.Name)
		}
		ti.fields = append(ti.fields, m)
	}
	return nil
}

// unexportedTagged finds an unexported field carrying the member tag, directly
// or through embedded structs. The field mapper skips such fields.
func unexportedTagged(t reflect.Type, seen map[reflect.Type]bool) (string, bool) {
	if seen[t] {
		return "", false
	}
	seen[t] = true
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			if et := reflectx.Deref(f.Type); et.Kind() == reflect.Struct {
				if name, ok := unexportedTagged(et, seen); ok {
					return name, true
				}
			}
			continue
		}
		if _, ok := f.Tag.Lookup(tagName); ok && !f.IsExported() {
			return f.Name, true
		}
	}
	return "", false
}

// promoted reports whether fi is a direct field of the struct or reachable only
// through embedded structs.
func promoted(fi *reflectx.FieldInfo) bool {
	for p := fi.Parent; p != nil && p.Parent != nil; p = p.Parent {
		if !p.Embedded {
			return false
		}
	}
	return true
}

func (ti *typeInfo) collectAccessors() error {
	decl, ok := reflect.New(ti.typ).Interface().(AccessorDeclarer)
	if !ok {
		return nil
	}
	ptr := reflect.PointerTo(ti.typ)
	for _, a := range decl.SPAccessors() {
		m, err := resolveAccessor(ti.typ, ptr, a)
		if err != nil {
			return err
		}
		if m.isList() {
			ti.lists = append(ti.lists, m)
			continue
		}
		if m.param == "" {
			return newError(KindConfiguration, nil, ti.typ.String(), "accessor %s declares an empty parameter name", a.Method)
		}
		ti.accessors = append(ti.accessors, m)
	}
	return nil
}

func resolveAccessor(t, ptr reflect.Type, a Accessor) (*member, error) {
	if _, ok := ptr.MethodByName(a.Method); !ok {
		return nil, newError(KindConfiguration, nil, t.String(), "accessor %s is not a method of %s", a.Method, ptr)
	}
	stem, ok := accessorStem(a.Method)
	if !ok {
		return nil, newError(KindConfiguration, nil, t.String(),
			"naming-convention violation: accessor %s must be Get<Member>, Is<Member> or Set<Member>", a.Method)
	}
	sf, ok := t.FieldByName(stem)
	if !ok {
		sf, ok = t.FieldByName(lowerFirst(stem))
	}
	if !ok {
		return nil, newError(KindConfiguration, nil, t.String(),
			"naming-convention violation: no member backs accessor %s", a.Method)
	}
	if a.ResultSet < 0 {
		return nil, newError(KindConfiguration, nil, t.String(), "accessor %s: resultset ordinal must be positive", a.Method)
	}
	m := &member{
		param:    a.Param,
		def:      a.Default,
		unit:     a.Transform,
		seq:      a.ResultSet,
		name:     sf.Name,
		accessor: a.Method,
		typ:      sf.Type,
		index:    sf.Index,
		exported: sf.IsExported(),
	}
	for _, prefix := range []string{"Get", "Is"} {
		if meth, ok := ptr.MethodByName(prefix + stem); ok && isGetter(meth.Type) {
			m.getter = meth.Name
			break
		}
	}
	if meth, ok := ptr.MethodByName("Set" + stem); ok && meth.Type.NumIn() == 2 {
		m.setter = meth.Name
	}
	return m, nil
}

func isGetter(ft reflect.Type) bool {
	if ft.NumIn() != 1 {
		return false
	}
	return ft.NumOut() == 1 || (ft.NumOut() == 2 && ft.Out(1) == errorType)
}

func accessorStem(method string) (string, bool) {
	for _, prefix := range []string{"Get", "Set", "Is"} {
		stem, ok := strings.CutPrefix(method, prefix)
		if !ok || stem == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(stem)
		if unicode.IsUpper(r) {
			return stem, true
		}
	}
	return "", false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func parseTag(tag string) (string, map[string]string) {
	parts := strings.Split(tag, ",")
	opts := make(map[string]string, len(parts)-1)
	for _, opt := range parts[1:] {
		k, v, _ := strings.Cut(strings.TrimSpace(opt), "=")
		opts[k] = v
	}
	return strings.TrimSpace(parts[0]), opts
}

func parseOrdinal(raw string) (int, error) {
	if raw == "" {
		return 1, nil
	}
	seq, err := strconv.Atoi(raw)
	if err != nil || seq < 1 {
		return 0, fmt.Errorf("resultset ordinal %q must be a positive integer", raw)
	}
	return seq, nil
}

// rowType returns the row struct type of a list member type ([]R or []*R).
func rowType(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Slice {
		return nil, false
	}
	return reflectx.Deref(t.Elem()), true
}

// get reads the member from the addressable struct value v. Nil pointers and
// nil slices read as null; non-nil pointers are dereferenced.
func (m *member) get(v reflect.Value) (any, error) {
	var fv reflect.Value
	switch {
	case m.getter != "":
		out := v.Addr().MethodByName(m.getter).Call(nil)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		fv = out[0]
	case m.exported:
		var ok bool
		if fv, ok = fieldByIndexRead(v, m.index); !ok {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("member %s has no getter and is not exported", m.name)
	}
	return nullable(fv), nil
}

// set writes val onto the member of the addressable struct value v.
func (m *member) set(v reflect.Value, val any) error {
	if m.setter != "" {
		meth := v.Addr().MethodByName(m.setter)
		arg, err := convertAssign(val, meth.Type().In(0))
		if err != nil {
			return err
		}
		out := meth.Call([]reflect.Value{arg})
		if len(out) == 1 && out[0].Type().Implements(errorType) && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}
	if !m.exported {
		return fmt.Errorf("member %s has no setter and is not exported", m.name)
	}
	fv := reflectx.FieldByIndexes(v, m.index)
	arg, err := convertAssign(val, fv.Type())
	if err != nil {
		return err
	}
	fv.Set(arg)
	return nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// fieldByIndexRead walks index without allocating; a nil embedded pointer on
// the way reports ok == false.
func fieldByIndexRead(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

func nullable(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return nullable(rv.Elem())
	case reflect.Slice, reflect.Map:
		if rv.IsNil() {
			return nil
		}
	}
	return rv.Interface()
}

// convertAssign returns val as a value of type t. A nil val is t's zero value;
// one level of pointer is added or removed as needed.
func convertAssign(val any, t reflect.Type) (reflect.Value, error) {
	if val == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(val)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case t.Kind() == reflect.Pointer && rv.Type().AssignableTo(t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(rv)
		return p, nil
	case rv.Kind() == reflect.Pointer && rv.Type().Elem().AssignableTo(t):
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		return rv.Elem(), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %T to %s", val, t)
}
