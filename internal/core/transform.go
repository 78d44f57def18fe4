package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Transformer converts a raw value into a member's target type. Implementations
// must be stateless; the same unit serves concurrent executions.
type Transformer interface {
	Transform(ctx context.Context, value any, target reflect.Type) (any, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, value any, target reflect.Type) (any, error)

func (f TransformerFunc) Transform(ctx context.Context, value any, target reflect.Type) (any, error) {
	return f(ctx, value, target)
}

// Target is the closed set of types the default transformation produces.
type Target int

const (
	TargetUnsupported Target = iota
	TargetAny
	TargetInt
	TargetFloat
	TargetString
	TargetDecimal
	TargetBigInt
	TargetBool
	TargetDate
	TargetDateTime
)

var (
	decimalType = reflect.TypeOf(decimal.Decimal{})
	bigIntType  = reflect.TypeOf(big.Int{})
	timeType    = reflect.TypeOf(time.Time{})
	dateType    = reflect.TypeOf(Date{})
)

// TargetOf classifies t. A nil type or an interface type is the untyped passthrough.
func TargetOf(t reflect.Type) Target {
	if t == nil {
		return TargetAny
	}
	switch t {
	case decimalType:
		return TargetDecimal
	case bigIntType:
		return TargetBigInt
	case timeType:
		return TargetDateTime
	case dateType:
		return TargetDate
	}
	switch t.Kind() {
	case reflect.Interface:
		return TargetAny
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return TargetInt
	case reflect.Float32, reflect.Float64:
		return TargetFloat
	case reflect.String:
		return TargetString
	case reflect.Bool:
		return TargetBool
	}
	return TargetUnsupported
}

// DefaultTransform is the built-in coercion matrix. Null is always null and the
// passthrough target returns value untouched. Big integers are produced as *big.Int.
func DefaultTransform(ctx context.Context, value any, target reflect.Type) (any, error) {
	if value == nil {
		return nil, nil
	}
	if target != nil && target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	tgt := TargetOf(target)
	if tgt == TargetAny {
		return value, nil
	}
	ec := execContextFrom(ctx)
	if tgt == TargetUnsupported {
		return nil, newError(KindTransformation, ec, target.String(),
			"unsupported type: only integer, float, string, decimal, big integer, boolean, date and date-time are supported")
	}
	v, err := normalize(value)
	if err != nil {
		return nil, wrapError(KindTransformation, ec, err, target.String(), "cannot read %T", value)
	}
	if v == nil {
		return nil, nil
	}
	t := &transformation{ctx: ctx, ec: ec, target: target}
	switch tgt {
	case TargetInt:
		return t.toInt(v)
	case TargetFloat:
		return t.toFloat(v)
	case TargetString:
		return t.toString(v)
	case TargetDecimal:
		return t.toDecimal(v)
	case TargetBigInt:
		return t.toBigInt(v)
	case TargetBool:
		return t.toBool(v)
	case TargetDate:
		return t.toDate(v)
	case TargetDateTime:
		return t.toDateTime(v)
	}
	return nil, t.notSupported(v)
}

// normalize strips driver wrappers: pointers are dereferenced, byte slices
// become strings and driver.Valuer wrappers are unwrapped.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return string(x), nil
	case sql.RawBytes:
		return string(x), nil
	case Date, time.Time, decimal.Decimal, *big.Int:
		return v, nil
	case big.Int:
		return &x, nil
	case driver.Valuer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		dv, err := x.Value()
		if err != nil {
			return nil, err
		}
		return normalize(dv)
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface())
	}
	return v, nil
}

type transformation struct {
	ctx    context.Context
	ec     *execContext
	target reflect.Type
}

func (t *transformation) warn(format string, args ...any) {
	q, m := t.ec.snapshot()
	log.Ctx(t.ctx).Warn().
		Str("query", q).
		Str("member", m).
		Msgf(format+". Transformation may not be safe", args...)
}

func (t *transformation) notSupported(v any) error {
	return newError(KindTransformation, t.ec, t.target.String(), "conversion from %T to %s is not supported", v, t.target)
}

func (t *transformation) parseFailed(err error, s string) error {
	return wrapError(KindTransformation, t.ec, err, t.target.String(), "cannot parse %q as %s", s, t.target)
}

func (t *transformation) cannot(v any, what string) error {
	return newError(KindTransformation, t.ec, t.target.String(), "cannot transform type %T to %s", v, what)
}

// numericText maps the empty string to zero for numeric parsing.
func numericText(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func (t *transformation) toInt(v any) (any, error) {
	bits := t.target.Bits()
	var n int64
	switch x := v.(type) {
	case decimal.Decimal:
		t.warn("converting decimal to %s", t.target)
		n = x.IntPart()
	case *big.Int:
		t.warn("converting big integer to %s", t.target)
		n = x.Int64()
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if rv.Type().Bits() > bits {
				t.warn("converting %s to %s", rv.Type(), t.target)
			}
			n = rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Type().Bits() >= bits {
				t.warn("converting %s to %s", rv.Type(), t.target)
			}
			n = int64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			t.warn("converting %s to %s", rv.Type(), t.target)
			n = int64(rv.Float())
		case reflect.String:
			var err error
			if n, err = strconv.ParseInt(numericText(rv.String()), 10, bits); err != nil {
				return nil, t.parseFailed(err, rv.String())
			}
		default:
			return nil, t.notSupported(v)
		}
	}
	out := reflect.New(t.target).Elem()
	out.SetInt(n)
	return out.Interface(), nil
}

func (t *transformation) toFloat(v any) (any, error) {
	bits := t.target.Bits()
	var f float64
	switch x := v.(type) {
	case decimal.Decimal:
		t.warn("converting decimal to %s", t.target)
		f = x.InexactFloat64()
	case *big.Int:
		t.warn("converting big integer to %s", t.target)
		f, _ = new(big.Float).SetInt(x).Float64()
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			if rv.Type().Bits() > bits {
				t.warn("converting %s to %s", rv.Type(), t.target)
			}
			f = rv.Float()
		case reflect.String:
			var err error
			if f, err = strconv.ParseFloat(numericText(rv.String()), bits); err != nil {
				return nil, t.parseFailed(err, rv.String())
			}
		default:
			return nil, t.notSupported(v)
		}
	}
	out := reflect.New(t.target).Elem()
	out.SetFloat(f)
	return out.Interface(), nil
}

func (t *transformation) toString(v any) (any, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		s = fmt.Sprint(v)
	}
	return reflect.ValueOf(s).Convert(t.target).Interface(), nil
}

func (t *transformation) toDecimal(v any) (any, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case *big.Int:
		t.warn("converting big integer to decimal")
		return decimal.NewFromBigInt(x, 0), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return decimal.NewFromInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(rv.Uint()), 0), nil
	case reflect.Float32:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, t.notSupported(v)
		}
		return decimal.NewFromFloat32(float32(f)), nil
	case reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, t.notSupported(v)
		}
		return decimal.NewFromFloat(f), nil
	case reflect.String:
		d, err := decimal.NewFromString(numericText(rv.String()))
		if err != nil {
			return nil, t.parseFailed(err, rv.String())
		}
		return d, nil
	}
	return nil, t.notSupported(v)
}

func (t *transformation) toBigInt(v any) (any, error) {
	switch x := v.(type) {
	case *big.Int:
		return new(big.Int).Set(x), nil
	case decimal.Decimal:
		t.warn("converting decimal to big integer")
		return x.BigInt(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, t.notSupported(v)
		}
		t.warn("converting %s to big integer", rv.Type())
		return decimal.NewFromFloat(f).BigInt(), nil
	case reflect.String:
		s := rv.String()
		n, ok := new(big.Int).SetString(numericText(s), 10)
		if !ok {
			return nil, t.parseFailed(fmt.Errorf("invalid base-10 integer"), s)
		}
		return n, nil
	}
	return nil, t.notSupported(v)
}

func (t *transformation) toBool(v any) (any, error) {
	rv := reflect.ValueOf(v)
	var b bool
	switch rv.Kind() {
	case reflect.Bool:
		b = rv.Bool()
	case reflect.String:
		s := rv.String()
		switch {
		case strings.EqualFold(s, "true"):
			b = true
		case s == "" || strings.EqualFold(s, "false"):
			b = false
		default:
			return nil, t.parseFailed(fmt.Errorf("expected true or false"), s)
		}
	default:
		return nil, t.cannot(v, "boolean")
	}
	return reflect.ValueOf(b).Convert(t.target).Interface(), nil
}

func (t *transformation) toDate(v any) (any, error) {
	switch x := v.(type) {
	case Date:
		return x, nil
	case time.Time:
		return DateOf(x), nil
	}
	return nil, t.cannot(v, "date")
}

func (t *transformation) toDateTime(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case Date:
		return x.In(time.UTC), nil
	}
	return nil, t.cannot(v, "date-time")
}
