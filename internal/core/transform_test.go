package core

import (
	"bytes"
	"context"
	"database/sql"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status string

type flag bool

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func TestTargetOf(t *testing.T) {
	for typ, want := range map[reflect.Type]Target{
		typeOf[int]():             TargetInt,
		typeOf[int16]():           TargetInt,
		typeOf[float32]():         TargetFloat,
		typeOf[string]():          TargetString,
		typeOf[status]():          TargetString,
		typeOf[decimal.Decimal](): TargetDecimal,
		typeOf[big.Int]():         TargetBigInt,
		typeOf[bool]():            TargetBool,
		typeOf[Date]():            TargetDate,
		typeOf[time.Time]():       TargetDateTime,
		typeOf[any]():             TargetAny,
		typeOf[uint]():            TargetUnsupported,
		typeOf[[]int]():           TargetUnsupported,
	} {
		assert.Equal(t, want, TargetOf(typ), typ.String())
	}
	assert.Equal(t, TargetAny, TargetOf(nil))
}

func TestDefaultTransform(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 17, 30, 0, 0, time.UTC)
	tests := []struct {
		name   string
		value  any
		target reflect.Type
		want   any
	}{
		{"int64 to int", int64(10), typeOf[int](), 10},
		{"text to int32", "42", typeOf[int32](), int32(42)},
		{"empty text to int", "", typeOf[int](), 0},
		{"bytes to int", []byte("12"), typeOf[int](), 12},
		{"float to int", 3.9, typeOf[int](), 3},
		{"uint to int64", uint8(200), typeOf[int64](), int64(200)},
		{"text to float", "3.5", typeOf[float64](), 3.5},
		{"int to float32", int64(2), typeOf[float32](), float32(2)},
		{"int to string", int64(7), typeOf[string](), "7"},
		{"decimal to string", decimal.RequireFromString("1.5"), typeOf[string](), "1.5"},
		{"text to named string", "ready", typeOf[status](), status("ready")},
		{"text to bool", "TRUE", typeOf[bool](), true},
		{"empty text to bool", "", typeOf[bool](), false},
		{"bool to named bool", true, typeOf[flag](), flag(true)},
		{"date-time to date", ts, typeOf[Date](), Date{Year: 2024, Month: time.March, Day: 5}},
		{"date to date-time", Date{Year: 2024, Month: time.March, Day: 5}, typeOf[time.Time](),
			time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)},
		{"date-time passthrough", ts, typeOf[time.Time](), ts},
		{"pointer target", "5", typeOf[*int](), 5},
		{"pointer source", func() any { n := int64(9); return &n }(), typeOf[int](), 9},
		{"passthrough", struct{ X int }{1}, typeOf[any](), struct{ X int }{1}},
		{"untyped passthrough", "raw", nil, "raw"},
		{"null", nil, typeOf[int](), nil},
		{"null wrapper", sql.NullString{}, typeOf[string](), nil},
		{"valid wrapper", sql.NullInt64{Int64: 4, Valid: true}, typeOf[int](), 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DefaultTransform(context.Background(), tc.value, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDefaultTransform_Decimal(t *testing.T) {
	got, err := DefaultTransform(context.Background(), int64(10), typeOf[decimal.Decimal]())
	require.NoError(t, err)
	d, ok := got.(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("10.0")), d.String())

	got, err = DefaultTransform(context.Background(), "12.340", typeOf[decimal.Decimal]())
	require.NoError(t, err)
	assert.True(t, got.(decimal.Decimal).Equal(decimal.RequireFromString("12.34")))

	got, err = DefaultTransform(context.Background(), 0.25, typeOf[decimal.Decimal]())
	require.NoError(t, err)
	assert.True(t, got.(decimal.Decimal).Equal(decimal.RequireFromString("0.25")))
}

func TestDefaultTransform_BigInt(t *testing.T) {
	got, err := DefaultTransform(context.Background(), "123456789012345678901234567890", typeOf[big.Int]())
	require.NoError(t, err)
	n, ok := got.(*big.Int)
	require.True(t, ok)
	assert.Equal(t, "123456789012345678901234567890", n.String())

	got, err = DefaultTransform(context.Background(), int64(-3), typeOf[*big.Int]())
	require.NoError(t, err)
	assert.Equal(t, 0, got.(*big.Int).Cmp(big.NewInt(-3)))

	got, err = DefaultTransform(context.Background(), decimal.RequireFromString("7.9"), typeOf[big.Int]())
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.(*big.Int).Int64())
}

func TestDefaultTransform_Failures(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		target reflect.Type
		want   string
	}{
		{"unparsable int", "abc", typeOf[int](), `cannot parse "abc"`},
		{"int overflow", "300", typeOf[int8](), `cannot parse "300"`},
		{"unparsable decimal", "1,5", typeOf[decimal.Decimal](), `cannot parse "1,5"`},
		{"unparsable big int", "1.5", typeOf[big.Int](), `cannot parse "1.5"`},
		{"unparsable bool", "yes", typeOf[bool](), `cannot parse "yes"`},
		{"int to bool", int64(1), typeOf[bool](), "cannot transform type int64 to boolean"},
		{"text to date", "2024-01-01", typeOf[Date](), "cannot transform type string to date"},
		{"bool to date-time", true, typeOf[time.Time](), "cannot transform type bool to date-time"},
		{"bool to int", true, typeOf[int](), "conversion from bool to int is not supported"},
		{"unsupported target", "x", typeOf[[]string](), "unsupported type"},
		{"unsigned target", int64(1), typeOf[uint32](), "unsupported type"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DefaultTransform(context.Background(), tc.value, tc.target)
			require.ErrorIs(t, err, ErrTransformation)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDefaultTransform_NarrowingWarning(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	_, err := DefaultTransform(ctx, int32(5), typeOf[int64]())
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = DefaultTransform(ctx, int64(5), typeOf[int16]())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Transformation may not be safe")

	buf.Reset()
	_, err = DefaultTransform(ctx, 1.5, typeOf[int]())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "converting float64 to int")

	buf.Reset()
	_, err = DefaultTransform(ctx, decimal.NewFromInt(3), typeOf[big.Int]())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "converting decimal to big integer")

	buf.Reset()
	_, err = DefaultTransform(ctx, big.NewInt(3), typeOf[decimal.Decimal]())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "converting big integer to decimal")
}

func TestDate(t *testing.T) {
	d := DateOf(time.Date(1999, time.December, 31, 23, 59, 0, 0, time.Local))
	assert.Equal(t, "1999-12-31", d.String())
	assert.False(t, d.IsZero())
	assert.True(t, Date{}.IsZero())

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC), v)
}

func TestWireTypeOf(t *testing.T) {
	assert.Equal(t, WireInteger, wireTypeOf(typeOf[*int32]()))
	assert.Equal(t, WireFloat, wireTypeOf(typeOf[float32]()))
	assert.Equal(t, WireDouble, wireTypeOf(typeOf[float64]()))
	assert.Equal(t, WireDouble, wireTypeOf(typeOf[decimal.Decimal]()))
	assert.Equal(t, WireDouble, wireTypeOf(typeOf[*big.Int]()))
	assert.Equal(t, WireBoolean, wireTypeOf(typeOf[bool]()))
	assert.Equal(t, WireTimestamp, wireTypeOf(typeOf[Date]()))
	assert.Equal(t, WireTimestamp, wireTypeOf(typeOf[time.Time]()))
	assert.Equal(t, WireVarchar, wireTypeOf(typeOf[string]()))
	assert.Equal(t, WireVarchar, wireTypeOf(typeOf[any]()))
}
