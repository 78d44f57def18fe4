// Package transform provides transformation units for columns whose wire
// representation differs from the Go value: blank-padded CHAR text and
// single-character flags.
package transform

import (
	"context"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/ignaciocaff/spbind/internal/core"
)

// TrimRight removes trailing blanks from text before the default transformation.
var TrimRight core.Transformer = core.TransformerFunc(func(ctx context.Context, value any, target reflect.Type) (any, error) {
	if s, ok := text(value); ok {
		value = trimTrailingWhitespace(s)
	}
	return core.DefaultTransform(ctx, value, target)
})

// Upper upper-cases text before the default transformation.
var Upper core.Transformer = core.TransformerFunc(func(ctx context.Context, value any, target reflect.Type) (any, error) {
	if s, ok := text(value); ok {
		value = strings.ToUpper(s)
	}
	return core.DefaultTransform(ctx, value, target)
})

var (
	// YesNo reads Y/N flag columns.
	YesNo = Flag("Y", "N")
	// SiNo reads S/N flag columns.
	SiNo = Flag("S", "N")
)

// Flag returns a unit mapping a flag column to a boolean member. On output
// trueValue reads as true and falseValue as false; on input a boolean is
// bound as its flag text.
func Flag(trueValue, falseValue string) core.Transformer {
	return flag{trueValue: trueValue, falseValue: falseValue}
}

type flag struct {
	trueValue  string
	falseValue string
}

func (f flag) Transform(ctx context.Context, value any, target reflect.Type) (any, error) {
	if value == nil {
		return nil, nil
	}
	t := target
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch core.TargetOf(t) {
	case core.TargetAny:
		if rv := reflect.ValueOf(value); rv.Kind() == reflect.Bool {
			if rv.Bool() {
				return f.trueValue, nil
			}
			return f.falseValue, nil
		}
	case core.TargetBool:
		if s, ok := text(value); ok {
			switch trimTrailingWhitespace(s) {
			case f.trueValue:
				value = true
			case f.falseValue:
				value = false
			default:
				return nil, errors.Errorf("flag %q is neither %q nor %q", s, f.trueValue, f.falseValue)
			}
		}
	}
	return core.DefaultTransform(ctx, value, target)
}

func text(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

func trimTrailingWhitespace(input string) string {
	if len(input) == 0 {
		return input
	}
	return strings.TrimRight(input, " ")
}
