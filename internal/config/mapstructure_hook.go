package config

import (
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	gostr "github.com/xhit/go-str2duration/v2"
)

// StringToDurationHookFunc decodes durations with day and week units ("1d12h")
// on top of the time.ParseDuration syntax.
func StringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return gostr.ParseDuration(data.(string))
	}
}
