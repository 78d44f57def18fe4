package core

import (
	"fmt"
	"reflect"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	logger    zerolog.Logger
	units     map[string]Transformer
	factories map[reflect.Type]func() any
}

// Option configures an Executor.
type Option func(*options)

// WithLogger sets the logger attached to every execution.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTransformer registers a named transformation unit, referenced from
// `sp:"name,transform=<unit>"` tags and Accessor.Transform.
func WithTransformer(name string, unit Transformer) Option {
	return func(o *options) {
		o.units[name] = unit
	}
}

// WithFactory registers the constructor used for output and row instances of T.
func WithFactory[T any](fn func() *T) Option {
	return func(o *options) {
		o.factories[reflect.TypeOf((*T)(nil)).Elem()] = func() any { return fn() }
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		logger:    log.Logger,
		units:     map[string]Transformer{},
		factories: map[reflect.Type]func() any{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var defaultUnit = TransformerFunc(DefaultTransform)

func (o *options) unitFor(ec *execContext, owner reflect.Type, m *member) (Transformer, error) {
	if m.unit == "" {
		return defaultUnit, nil
	}
	unit, ok := o.units[m.unit]
	if !ok {
		return nil, newError(KindConfiguration, ec, owner.String(), "transformation unit %q is not registered", m.unit)
	}
	return unit, nil
}

// construct returns a pointer to a new instance of t.
func (o *options) construct(ec *execContext, t reflect.Type) (reflect.Value, error) {
	if fn, ok := o.factories[t]; ok {
		v := reflect.ValueOf(fn())
		if v.Kind() != reflect.Pointer || v.IsNil() {
			return reflect.Value{}, newError(KindBinding, ec, t.String(), "factory returned no instance")
		}
		return v, nil
	}
	if t.Kind() != reflect.Struct {
		return reflect.Value{}, wrapError(KindBinding, ec, fmt.Errorf("%s is not a struct type", t), t.String(),
			"exception while creating object")
	}
	return reflect.New(t), nil
}
