// Package encode maps handler return values back into broker output variables.
package encode

import (
	"log/slog"
	"reflect"

	"github.com/jdziat/simple-external-tasks/pkg/codec"
	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// Encoder converts handler results into typed output variables.
type Encoder struct {
	codec     core.Codec
	transient bool
	logger    *slog.Logger
}

// Option configures an Encoder.
type Option interface {
	apply(*Encoder)
}

type optionFunc func(*Encoder)

func (f optionFunc) apply(e *Encoder) { f(e) }

// WithCodec sets the codec used for generic JSON results.
func WithCodec(c core.Codec) Option {
	return optionFunc(func(e *Encoder) {
		if c != nil {
			e.codec = c
		}
	})
}

// WithTransient controls the transient flag on generic JSON results.
// Default: true.
func WithTransient(transient bool) Option {
	return optionFunc(func(e *Encoder) {
		e.transient = transient
	})
}

// WithLogger sets the logger used for projection failures.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(e *Encoder) {
		if l != nil {
			e.logger = l
		}
	})
}

// New creates an Encoder.
func New(opts ...Option) *Encoder {
	e := &Encoder{
		codec:     codec.NewJSON(),
		transient: true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(e)
	}
	return e
}

// Encode maps result to a single output variable named name. Dispatch is
// by runtime type: nil, []byte, string, 64-bit integers, then JSON for
// everything else.
func (e *Encoder) Encode(result any, name string) (core.OutputVariables, error) {
	value, err := e.Value(result)
	if err != nil {
		return nil, &core.EncodingError{Variable: name, Err: err}
	}
	return core.OutputVariables{name: value}, nil
}

// Value encodes result into one typed value.
func (e *Encoder) Value(result any) (core.TypedValue, error) {
	if isNil(result) {
		return core.NullValue(), nil
	}

	switch v := result.(type) {
	case core.TypedValue:
		return v, nil
	case []byte:
		return core.BytesValue(v), nil
	case string:
		return core.StringValue(v), nil
	case int64:
		return core.LongValue(v), nil
	case int:
		return core.LongValue(int64(v)), nil
	}

	data, err := e.codec.Encode(result)
	if err != nil {
		return core.TypedValue{}, err
	}
	return core.JSONValue(string(data), e.transient), nil
}

// ProjectAndEncode extracts property from result when it is non-empty and
// encodes the outcome. A failed projection is logged and encodes as null.
func (e *Encoder) ProjectAndEncode(result any, property, name string) (core.OutputVariables, error) {
	if property != "" {
		projected, err := Project(result, property)
		if err != nil {
			e.logger.Warn("error while getting return value property", "property", property, "error", err)
		}
		result = projected
	}
	return e.Encode(result, name)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
