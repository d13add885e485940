// Package handler provides reflection-based handler execution for the tasks package.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Handler holds metadata about a registered task handler.
type Handler struct {
	Fn         reflect.Value
	Params     []reflect.Type
	HasContext bool
	HasResult  bool
	HasError   bool
}

// NewHandler creates a Handler from a function.
// The function may take an optional leading context.Context followed by
// any number of positional arguments, and must return nothing, error, T,
// or (T, error).
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)

	// Check for typed nil (e.g., var fn func() = nil)
	if fnVal.Kind() == reflect.Func && fnVal.IsNil() {
		return nil, fmt.Errorf("handler function cannot be nil")
	}

	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function")
	}
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("handler must not be variadic")
	}

	handler := &Handler{Fn: fnVal}

	argIdx := 0
	if fnType.NumIn() > 0 && fnType.In(0) == contextType {
		handler.HasContext = true
		argIdx = 1
	}
	for i := argIdx; i < fnType.NumIn(); i++ {
		handler.Params = append(handler.Params, fnType.In(i))
	}

	// Validate return type - allow nothing, error, T or (T, error)
	switch fnType.NumOut() {
	case 0:
	case 1:
		if fnType.Out(0) == errorType {
			handler.HasError = true
		} else {
			handler.HasResult = true
		}
	case 2:
		if fnType.Out(1) != errorType {
			return nil, fmt.Errorf("handler must return (T, error)")
		}
		handler.HasResult = true
		handler.HasError = true
	default:
		return nil, fmt.Errorf("handler must return at most (T, error)")
	}

	return handler, nil
}

// New adapts fn into a core.Invoker.
func New(fn any) (core.Invoker, error) {
	h, err := NewHandler(fn)
	if err != nil {
		return nil, err
	}
	return h.Execute, nil
}

// Arity returns the number of positional arguments, excluding the context.
func (h *Handler) Arity() int {
	return len(h.Params)
}

// Execute runs the handler with the given context and converted arguments.
func (h *Handler) Execute(ctx context.Context, args []any) (any, error) {
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return nil, fmt.Errorf("handler function is nil or invalid")
	}
	if len(args) != len(h.Params) {
		return nil, fmt.Errorf("handler takes %d arguments, got %d", len(h.Params), len(args))
	}

	callArgs := make([]reflect.Value, 0, len(args)+1)
	if h.HasContext {
		callArgs = append(callArgs, reflect.ValueOf(ctx))
	}
	for i, arg := range args {
		v, err := coerce(arg, h.Params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		callArgs = append(callArgs, v)
	}

	results := h.Fn.Call(callArgs)

	var result any
	if h.HasResult && results[0].CanInterface() {
		result = results[0].Interface()
	}
	if h.HasError {
		if errVal := results[len(results)-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}
	return result, nil
}

// coerce turns a converted task value into a value of the parameter type.
// Values that are neither assignable nor numerically convertible take a
// JSON round trip.
func coerce(arg any, target reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(target), nil
	}

	val := reflect.ValueOf(arg)
	if val.Type().AssignableTo(target) {
		return val, nil
	}
	if isNumeric(val.Kind()) && isNumeric(target.Kind()) {
		return val.Convert(target), nil
	}
	if target.Kind() == reflect.Pointer && val.Type().AssignableTo(target.Elem()) {
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(val)
		return ptr, nil
	}

	argBytes, err := json.Marshal(arg)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("failed to marshal %T: %w", arg, err)
	}
	argPtr := reflect.New(target)
	if err := json.Unmarshal(argBytes, argPtr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to unmarshal into %s: %w", target, err)
	}
	return argPtr.Elem(), nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
