package core

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrInvalidTopicName      = errors.New("tasks: invalid topic name")
	ErrTopicNameTooLong      = errors.New("tasks: topic name too long")
	ErrInvalidVariableName   = errors.New("tasks: invalid variable name")
	ErrInvalidArgumentName   = errors.New("tasks: invalid argument name")
	ErrUnknownParsingRule    = errors.New("tasks: unknown parsing rule")
	ErrMissingHandler        = errors.New("tasks: handler is nil")
	ErrInvalidLockDuration   = errors.New("tasks: lock duration must be positive")
	ErrDuplicateSubscription = errors.New("tasks: topic already subscribed")
)

// Runtime errors
var (
	ErrBrokerUnreachable = errors.New("tasks: broker unreachable")
	ErrTaskNotLocked     = errors.New("tasks: task not locked by this worker")
	ErrTaskNotFound      = errors.New("tasks: task not found")
	ErrAlreadyRegistered = errors.New("tasks: subscriptions already registered")
)

// QualifierParseError reports a malformed qualifier expression.
type QualifierParseError struct {
	Expression string
	Reason     string
}

func (e *QualifierParseError) Error() string {
	return fmt.Sprintf("tasks: invalid qualifier %q: %s", e.Expression, e.Reason)
}

// QualifierEvalError reports a failure evaluating a qualifier against a task.
type QualifierEvalError struct {
	Expression string
	Err        error
}

func (e *QualifierEvalError) Error() string {
	return fmt.Sprintf("tasks: evaluate qualifier %q: %v", e.Expression, e.Err)
}

func (e *QualifierEvalError) Unwrap() error {
	return e.Err
}

// ConversionError reports a single argument that could not be converted.
type ConversionError struct {
	Argument string
	Rule     ParsingRule
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("tasks: convert argument %q (%s): %v", e.Argument, e.Rule, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// InvocationError reports a failure raised by the handler itself,
// including recovered panics.
type InvocationError struct {
	Topic string
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tasks: handler for topic %q: %v", e.Topic, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// ProjectionError reports a returnValueProperty that could not be read.
type ProjectionError struct {
	Property string
	Err      error
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("tasks: project property %q: %v", e.Property, e.Err)
}

func (e *ProjectionError) Unwrap() error {
	return e.Err
}

// EncodingError reports a result that could not be encoded into a variable.
type EncodingError struct {
	Variable string
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("tasks: encode result variable %q: %v", e.Variable, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
