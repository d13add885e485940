// Package context provides internal context helpers for task dispatch.
//
// This package is internal and should not be imported directly.
// It carries the current task and its subscription descriptor through
// handler invocation.
package context
