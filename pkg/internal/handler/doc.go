// Package handler provides internal reflection-based handler execution.
//
// This package is internal and should not be imported directly.
// It provides:
//   - Handler: signature metadata for a registered task handler
//   - Reflection-based argument coercion and invocation
//   - Adaptation of plain Go functions into core.Invoker
package handler
