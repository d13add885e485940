// Package context provides context helpers for the tasks package.
package context

import (
	"context"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// TaskContextKey is the key for storing task context in context.Context.
type TaskContextKey struct{}

// TaskContext holds the task being dispatched and the subscription that received it.
type TaskContext struct {
	Task       *core.Task
	Descriptor *core.SubscriptionDescriptor
}

// GetTaskContext retrieves the task context from a context.Context.
func GetTaskContext(ctx context.Context) *TaskContext {
	if tc, ok := ctx.Value(TaskContextKey{}).(*TaskContext); ok {
		return tc
	}
	return nil
}

// WithTaskContext adds task context to a context.Context.
func WithTaskContext(ctx context.Context, tc *TaskContext) context.Context {
	return context.WithValue(ctx, TaskContextKey{}, tc)
}
