// Package taskctx provides public access to the dispatched task for handlers.
package taskctx

import (
	"context"

	"github.com/jdziat/simple-external-tasks/pkg/core"
	intctx "github.com/jdziat/simple-external-tasks/pkg/internal/context"
)

// TaskFromContext returns the current Task from context, or nil if not in a handler.
// Use this to get the task ID for logging or correlation.
func TaskFromContext(ctx context.Context) *core.Task {
	tc := intctx.GetTaskContext(ctx)
	if tc == nil {
		return nil
	}
	return tc.Task
}

// TaskIDFromContext returns the current task ID from context, or empty string if not in a handler.
func TaskIDFromContext(ctx context.Context) string {
	task := TaskFromContext(ctx)
	if task == nil {
		return ""
	}
	return task.ID
}

// BusinessKeyFromContext returns the business key of the process instance
// that created the current task.
func BusinessKeyFromContext(ctx context.Context) string {
	task := TaskFromContext(ctx)
	if task == nil {
		return ""
	}
	return task.BusinessKey
}

// Variable returns a raw task variable, including ones the handler did not
// declare as arguments.
func Variable(ctx context.Context, name string) (any, bool) {
	task := TaskFromContext(ctx)
	if task == nil {
		return nil, false
	}
	return task.Variables.Get(name)
}

// TopicFromContext returns the topic of the subscription dispatching the current task.
func TopicFromContext(ctx context.Context) string {
	tc := intctx.GetTaskContext(ctx)
	if tc == nil {
		return ""
	}
	if tc.Descriptor != nil {
		return tc.Descriptor.Topic
	}
	if tc.Task != nil {
		return tc.Task.Topic
	}
	return ""
}
