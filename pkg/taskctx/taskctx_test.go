package taskctx

import (
	"context"
	"testing"

	"github.com/jdziat/simple-external-tasks/pkg/core"
	intctx "github.com/jdziat/simple-external-tasks/pkg/internal/context"
)

func TestTaskFromContext(t *testing.T) {
	t.Run("returns task when set in context", func(t *testing.T) {
		// Arrange
		task := &core.Task{
			ID:          "task-123",
			Topic:       "quote.create",
			BusinessKey: "order-9",
			Variables:   core.Variables{"status": int64(1)},
		}
		ctx := intctx.WithTaskContext(context.Background(), &intctx.TaskContext{Task: task})

		// Act
		result := TaskFromContext(ctx)

		// Assert
		if result == nil {
			t.Fatal("expected task, got nil")
		}
		if result.ID != "task-123" {
			t.Errorf("expected task ID %q, got %q", "task-123", result.ID)
		}
		if got := TaskIDFromContext(ctx); got != "task-123" {
			t.Errorf("expected task ID %q, got %q", "task-123", got)
		}
		if got := BusinessKeyFromContext(ctx); got != "order-9" {
			t.Errorf("expected business key %q, got %q", "order-9", got)
		}
		if got := TopicFromContext(ctx); got != "quote.create" {
			t.Errorf("expected topic %q, got %q", "quote.create", got)
		}
	})

	t.Run("returns nil when not set in context", func(t *testing.T) {
		// Arrange
		ctx := context.Background()

		// Act
		result := TaskFromContext(ctx)

		// Assert
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
		if TaskIDFromContext(ctx) != "" || BusinessKeyFromContext(ctx) != "" || TopicFromContext(ctx) != "" {
			t.Error("expected empty strings outside a handler")
		}
	})
}

func TestVariable(t *testing.T) {
	t.Run("reads undeclared variables", func(t *testing.T) {
		task := &core.Task{Variables: core.Variables{"region": "eu"}}
		ctx := intctx.WithTaskContext(context.Background(), &intctx.TaskContext{Task: task})

		v, ok := Variable(ctx, "region")
		if !ok || v != "eu" {
			t.Errorf("expected region=eu, got %v (present=%v)", v, ok)
		}

		if _, ok := Variable(ctx, "missing"); ok {
			t.Error("expected missing variable to be absent")
		}
	})

	t.Run("absent outside a handler", func(t *testing.T) {
		if _, ok := Variable(context.Background(), "region"); ok {
			t.Error("expected no variable outside a handler")
		}
	})
}

func TestTopicFromContext_PrefersDescriptor(t *testing.T) {
	ctx := intctx.WithTaskContext(context.Background(), &intctx.TaskContext{
		Task:       &core.Task{Topic: "from-task"},
		Descriptor: &core.SubscriptionDescriptor{Topic: "from-descriptor"},
	})

	if got := TopicFromContext(ctx); got != "from-descriptor" {
		t.Errorf("expected %q, got %q", "from-descriptor", got)
	}
}
