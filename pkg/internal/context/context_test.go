package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

func TestTaskContext_RoundTrip(t *testing.T) {
	tc := &TaskContext{
		Task:       &core.Task{ID: "t-1", Topic: "quote.create"},
		Descriptor: &core.SubscriptionDescriptor{Topic: "quote.create"},
	}

	ctx := WithTaskContext(context.Background(), tc)

	assert.Same(t, tc, GetTaskContext(ctx))
}

func TestGetTaskContext_Missing(t *testing.T) {
	assert.Nil(t, GetTaskContext(context.Background()))
}

func TestGetTaskContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), TaskContextKey{}, "not a task context")
	assert.Nil(t, GetTaskContext(ctx))
}
