package core

import "time"

// Event is the interface for all dispatcher events.
type Event interface {
	eventMarker()
}

// SubscriptionOpened is emitted when a topic subscription is registered.
type SubscriptionOpened struct {
	Topic        string
	LockDuration time.Duration
	Timestamp    time.Time
}

func (*SubscriptionOpened) eventMarker() {}

// TaskSkipped is emitted when a task fails its qualifier and is left for redelivery.
type TaskSkipped struct {
	Task      *Task
	Qualifier string
	Timestamp time.Time
}

func (*TaskSkipped) eventMarker() {}

// TaskCompleted is emitted when a task is reported complete.
type TaskCompleted struct {
	Task      *Task
	Variables OutputVariables
	Duration  time.Duration
	Timestamp time.Time
}

func (*TaskCompleted) eventMarker() {}

// TaskFailed is emitted when a task is reported as permanently failed.
type TaskFailed struct {
	Task      *Task
	Error     error
	Timestamp time.Time
}

func (*TaskFailed) eventMarker() {}

// BrokerUnreachable is emitted each time a bootstrap probe fails.
type BrokerUnreachable struct {
	Attempt   int
	Error     error
	Timestamp time.Time
}

func (*BrokerUnreachable) eventMarker() {}
