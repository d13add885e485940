package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// TaskStatus is the lifecycle state of a stored task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusLocked    TaskStatus = "locked"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// ExternalTask is the persisted form of a published task.
type ExternalTask struct {
	ID                string     `gorm:"primaryKey;size:36"`
	Topic             string     `gorm:"index;size:255;not null"`
	BusinessKey       string     `gorm:"size:255"`
	ProcessInstanceID string     `gorm:"size:64"`
	ActivityID        string     `gorm:"size:255"`
	Priority          int64      `gorm:"index"`
	Status            TaskStatus `gorm:"index;size:16;not null"`

	// Variables and Result hold wire-format variable maps as JSON.
	Variables []byte
	Result    []byte

	WorkerID       string     `gorm:"index;size:255"`
	LockExpiration *time.Time `gorm:"index"`
	Retries        *int
	RetryAt        *time.Time

	ErrorMessage string `gorm:"size:666"`
	ErrorDetails string `gorm:"type:text"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Task converts the row into the task handed to subscriptions.
func (t *ExternalTask) Task() (*core.Task, error) {
	vars, err := decodeWire(t.Variables)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	return &core.Task{
		ID:                t.ID,
		Topic:             t.Topic,
		WorkerID:          t.WorkerID,
		BusinessKey:       t.BusinessKey,
		ProcessInstanceID: t.ProcessInstanceID,
		ActivityID:        t.ActivityID,
		Priority:          t.Priority,
		Retries:           t.Retries,
		LockExpiration:    t.LockExpiration,
		Variables:         vars,
	}, nil
}

// ResultVariables decodes the variables reported on completion.
func (t *ExternalTask) ResultVariables() (core.Variables, error) {
	return decodeWire(t.Result)
}

func encodeWire(vars core.OutputVariables) ([]byte, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	wire, err := core.EncodeVariables(vars)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire)
}

func decodeWire(data []byte) (core.Variables, error) {
	if len(data) == 0 {
		return core.Variables{}, nil
	}
	var wire map[string]core.WireValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	return core.DecodeVariables(wire)
}
