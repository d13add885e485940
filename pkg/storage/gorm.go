package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/internal/poller"
	"github.com/jdziat/simple-external-tasks/pkg/security"
)

// eligible selects tasks that may be locked now: pending and due, or
// locked with an expired lock.
const eligible = "((status = ? AND (retry_at IS NULL OR retry_at <= ?)) OR (status = ? AND lock_expiration < ?))"

// GormBroker implements core.Broker and core.TaskService using GORM.
type GormBroker struct {
	db           *gorm.DB
	workerID     string
	pollInterval time.Duration
	maxTasks     int
	logger       *slog.Logger

	mu      sync.Mutex
	subs    map[*poller.Poller]struct{}
	sweeper *cron.Cron
}

var (
	_ core.Broker      = (*GormBroker)(nil)
	_ core.TaskService = (*GormBroker)(nil)
)

// NewGormBroker creates a new GORM-backed broker.
func NewGormBroker(db *gorm.DB, opts ...Option) *GormBroker {
	b := &GormBroker{
		db:           db,
		workerID:     uuid.New().String(),
		pollInterval: 100 * time.Millisecond,
		maxTasks:     10,
		logger:       slog.Default(),
		subs:         make(map[*poller.Poller]struct{}),
	}
	for _, opt := range opts {
		opt.apply(b)
	}
	return b
}

// Migrate creates the necessary tables.
func (b *GormBroker) Migrate(ctx context.Context) error {
	return b.db.WithContext(ctx).AutoMigrate(&ExternalTask{})
}

// WorkerID returns the id subscriptions lock tasks under.
func (b *GormBroker) WorkerID() string {
	return b.workerID
}

// Probe pings the database.
func (b *GormBroker) Probe(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrBrokerUnreachable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrBrokerUnreachable, err)
	}
	return nil
}

// Publish stores a new pending task on topic and returns its id.
func (b *GormBroker) Publish(ctx context.Context, topic string, vars core.OutputVariables, opts ...PublishOption) (string, error) {
	if err := security.ValidateTopicName(topic); err != nil {
		return "", err
	}
	data, err := encodeWire(vars)
	if err != nil {
		return "", fmt.Errorf("tasks: publish %q: %w", topic, err)
	}

	task := &ExternalTask{
		ID:        uuid.New().String(),
		Topic:     topic,
		Status:    StatusPending,
		Variables: data,
	}
	for _, opt := range opts {
		opt.applyPublish(task)
	}

	if err := b.db.WithContext(ctx).Create(task).Error; err != nil {
		return "", err
	}
	return task.ID, nil
}

// FetchAndLock locks up to max eligible tasks on topic for workerID,
// highest priority first.
func (b *GormBroker) FetchAndLock(ctx context.Context, workerID, topic string, lockDuration time.Duration, max int) ([]*core.Task, error) {
	if max < 1 {
		return nil, nil
	}
	now := time.Now().UTC()
	lockUntil := now.Add(lockDuration)

	var locked []ExternalTask
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("topic = ?", topic).
			Where(eligible, StatusPending, now, StatusLocked, now).
			Order("priority DESC, created_at ASC").
			Limit(max)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var candidates []ExternalTask
		if err := q.Find(&candidates).Error; err != nil {
			return err
		}

		for _, c := range candidates {
			result := tx.Model(&ExternalTask{}).
				Where("id = ?", c.ID).
				Where(eligible, StatusPending, now, StatusLocked, now).
				Updates(map[string]any{
					"status":          StatusLocked,
					"worker_id":       workerID,
					"lock_expiration": lockUntil,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}
			c.Status = StatusLocked
			c.WorkerID = workerID
			c.LockExpiration = &lockUntil
			locked = append(locked, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tasks := make([]*core.Task, 0, len(locked))
	for i := range locked {
		task, err := locked[i].Task()
		if err != nil {
			b.logger.Error("failed to decode task variables", "topic", topic, "task_id", locked[i].ID, "error", err)
			if failErr := b.Fail(ctx, &core.Task{ID: locked[i].ID, Topic: topic, WorkerID: workerID}, core.Failure{
				Message: fmt.Sprintf("Task triggered by subscription to topic %s failed", topic),
				Details: security.SanitizeErrorDetails(err.Error()),
			}); failErr != nil {
				b.logger.Error("failed to report task failure", "topic", topic, "task_id", locked[i].ID, "error", failErr)
			}
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Subscribe polls topic under the broker's worker id.
func (b *GormBroker) Subscribe(ctx context.Context, topic string, lockDuration time.Duration, h core.TaskHandler) (core.Subscription, error) {
	if err := security.ValidateTopicName(topic); err != nil {
		return nil, err
	}
	if lockDuration <= 0 {
		return nil, core.ErrInvalidLockDuration
	}
	if h == nil {
		return nil, core.ErrMissingHandler
	}

	var p *poller.Poller
	p = poller.Start(ctx, poller.Config{
		Topic: topic,
		Fetch: func(ctx context.Context, max int) ([]*core.Task, error) {
			return b.FetchAndLock(ctx, b.workerID, topic, lockDuration, max)
		},
		Handler:      h,
		Service:      b,
		PollInterval: b.pollInterval,
		MaxInFlight:  b.maxTasks,
		Logger:       b.logger,
		OnClose: func() {
			b.mu.Lock()
			delete(b.subs, p)
			b.mu.Unlock()
		},
	})

	b.mu.Lock()
	b.subs[p] = struct{}{}
	b.mu.Unlock()
	return p, nil
}

// Complete marks a task as done and stores its output variables.
// Validates that the worker holds the lock before completing.
func (b *GormBroker) Complete(ctx context.Context, task *core.Task, vars core.OutputVariables) error {
	data, err := encodeWire(vars)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	result := b.db.WithContext(ctx).
		Model(&ExternalTask{}).
		Where("id = ? AND worker_id = ? AND status = ?", task.ID, b.owner(task), StatusLocked).
		Updates(map[string]any{
			"status":          StatusCompleted,
			"result":          data,
			"completed_at":    now,
			"lock_expiration": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return b.missing(ctx, task.ID)
	}
	return nil
}

// Fail records a failure. With retries left the task returns to the queue
// after RetryTimeout; with none it stays failed.
// Error messages are sanitized before storage.
func (b *GormBroker) Fail(ctx context.Context, task *core.Task, f core.Failure) error {
	now := time.Now().UTC()
	retries := f.Retries
	if retries < 0 {
		retries = 0
	}

	updates := map[string]any{
		"error_message":   security.SanitizeErrorMessage(f.Message),
		"error_details":   security.SanitizeErrorDetails(f.Details),
		"retries":         retries,
		"lock_expiration": nil,
	}
	if retries > 0 {
		updates["status"] = StatusPending
		updates["retry_at"] = now.Add(f.RetryTimeout)
	} else {
		updates["status"] = StatusFailed
		updates["completed_at"] = now
	}

	result := b.db.WithContext(ctx).
		Model(&ExternalTask{}).
		Where("id = ? AND worker_id = ? AND status = ?", task.ID, b.owner(task), StatusLocked).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return b.missing(ctx, task.ID)
	}
	return nil
}

func (b *GormBroker) owner(task *core.Task) string {
	if task.WorkerID != "" {
		return task.WorkerID
	}
	return b.workerID
}

// missing explains why a lock-guarded update touched no rows.
func (b *GormBroker) missing(ctx context.Context, id string) error {
	var count int64
	if err := b.db.WithContext(ctx).Model(&ExternalTask{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
	}
	return fmt.Errorf("%w: %s", core.ErrTaskNotLocked, id)
}

// GetTask retrieves a task by ID.
func (b *GormBroker) GetTask(ctx context.Context, id string) (*ExternalTask, error) {
	var task ExternalTask
	err := b.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTasksByStatus retrieves tasks by status, oldest first.
func (b *GormBroker) GetTasksByStatus(ctx context.Context, status TaskStatus, limit int) ([]*ExternalTask, error) {
	var tasks []*ExternalTask
	err := b.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// QueueDepth counts pending and locked tasks per topic, in that order.
func (b *GormBroker) QueueDepth(ctx context.Context) (map[string][2]int64, error) {
	var rows []struct {
		Topic  string
		Status TaskStatus
		N      int64
	}
	err := b.db.WithContext(ctx).
		Model(&ExternalTask{}).
		Select("topic, status, COUNT(*) AS n").
		Where("status IN ?", []TaskStatus{StatusPending, StatusLocked}).
		Group("topic, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	depth := make(map[string][2]int64)
	for _, r := range rows {
		d := depth[r.Topic]
		if r.Status == StatusPending {
			d[0] = r.N
		} else {
			d[1] = r.N
		}
		depth[r.Topic] = d
	}
	return depth, nil
}

// ReleaseExpiredLocks returns locked tasks whose lock has expired to the queue.
func (b *GormBroker) ReleaseExpiredLocks(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result := b.db.WithContext(ctx).
		Model(&ExternalTask{}).
		Where("status = ?", StatusLocked).
		Where("lock_expiration < ?", now).
		Updates(map[string]any{
			"status":          StatusPending,
			"worker_id":       "",
			"lock_expiration": nil,
		})
	return result.RowsAffected, result.Error
}

// Close stops the sweeper and every open subscription.
func (b *GormBroker) Close() error {
	b.StopSweeper()

	b.mu.Lock()
	subs := make([]*poller.Poller, 0, len(b.subs))
	for p := range b.subs {
		subs = append(subs, p)
	}
	b.mu.Unlock()

	var errs []error
	for _, p := range subs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
