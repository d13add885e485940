package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// fakeEngine serves the external-task endpoints from an in-memory queue.
type fakeEngine struct {
	mu        sync.Mutex
	pending   []map[string]any
	fetches   []fetchRequest
	completes map[string]completeRequest
	failures  map[string]failureRequest
}

func newFakeEngine(tasks ...map[string]any) *fakeEngine {
	return &fakeEngine{
		pending:   tasks,
		completes: make(map[string]completeRequest),
		failures:  make(map[string]failureRequest),
	}
}

func (e *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/engine-rest")
	switch {
	case path == "" || path == "/":
		w.WriteHeader(http.StatusNotFound)

	case path == "/external-task/fetchAndLock":
		var req fetchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		e.fetches = append(e.fetches, req)
		n := req.MaxTasks
		if n > len(e.pending) {
			n = len(e.pending)
		}
		batch := e.pending[:n]
		e.pending = e.pending[n:]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(batch)

	case strings.HasSuffix(path, "/complete"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/external-task/"), "/complete")
		if id == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"type":"RestException","message":"External task with id missing does not exist"}`))
			return
		}
		var req completeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		e.completes[id] = req
		w.WriteHeader(http.StatusNoContent)

	case strings.HasSuffix(path, "/failure"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/external-task/"), "/failure")
		var req failureRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		e.failures[id] = req
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (e *fakeEngine) completed() map[string]completeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]completeRequest, len(e.completes))
	for k, v := range e.completes {
		out[k] = v
	}
	return out
}

func (e *fakeEngine) failed() map[string]failureRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]failureRequest, len(e.failures))
	for k, v := range e.failures {
		out[k] = v
	}
	return out
}

func newTestClient(t *testing.T, engine *fakeEngine, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	opts = append([]Option{
		WithWorkerID("worker-1"),
		WithAsyncResponseTimeout(0),
		WithPollInterval(5 * time.Millisecond),
	}, opts...)
	c, err := New(srv.URL+"/engine-rest/", opts...)
	require.NoError(t, err)
	return c
}

func quoteTask(id string, status int64) map[string]any {
	return map[string]any{
		"id":                 id,
		"topicName":          "quote.create",
		"workerId":           "worker-1",
		"businessKey":        "order-" + id,
		"processInstanceId":  "pi-1",
		"activityId":         "Activity_Quote",
		"priority":           3,
		"lockExpirationTime": "2024-03-01T10:00:00.000+0200",
		"variables": map[string]any{
			"status":  map[string]any{"type": "Integer", "value": status},
			"payload": map[string]any{"type": "String", "value": `{"id":1}`},
			"order": map[string]any{
				"type":      "Object",
				"value":     `{"state":{"code":4}}`,
				"valueInfo": map[string]any{"serializationDataFormat": "application/json"},
			},
		},
	}
}

func TestNew_ValidatesBaseURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	c, err := New("http://localhost:8080/engine-rest/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/engine-rest", c.BaseURL())
	assert.NotEmpty(t, c.WorkerID())
	assert.Equal(t, DefaultMaxTasks, c.maxTasks)
}

func TestWithMaxTasks_Clamped(t *testing.T) {
	c, err := New("http://localhost", WithMaxTasks(0))
	require.NoError(t, err)
	assert.Equal(t, 1, c.maxTasks)
}

func TestProbe(t *testing.T) {
	c := newTestClient(t, newFakeEngine())
	assert.NoError(t, c.Probe(context.Background()), "error statuses still mean reachable")

	srv := httptest.NewServer(http.NotFoundHandler())
	down, err := New(srv.URL)
	require.NoError(t, err)
	srv.Close()

	err = down.Probe(context.Background())
	assert.ErrorIs(t, err, core.ErrBrokerUnreachable)
}

func TestFetchAndLock_DecodesTasks(t *testing.T) {
	engine := newFakeEngine(quoteTask("t-1", 1))
	c := newTestClient(t, engine, WithMaxTasks(5))

	tasks, err := c.FetchAndLock(context.Background(), "quote.create", 30*time.Second, 5)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, "t-1", task.ID)
	assert.Equal(t, "quote.create", task.Topic)
	assert.Equal(t, "order-t-1", task.BusinessKey)
	assert.Equal(t, int64(3), task.Priority)
	require.NotNil(t, task.LockExpiration)
	assert.Equal(t, 2024, task.LockExpiration.Year())
	assert.Equal(t, int64(1), task.Variables["status"])
	assert.Equal(t, `{"id":1}`, task.Variables["payload"])
	assert.Equal(t, float64(4), task.Variables.Lookup("order.state.code"))

	require.Len(t, engine.fetches, 1)
	req := engine.fetches[0]
	assert.Equal(t, "worker-1", req.WorkerID)
	assert.Equal(t, 5, req.MaxTasks)
	assert.True(t, req.UsePriority)
	assert.Equal(t, []fetchTopic{{TopicName: "quote.create", LockDuration: 30000}}, req.Topics)
}

func TestFetchAndLock_FailsUndecodableTasks(t *testing.T) {
	bad := quoteTask("t-bad", 1)
	bad["variables"] = map[string]any{"blob": map[string]any{"type": "Bytes", "value": "%%%"}}
	engine := newFakeEngine(bad)
	c := newTestClient(t, engine)

	tasks, err := c.FetchAndLock(context.Background(), "quote.create", time.Second, 1)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	failure, ok := engine.failed()["t-bad"]
	require.True(t, ok)
	assert.Equal(t, "Task triggered by subscription to topic quote.create failed", failure.ErrorMessage)
	assert.Equal(t, 0, failure.Retries)
}

func TestComplete_SendsWireVariables(t *testing.T) {
	engine := newFakeEngine()
	c := newTestClient(t, engine)

	err := c.Complete(context.Background(), &core.Task{ID: "t-1"}, core.OutputVariables{
		"result": core.JSONValue(`{"id":1}`, true),
		"empty":  core.NullValue(),
	})
	require.NoError(t, err)

	req := engine.completed()["t-1"]
	assert.Equal(t, "worker-1", req.WorkerID)
	assert.Equal(t, "Json", req.Variables["result"].Type)
	assert.JSONEq(t, `"{\"id\":1}"`, string(req.Variables["result"].Value))
	assert.Equal(t, true, req.Variables["result"].ValueInfo["transient"])
	assert.Equal(t, "Null", req.Variables["empty"].Type)
}

func TestComplete_NotFound(t *testing.T) {
	c := newTestClient(t, newFakeEngine())

	err := c.Complete(context.Background(), &core.Task{ID: "missing"}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "RestException", apiErr.Type)
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestFail_SendsZeroRetries(t *testing.T) {
	engine := newFakeEngine()
	c := newTestClient(t, engine)

	err := c.Fail(context.Background(), &core.Task{ID: "t-1"}, core.Failure{
		Message: "Task triggered by subscription to topic quote.create failed",
		Details: "pricing service down",
	})
	require.NoError(t, err)

	req := engine.failed()["t-1"]
	assert.Equal(t, "worker-1", req.WorkerID)
	assert.Equal(t, "pricing service down", req.ErrorDetails)
	assert.Equal(t, 0, req.Retries)
	assert.Equal(t, int64(0), req.RetryTimeout)
}

func TestSubscribe_DeliversAndReports(t *testing.T) {
	engine := newFakeEngine(quoteTask("t-1", 1), quoteTask("t-2", 1), quoteTask("t-3", 1))
	c := newTestClient(t, engine, WithMaxTasks(2))

	handler := func(ctx context.Context, task *core.Task, svc core.TaskService) {
		_ = svc.Complete(ctx, task, core.OutputVariables{"seen": core.StringValue(task.ID)})
	}

	sub, err := c.Subscribe(context.Background(), "quote.create", time.Second, handler)
	require.NoError(t, err)
	assert.Equal(t, "quote.create", sub.Topic())

	require.Eventually(t, func() bool { return len(engine.completed()) == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, sub.Close())

	engine.mu.Lock()
	defer engine.mu.Unlock()
	for _, f := range engine.fetches {
		assert.LessOrEqual(t, f.MaxTasks, 2)
	}
}

func TestSubscribe_BoundsInFlightTasks(t *testing.T) {
	var tasks []map[string]any
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		tasks = append(tasks, quoteTask(id, 1))
	}
	engine := newFakeEngine(tasks...)
	c := newTestClient(t, engine, WithMaxTasks(2))

	var mu sync.Mutex
	running, peak, done := 0, 0, 0
	handler := func(ctx context.Context, task *core.Task, svc core.TaskService) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		done++
		mu.Unlock()
	}

	sub, err := c.Subscribe(context.Background(), "quote.create", time.Second, handler)
	require.NoError(t, err)
	assert.Equal(t, "quote.create", sub.Topic())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done == 6
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	assert.LessOrEqual(t, peak, 2)
}

func TestSubscribe_RecoversHandlerPanic(t *testing.T) {
	engine := newFakeEngine(quoteTask("t-1", 1), quoteTask("t-2", 1))
	c := newTestClient(t, engine, WithMaxTasks(1))

	handler := func(ctx context.Context, task *core.Task, svc core.TaskService) {
		if task.ID == "t-1" {
			panic("boom")
		}
		_ = svc.Complete(ctx, task, nil)
	}

	sub, err := c.Subscribe(context.Background(), "quote.create", time.Second, handler)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { _, ok := engine.completed()["t-2"]; return ok }, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribe_Validation(t *testing.T) {
	c := newTestClient(t, newFakeEngine())
	noop := func(context.Context, *core.Task, core.TaskService) {}

	_, err := c.Subscribe(context.Background(), "", time.Second, noop)
	assert.ErrorIs(t, err, core.ErrInvalidTopicName)

	_, err = c.Subscribe(context.Background(), "t", 0, noop)
	assert.ErrorIs(t, err, core.ErrInvalidLockDuration)

	_, err = c.Subscribe(context.Background(), "t", time.Second, nil)
	assert.ErrorIs(t, err, core.ErrMissingHandler)
}

func TestSubscribe_StopsOnContextCancel(t *testing.T) {
	engine := newFakeEngine()
	c := newTestClient(t, engine)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := c.Subscribe(ctx, "quote.create", time.Second, func(context.Context, *core.Task, core.TaskService) {})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.fetches) > 0
	}, time.Second, time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		_ = sub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestParseLockExpiration(t *testing.T) {
	assert.Nil(t, parseLockExpiration(""))
	assert.Nil(t, parseLockExpiration("yesterday"))

	got := parseLockExpiration("2024-03-01T10:00:00Z")
	require.NotNil(t, got)
	assert.Equal(t, 10, got.Hour())
}
