package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/internal/poller"
	"github.com/jdziat/simple-external-tasks/pkg/security"
)

// lockExpirationLayout is the engine's date format, e.g. 2015-10-06T16:34:42.000+0200.
const lockExpirationLayout = "2006-01-02T15:04:05.000-0700"

// APIError is a non-2xx response from the engine.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("camunda: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("camunda: HTTP %d: %s: %s", e.StatusCode, e.Type, e.Message)
}

// Unwrap maps well-known statuses onto the core sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return core.ErrTaskNotFound
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(e.Message), "lock") {
			return core.ErrTaskNotLocked
		}
	}
	return nil
}

// Client implements core.Broker and core.TaskService over the engine REST API.
type Client struct {
	baseURL              string
	http                 *http.Client
	headers              http.Header
	username, password   string
	workerID             string
	maxTasks             int
	asyncResponseTimeout time.Duration
	pollInterval         time.Duration
	usePriority          bool
	logger               *slog.Logger

	mu   sync.Mutex
	subs map[*poller.Poller]struct{}
}

var (
	_ core.Broker      = (*Client)(nil)
	_ core.TaskService = (*Client)(nil)
)

// New creates a client for the engine REST root, e.g. http://localhost:8080/engine-rest.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("camunda: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("camunda: base url %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL:              strings.TrimRight(u.String(), "/"),
		http:                 &http.Client{},
		headers:              make(http.Header),
		workerID:             uuid.New().String(),
		maxTasks:             DefaultMaxTasks,
		asyncResponseTimeout: DefaultAsyncResponseTimeout,
		pollInterval:         DefaultPollInterval,
		usePriority:          true,
		logger:               slog.Default(),
		subs:                 make(map[*poller.Poller]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(c)
		}
	}
	return c, nil
}

// WorkerID returns the id this client locks tasks under.
func (c *Client) WorkerID() string {
	return c.workerID
}

// BaseURL returns the engine REST root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Probe reports whether the engine answers HTTP at all. Any response,
// including an error status, counts as reachable.
func (c *Client) Probe(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrBrokerUnreachable, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

type fetchTopic struct {
	TopicName    string `json:"topicName"`
	LockDuration int64  `json:"lockDuration"`
}

type fetchRequest struct {
	WorkerID             string       `json:"workerId"`
	MaxTasks             int          `json:"maxTasks"`
	UsePriority          bool         `json:"usePriority"`
	AsyncResponseTimeout int64        `json:"asyncResponseTimeout,omitempty"`
	Topics               []fetchTopic `json:"topics"`
}

type lockedTask struct {
	ID                 string                    `json:"id"`
	TopicName          string                    `json:"topicName"`
	WorkerID           string                    `json:"workerId"`
	BusinessKey        string                    `json:"businessKey"`
	ProcessInstanceID  string                    `json:"processInstanceId"`
	ActivityID         string                    `json:"activityId"`
	Retries            *int                      `json:"retries"`
	Priority           int64                     `json:"priority"`
	LockExpirationTime string                    `json:"lockExpirationTime"`
	Variables          map[string]core.WireValue `json:"variables"`
}

// FetchAndLock locks up to maxTasks tasks on topic for this worker. The
// call long-polls for up to the configured async response timeout.
func (c *Client) FetchAndLock(ctx context.Context, topic string, lockDuration time.Duration, maxTasks int) ([]*core.Task, error) {
	body := fetchRequest{
		WorkerID:             c.workerID,
		MaxTasks:             maxTasks,
		UsePriority:          c.usePriority,
		AsyncResponseTimeout: c.asyncResponseTimeout.Milliseconds(),
		Topics:               []fetchTopic{{TopicName: topic, LockDuration: lockDuration.Milliseconds()}},
	}

	var locked []lockedTask
	if err := c.post(ctx, "/external-task/fetchAndLock", body, &locked); err != nil {
		return nil, err
	}

	tasks := make([]*core.Task, 0, len(locked))
	for _, lt := range locked {
		task := &core.Task{
			ID:                lt.ID,
			Topic:             lt.TopicName,
			WorkerID:          lt.WorkerID,
			BusinessKey:       lt.BusinessKey,
			ProcessInstanceID: lt.ProcessInstanceID,
			ActivityID:        lt.ActivityID,
			Priority:          lt.Priority,
			Retries:           lt.Retries,
			LockExpiration:    parseLockExpiration(lt.LockExpirationTime),
		}
		vars, err := core.DecodeVariables(lt.Variables)
		if err != nil {
			c.logger.Error("failed to decode task variables", "topic", topic, "task_id", lt.ID, "error", err)
			c.reportUndecodable(ctx, task, err)
			continue
		}
		task.Variables = vars
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (c *Client) reportUndecodable(ctx context.Context, task *core.Task, cause error) {
	err := c.Fail(ctx, task, core.Failure{
		Message: fmt.Sprintf("Task triggered by subscription to topic %s failed", task.Topic),
		Details: security.SanitizeErrorDetails(cause.Error()),
	})
	if err != nil {
		c.logger.Error("failed to report task failure", "topic", task.Topic, "task_id", task.ID, "error", err)
	}
}

// Subscribe starts polling topic. Locked tasks are handed to h, with at
// most MaxTasks running at once. Polling stops when the returned
// subscription is closed or ctx is cancelled; tasks already handed out
// run to completion.
func (c *Client) Subscribe(ctx context.Context, topic string, lockDuration time.Duration, h core.TaskHandler) (core.Subscription, error) {
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
			return c.FetchAndLock(ctx, topic, lockDuration, max)
		},
		Handler:      h,
		Service:      c,
		PollInterval: c.pollInterval,
		MaxInFlight:  c.maxTasks,
		Logger:       c.logger,
		OnClose: func() {
			c.mu.Lock()
			delete(c.subs, p)
			c.mu.Unlock()
		},
	})

	c.mu.Lock()
	c.subs[p] = struct{}{}
	c.mu.Unlock()
	return p, nil
}

// Close stops every open subscription and waits for in-flight tasks.
func (c *Client) Close() error {
	c.mu.Lock()
	subs := make([]*poller.Poller, 0, len(c.subs))
	for p := range c.subs {
		subs = append(subs, p)
	}
	c.mu.Unlock()

	var errs []error
	for _, p := range subs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type completeRequest struct {
	WorkerID  string                    `json:"workerId"`
	Variables map[string]core.WireValue `json:"variables,omitempty"`
}

// Complete reports task as done with the given output variables.
func (c *Client) Complete(ctx context.Context, task *core.Task, vars core.OutputVariables) error {
	wire, err := core.EncodeVariables(vars)
	if err != nil {
		return err
	}
	return c.post(ctx, "/external-task/"+url.PathEscape(task.ID)+"/complete", completeRequest{
		WorkerID:  c.workerID,
		Variables: wire,
	}, nil)
}

type failureRequest struct {
	WorkerID     string `json:"workerId"`
	ErrorMessage string `json:"errorMessage"`
	ErrorDetails string `json:"errorDetails,omitempty"`
	Retries      int    `json:"retries"`
	RetryTimeout int64  `json:"retryTimeout"`
}

// Fail reports a task failure.
func (c *Client) Fail(ctx context.Context, task *core.Task, f core.Failure) error {
	return c.post(ctx, "/external-task/"+url.PathEscape(task.ID)+"/failure", failureRequest{
		WorkerID:     c.workerID,
		ErrorMessage: f.Message,
		ErrorDetails: f.Details,
		Retries:      f.Retries,
		RetryTimeout: f.RetryTimeout.Milliseconds(),
	}, nil)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("camunda: encode %s: %w", path, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("camunda: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("camunda: decode %s response: %w", path, err)
	}
	return nil
}

func parseLockExpiration(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{lockExpirationLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
