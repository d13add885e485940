package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jdziat/simple-external-tasks/pkg/security"
)

// Defaults for the external-task client.
const (
	DefaultMaxTasks             = 10
	DefaultAsyncResponseTimeout = 10 * time.Second
	DefaultPollInterval         = 500 * time.Millisecond
)

// Option configures a Client.
type Option interface {
	apply(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithWorkerID sets the worker id used to lock tasks. Default: a random UUID.
func WithWorkerID(id string) Option {
	return optionFunc(func(c *Client) {
		if id != "" {
			c.workerID = id
		}
	})
}

// WithMaxTasks sets how many tasks one subscription may lock and run at once.
// Values are clamped to [1, MaxConcurrency].
func WithMaxTasks(n int) Option {
	return optionFunc(func(c *Client) {
		c.maxTasks = security.ClampConcurrency(n)
	})
}

// WithAsyncResponseTimeout sets the long-polling window of fetchAndLock.
// Zero disables long polling.
func WithAsyncResponseTimeout(d time.Duration) Option {
	return optionFunc(func(c *Client) {
		if d >= 0 {
			c.asyncResponseTimeout = d
		}
	})
}

// WithPollInterval sets the minimum spacing between fetchAndLock calls on
// one subscription.
func WithPollInterval(d time.Duration) Option {
	return optionFunc(func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	})
}

// WithUsePriority asks the engine to hand out higher-priority tasks first.
// Default: true.
func WithUsePriority(enabled bool) Option {
	return optionFunc(func(c *Client) {
		c.usePriority = enabled
	})
}

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	})
}

// WithHeader adds a static header to all outgoing requests.
func WithHeader(name, value string) Option {
	return optionFunc(func(c *Client) {
		c.headers.Add(name, value)
	})
}

// WithBasicAuth sends HTTP basic credentials with every request.
func WithBasicAuth(username, password string) Option {
	return optionFunc(func(c *Client) {
		c.username = username
		c.password = password
	})
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Client) {
		if l != nil {
			c.logger = l
		}
	})
}
