// Package config loads worker configuration from YAML, a .env file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/security"
)

// Environment variable names. They override both the YAML file and .env.
const (
	EnvBaseURL              = "TASKS_BASE_URL"
	EnvDatabase             = "TASKS_DATABASE"
	EnvWorkerID             = "TASKS_WORKER_ID"
	EnvLockDuration         = "TASKS_LOCK_DURATION"
	EnvAsyncResponseTimeout = "TASKS_ASYNC_RESPONSE_TIMEOUT"
	EnvMaxTasks             = "TASKS_MAX_TASKS"
	EnvPollInterval         = "TASKS_POLL_INTERVAL"
	EnvProbeInterval        = "TASKS_PROBE_INTERVAL"
	EnvJSONValueTransient   = "TASKS_JSON_VALUE_TRANSIENT"
)

// Config is the worker configuration surface.
type Config struct {
	// BaseURL is the engine REST root, e.g. http://localhost:8080/engine-rest.
	BaseURL string `yaml:"base_url"`
	// Database is a DSN for the embedded broker, used when BaseURL is empty.
	Database string `yaml:"database"`

	WorkerID             string        `yaml:"worker_id"`
	LockDuration         time.Duration `yaml:"lock_duration"`
	AsyncResponseTimeout time.Duration `yaml:"async_response_timeout"`
	MaxTasks             int           `yaml:"max_tasks"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	ProbeInterval        time.Duration `yaml:"probe_interval"`
	// JSONValueTransient marks generic JSON results as transient.
	JSONValueTransient bool `yaml:"json_value_transient"`
	// SweepSchedule is the cron spec for releasing expired locks in the
	// embedded broker.
	SweepSchedule string `yaml:"sweep_schedule"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// SubscriptionConfig declares a subscription bound to a named handler.
type SubscriptionConfig struct {
	Topic   string `yaml:"topic"`
	Handler string `yaml:"handler"`
	// Arguments use "name:rule" notation, e.g. "payload:string->pojo".
	Arguments           []string      `yaml:"arguments"`
	Qualifier           string        `yaml:"qualifier"`
	Result              string        `yaml:"result"`
	ReturnValueProperty string        `yaml:"return_value_property"`
	LockDuration        time.Duration `yaml:"lock_duration"`
}

// ArgumentSpecs parses the declared arguments.
func (s SubscriptionConfig) ArgumentSpecs() ([]core.ArgumentSpec, error) {
	specs := make([]core.ArgumentSpec, 0, len(s.Arguments))
	for _, n := range s.Arguments {
		spec, err := core.ParseArgument(n)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		WorkerID:             uuid.New().String(),
		LockDuration:         30 * time.Second,
		AsyncResponseTimeout: 10 * time.Second,
		MaxTasks:             10,
		PollInterval:         500 * time.Millisecond,
		ProbeInterval:        5 * time.Second,
		JSONValueTransient:   true,
		SweepSchedule:        "@every 30s",
	}
}

// Option configures Load.
type Option interface {
	apply(*loader)
}

type optionFunc func(*loader)

func (f optionFunc) apply(l *loader) { f(l) }

type loader struct {
	file    string
	envFile string
	lookup  func(string) (string, bool)
}

// WithFile reads YAML from path. The file must exist.
func WithFile(path string) Option {
	return optionFunc(func(l *loader) {
		l.file = path
	})
}

// WithEnvFile reads dotenv values from path. Default: ".env". A missing
// file is ignored; an empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return optionFunc(func(l *loader) {
		l.envFile = path
	})
}

// WithLookup replaces os.LookupEnv.
func WithLookup(fn func(string) (string, bool)) Option {
	return optionFunc(func(l *loader) {
		if fn != nil {
			l.lookup = fn
		}
	})
}

// Load builds a Config from defaults, then the YAML file, then .env, then
// the environment, and validates the result.
func Load(opts ...Option) (*Config, error) {
	l := &loader{envFile: ".env", lookup: os.LookupEnv}
	for _, opt := range opts {
		opt.apply(l)
	}

	cfg := Default()
	if l.file != "" {
		if err := cfg.loadYAML(l.file); err != nil {
			return nil, err
		}
	}

	dotenv := map[string]string{}
	if l.envFile != "" {
		values, err := godotenv.Read(l.envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", l.envFile, err)
		}
		if values != nil {
			dotenv = values
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := l.lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str(EnvBaseURL, &c.BaseURL)
	str(EnvDatabase, &c.Database)
	str(EnvWorkerID, &c.WorkerID)

	for key, dst := range map[string]*time.Duration{
		EnvLockDuration:         &c.LockDuration,
		EnvAsyncResponseTimeout: &c.AsyncResponseTimeout,
		EnvPollInterval:         &c.PollInterval,
		EnvProbeInterval:        &c.ProbeInterval,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvMaxTasks); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMaxTasks, err)
		}
		c.MaxTasks = n
	}
	if v, ok := lookup(EnvJSONValueTransient); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvJSONValueTransient, err)
		}
		c.JSONValueTransient = b
	}
	return nil
}

// parseDuration accepts Go durations ("30s") and bare milliseconds ("30000"),
// the unit the engine uses for lock durations.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// Validate checks required fields and clamps limits.
func (c *Config) Validate() error {
	if c.BaseURL == "" && c.Database == "" {
		return fmt.Errorf("config: one of base_url or database is required")
	}
	if c.LockDuration <= 0 {
		return fmt.Errorf("config: lock_duration: %w", core.ErrInvalidLockDuration)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("config: probe_interval must be positive")
	}
	if c.AsyncResponseTimeout < 0 {
		return fmt.Errorf("config: async_response_timeout must not be negative")
	}
	c.MaxTasks = security.ClampConcurrency(c.MaxTasks)

	seen := make(map[string]bool, len(c.Subscriptions))
	for i, s := range c.Subscriptions {
		if err := security.ValidateTopicName(s.Topic); err != nil {
			return fmt.Errorf("config: subscriptions[%d]: %w", i, err)
		}
		if seen[s.Topic] {
			return fmt.Errorf("config: subscriptions[%d]: %w: %q", i, core.ErrDuplicateSubscription, s.Topic)
		}
		seen[s.Topic] = true
		if s.Handler == "" {
			return fmt.Errorf("config: subscriptions[%d] (%s): handler is required", i, s.Topic)
		}
		if err := security.ValidateVariableName(s.Result); err != nil {
			return fmt.Errorf("config: subscriptions[%d] (%s) result: %w", i, s.Topic, err)
		}
		if _, err := s.ArgumentSpecs(); err != nil {
			return fmt.Errorf("config: subscriptions[%d] (%s): %w", i, s.Topic, err)
		}
	}
	return nil
}
