// Package tasks runs handlers for external tasks handed out by a
// work-queue broker.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Declare subscriptions
//	reg := tasks.NewRegistry()
//	reg.Register("quote.create", func(ctx context.Context, q Quote) (Quote, error) {
//	    return createQuote(ctx, q)
//	}, tasks.Args("payload:string->pojo"), tasks.Qualifier("status!=2,3"), tasks.Result("quote"))
//
//	// Connect to the engine
//	broker, _ := tasks.NewClient("http://localhost:8080/engine-rest")
//
//	// Register once the broker answers, then process tasks
//	d, _ := tasks.NewDispatcher(reg)
//	worker := tasks.NewWorker(broker, d)
//	worker.Start(ctx)
package tasks

import (
	"context"
	"reflect"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/simple-external-tasks/pkg/client"
	"github.com/jdziat/simple-external-tasks/pkg/config"
	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/dispatcher"
	"github.com/jdziat/simple-external-tasks/pkg/qualifier"
	"github.com/jdziat/simple-external-tasks/pkg/registry"
	"github.com/jdziat/simple-external-tasks/pkg/security"
	"github.com/jdziat/simple-external-tasks/pkg/storage"
	"github.com/jdziat/simple-external-tasks/pkg/taskctx"
	"github.com/jdziat/simple-external-tasks/pkg/worker"
)

type (
	// Task is a locked unit of work delivered by the broker.
	Task = core.Task

	// Variables is the read-only variable bag attached to a task.
	Variables = core.Variables

	// OutputVariables are typed variables reported on completion.
	OutputVariables = core.OutputVariables

	// TypedValue is a variable value paired with its broker type.
	TypedValue = core.TypedValue

	// ValueType names a broker variable type.
	ValueType = core.ValueType

	// ParsingRule selects how a raw variable becomes a handler argument.
	ParsingRule = core.ParsingRule

	// ArgumentSpec declares one positional handler argument.
	ArgumentSpec = core.ArgumentSpec

	// SubscriptionDescriptor declares one handler bound to one topic.
	SubscriptionDescriptor = core.SubscriptionDescriptor

	// Invoker is the capability-typed call into a handler.
	Invoker = core.Invoker

	// Broker is the external work-queue.
	Broker = core.Broker

	// TaskService reports task outcomes back to the broker.
	TaskService = core.TaskService

	// TaskHandler receives one locked task.
	TaskHandler = core.TaskHandler

	// Subscription is an open topic subscription.
	Subscription = core.Subscription

	// Failure describes a task failure report.
	Failure = core.Failure

	// Codec encodes and decodes object payloads.
	Codec = core.Codec

	// Event is the interface for all dispatcher events.
	Event = core.Event

	// SubscriptionOpened is emitted when a topic subscription is registered.
	SubscriptionOpened = core.SubscriptionOpened

	// TaskSkipped is emitted when a task fails its qualifier.
	TaskSkipped = core.TaskSkipped

	// TaskCompleted is emitted when a task is reported complete.
	TaskCompleted = core.TaskCompleted

	// TaskFailed is emitted when a task is reported failed.
	TaskFailed = core.TaskFailed

	// BrokerUnreachable is emitted each time a bootstrap probe fails.
	BrokerUnreachable = core.BrokerUnreachable

	// QualifierParseError reports a malformed qualifier expression.
	QualifierParseError = core.QualifierParseError

	// QualifierEvalError reports a qualifier that could not be evaluated.
	QualifierEvalError = core.QualifierEvalError

	// ConversionError reports an argument that could not be converted.
	ConversionError = core.ConversionError

	// InvocationError reports a handler error or panic.
	InvocationError = core.InvocationError

	// ProjectionError reports an unreadable return value property.
	ProjectionError = core.ProjectionError

	// EncodingError reports a result that could not be encoded.
	EncodingError = core.EncodingError

	// Predicate is a parsed qualifier.
	Predicate = qualifier.Predicate

	// Registry is an ordered set of subscription descriptors.
	Registry = registry.Registry

	// Option configures a subscription at registration.
	Option = registry.Option

	// Dispatcher routes delivered tasks through the subscription pipeline.
	Dispatcher = dispatcher.Dispatcher

	// DispatcherOption configures a Dispatcher.
	DispatcherOption = dispatcher.Option

	// Outcome is the result of dispatching one task.
	Outcome = dispatcher.Outcome

	// OutcomeKind classifies an Outcome.
	OutcomeKind = dispatcher.OutcomeKind

	// Worker probes the broker and registers subscriptions once it answers.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// WorkerState is the bootstrap state of a Worker.
	WorkerState = worker.State

	// RetryConfig controls bootstrap probing.
	RetryConfig = worker.RetryConfig

	// Client talks to the engine's external-task REST API.
	Client = client.Client

	// ClientOption configures a Client.
	ClientOption = client.Option

	// GormBroker is the embedded database broker.
	GormBroker = storage.GormBroker

	// Config is the worker configuration surface.
	Config = config.Config
)

// Parsing rules
const (
	RuleDefault        = core.RuleDefault
	RuleBytesToString  = core.RuleBytesToString
	RuleBase64ToString = core.RuleBase64ToString
	RuleBase64ToBytes  = core.RuleBase64ToBytes
	RuleStringToPojo   = core.RuleStringToPojo
	RuleBytesToPojo    = core.RuleBytesToPojo
	RuleNumberToString = core.RuleNumberToString
)

// Value types
const (
	TypeNull    = core.TypeNull
	TypeString  = core.TypeString
	TypeBoolean = core.TypeBoolean
	TypeShort   = core.TypeShort
	TypeInteger = core.TypeInteger
	TypeLong    = core.TypeLong
	TypeDouble  = core.TypeDouble
	TypeBytes   = core.TypeBytes
	TypeJSON    = core.TypeJSON
	TypeObject  = core.TypeObject
)

// Outcome kinds
const (
	Skipped   = dispatcher.Skipped
	Completed = dispatcher.Completed
	Failed    = dispatcher.Failed
)

// Worker states
const (
	Unregistered = worker.Unregistered
	Probing      = worker.Probing
	Registered   = worker.Registered
)

// Security limits
const (
	MaxTopicNameLength    = security.MaxTopicNameLength
	MaxVariableNameLength = security.MaxVariableNameLength
	MaxConcurrency        = security.MaxConcurrency
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MinLockDuration       = security.MinLockDuration
)

// Error variables
var (
	ErrInvalidTopicName      = core.ErrInvalidTopicName
	ErrTopicNameTooLong      = core.ErrTopicNameTooLong
	ErrInvalidVariableName   = core.ErrInvalidVariableName
	ErrInvalidArgumentName   = core.ErrInvalidArgumentName
	ErrUnknownParsingRule    = core.ErrUnknownParsingRule
	ErrMissingHandler        = core.ErrMissingHandler
	ErrInvalidLockDuration   = core.ErrInvalidLockDuration
	ErrDuplicateSubscription = core.ErrDuplicateSubscription
	ErrBrokerUnreachable     = core.ErrBrokerUnreachable
	ErrTaskNotLocked         = core.ErrTaskNotLocked
	ErrTaskNotFound          = core.ErrTaskNotFound
	ErrAlreadyRegistered     = core.ErrAlreadyRegistered
)

// Default values
var (
	DefaultLockDuration  = dispatcher.DefaultLockDuration
	DefaultProbeInterval = worker.DefaultProbeInterval
)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return registry.New()
}

// Qualifier sets the routing expression, e.g. "status!=2,3".
func Qualifier(expr string) Option {
	return registry.Qualifier(expr)
}

// Arg appends one argument declaration. target is the decode type for the
// *ToPojo rules; nil infers it from the handler parameter.
func Arg(name string, rule ParsingRule, target reflect.Type) Option {
	return registry.Arg(name, rule, target)
}

// Args appends arguments in "name:rule" notation.
func Args(notations ...string) Option {
	return registry.Args(notations...)
}

// Result names the output variable receiving the handler result.
func Result(name string) Option {
	return registry.Result(name)
}

// ReturnValueProperty projects one field out of the result before encoding.
func ReturnValueProperty(field string) Option {
	return registry.ReturnValueProperty(field)
}

// LockDuration sets the subscription lock duration.
func LockDuration(d time.Duration) Option {
	return registry.LockDuration(d)
}

// NewDispatcher compiles the registered subscriptions.
func NewDispatcher(r *Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	return dispatcher.New(r.Descriptors(), opts...)
}

// NewWorker creates a bootstrap worker that opens d on broker.
func NewWorker(broker Broker, d *Dispatcher, opts ...WorkerOption) *Worker {
	return worker.NewWorker(broker, d, opts...)
}

// WithProbeInterval sets the fixed wait between bootstrap probes.
func WithProbeInterval(d time.Duration) WorkerOption {
	return worker.WithProbeInterval(d)
}

// WithMaxAttempts bounds the number of bootstrap probes. Zero means unbounded.
func WithMaxAttempts(n int) WorkerOption {
	return worker.WithMaxAttempts(n)
}

// Start probes broker until it answers, then opens every subscription in r.
// It blocks until registration succeeds or ctx is cancelled; the returned
// Dispatcher must be closed to stop processing.
func Start(ctx context.Context, broker Broker, r *Registry, opts ...WorkerOption) (*Dispatcher, error) {
	d, err := NewDispatcher(r)
	if err != nil {
		return nil, err
	}
	if err := NewWorker(broker, d, opts...).Start(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// NewClient creates a REST client for the engine at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	return client.New(baseURL, opts...)
}

// NewGormBroker creates an embedded broker on db.
func NewGormBroker(db *gorm.DB, opts ...storage.Option) *GormBroker {
	return storage.NewGormBroker(db, opts...)
}

// OpenDatabase opens a database for the embedded broker.
func OpenDatabase(dsn string) (*gorm.DB, error) {
	return storage.Open(dsn)
}

// LoadConfig loads configuration from defaults, YAML, .env and the environment.
func LoadConfig(opts ...config.Option) (*Config, error) {
	return config.Load(opts...)
}

// ParseQualifier parses a routing expression.
func ParseQualifier(expr string) (*Predicate, error) {
	return qualifier.Parse(expr)
}

// TypeOf returns the type token for T, for use with Arg.
func TypeOf[T any]() reflect.Type {
	return core.TypeOf[T]()
}

// ValueOf infers a TypedValue for a plain Go value.
func ValueOf(v any) TypedValue {
	return core.ValueOf(v)
}

// JSONValue returns a Json value holding encoded JSON text.
func JSONValue(text string, transient bool) TypedValue {
	return core.JSONValue(text, transient)
}

// TaskFromContext returns the task being handled, or nil outside a handler.
func TaskFromContext(ctx context.Context) *Task {
	return taskctx.TaskFromContext(ctx)
}

// TaskIDFromContext returns the current task id.
func TaskIDFromContext(ctx context.Context) string {
	return taskctx.TaskIDFromContext(ctx)
}

// BusinessKeyFromContext returns the current task's business key.
func BusinessKeyFromContext(ctx context.Context) string {
	return taskctx.BusinessKeyFromContext(ctx)
}
