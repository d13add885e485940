package registry

import (
	"fmt"
	"sync"

	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/internal/handler"
	"github.com/jdziat/simple-external-tasks/pkg/security"
)

// Registry is an ordered set of subscription descriptors.
type Registry struct {
	mu          sync.RWMutex
	descriptors []core.SubscriptionDescriptor
	topics      map[string]int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{topics: make(map[string]int)}
}

// Register binds fn to topic. It panics on an invalid topic, handler
// signature or declaration, the same way a bad route registration would.
//
// fn may take a leading context.Context followed by one parameter per
// declared argument, and may return nothing, error, T or (T, error).
func (r *Registry) Register(topic string, fn any, opts ...Option) {
	desc, err := Build(topic, fn, opts...)
	if err != nil {
		panic(fmt.Sprintf("tasks: register %q: %v", topic, err))
	}
	if err := r.Add(desc); err != nil {
		panic(err.Error())
	}
}

// Build creates a descriptor for fn without registering it.
func Build(topic string, fn any, opts ...Option) (core.SubscriptionDescriptor, error) {
	if err := security.ValidateTopicName(topic); err != nil {
		return core.SubscriptionDescriptor{}, err
	}

	h, err := handler.NewHandler(fn)
	if err != nil {
		return core.SubscriptionDescriptor{}, fmt.Errorf("%w: %v", core.ErrMissingHandler, err)
	}

	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}
	if o.err != nil {
		return core.SubscriptionDescriptor{}, o.err
	}

	if len(o.Arguments) != h.Arity() {
		return core.SubscriptionDescriptor{}, fmt.Errorf("handler takes %d arguments but %d are declared", h.Arity(), len(o.Arguments))
	}
	for i := range o.Arguments {
		arg := &o.Arguments[i]
		if arg.Target == nil && (arg.Rule == core.RuleStringToPojo || arg.Rule == core.RuleBytesToPojo) {
			arg.Target = h.Params[i]
		}
	}

	return core.SubscriptionDescriptor{
		Topic:               topic,
		LockDuration:        o.LockDuration,
		Qualifier:           o.Qualifier,
		Arguments:           o.Arguments,
		ResultVariable:      o.ResultVariable,
		ReturnValueProperty: o.ReturnValueProperty,
		Handler:             h.Execute,
	}, nil
}

// Add appends a prebuilt descriptor. Topics must be unique.
func (r *Registry) Add(desc core.SubscriptionDescriptor) error {
	if err := security.ValidateTopicName(desc.Topic); err != nil {
		return fmt.Errorf("tasks: topic %q: %w", desc.Topic, err)
	}
	if err := security.ValidateVariableName(desc.ResultVariable); err != nil {
		return fmt.Errorf("tasks: topic %q result variable: %w", desc.Topic, err)
	}
	if desc.Handler == nil {
		return fmt.Errorf("tasks: topic %q: %w", desc.Topic, core.ErrMissingHandler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.topics[desc.Topic]; ok {
		return fmt.Errorf("%w: %q", core.ErrDuplicateSubscription, desc.Topic)
	}
	r.topics[desc.Topic] = len(r.descriptors)
	r.descriptors = append(r.descriptors, desc)
	return nil
}

// Has reports whether topic is registered.
func (r *Registry) Has(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[topic]
	return ok
}

// Get returns the descriptor registered for topic.
func (r *Registry) Get(topic string) (core.SubscriptionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.topics[topic]
	if !ok {
		return core.SubscriptionDescriptor{}, false
	}
	return r.descriptors[i], true
}

// Descriptors returns a copy of the registered descriptors in registration order.
func (r *Registry) Descriptors() []core.SubscriptionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.SubscriptionDescriptor(nil), r.descriptors...)
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}
