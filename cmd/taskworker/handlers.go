package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jdziat/simple-external-tasks/pkg/config"
	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/registry"
	"github.com/jdziat/simple-external-tasks/pkg/taskctx"
)

// builtin handlers accept any number of declared arguments.
type builtinHandler func(logger *slog.Logger) core.Invoker

var builtins = map[string]builtinHandler{
	// echo returns its first argument unchanged.
	"echo": func(*slog.Logger) core.Invoker {
		return func(_ context.Context, args []any) (any, error) {
			if len(args) == 0 {
				return nil, nil
			}
			return args[0], nil
		}
	},
	// collect returns every argument as a list.
	"collect": func(*slog.Logger) core.Invoker {
		return func(_ context.Context, args []any) (any, error) {
			return append([]any{}, args...), nil
		}
	},
	// log logs the task and its arguments and returns nothing.
	"log": func(logger *slog.Logger) core.Invoker {
		return func(ctx context.Context, args []any) (any, error) {
			attrs := []any{"args", args}
			if task := taskctx.TaskFromContext(ctx); task != nil {
				attrs = append(attrs, "task_id", task.ID, "business_key", task.BusinessKey)
			}
			logger.InfoContext(ctx, "task received", attrs...)
			return nil, nil
		}
	},
	// fail always returns an error, for exercising failure reporting.
	"fail": func(*slog.Logger) core.Invoker {
		return func(_ context.Context, args []any) (any, error) {
			return nil, fmt.Errorf("handler rejected %d arguments", len(args))
		}
	},
}

func builtinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bindSubscriptions turns the configured subscriptions into a registry of
// descriptors bound to builtin handlers.
func bindSubscriptions(subs []config.SubscriptionConfig, logger *slog.Logger) (*registry.Registry, error) {
	r := registry.New()
	for _, s := range subs {
		newHandler, ok := builtins[s.Handler]
		if !ok {
			return nil, fmt.Errorf("subscription %q: unknown handler %q (available: %v)", s.Topic, s.Handler, builtinNames())
		}
		args, err := s.ArgumentSpecs()
		if err != nil {
			return nil, fmt.Errorf("subscription %q: %w", s.Topic, err)
		}
		desc := core.SubscriptionDescriptor{
			Topic:               s.Topic,
			LockDuration:        s.LockDuration,
			Qualifier:           s.Qualifier,
			Arguments:           args,
			ResultVariable:      s.Result,
			ReturnValueProperty: s.ReturnValueProperty,
			Handler:             newHandler(logger.With("topic", s.Topic)),
		}
		if err := r.Add(desc); err != nil {
			return nil, err
		}
	}
	return r, nil
}
