// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"errors"
)

// HookFunc runs once the runtime has stopped, e.g. to close a queue client.
type HookFunc func(context.Context) error

// HookRegistry collects post-run hooks while a runtime is being built.
type HookRegistry struct {
	hooks []HookFunc
}

// OnPostRun registers hook. Hooks run in registration order.
func (r *HookRegistry) OnPostRun(hook HookFunc) {
	r.hooks = append(r.hooks, hook)
}

type hookRuntime struct {
	inner Runtime
	hooks []HookFunc
}

// Run runs the inner runtime followed by every hook. A failing runtime or
// hook does not prevent the remaining hooks from running; all errors are joined.
func (rt hookRuntime) Run(ctx context.Context) error {
	runtimeErr := rt.inner.Run(ctx)

	var hookErrors error
	for _, hook := range rt.hooks {
		if err := hook(ctx); err != nil {
			hookErrors = errors.Join(hookErrors, err)
		}
	}
	return errors.Join(runtimeErr, hookErrors)
}

// WithHooks builds a runtime with f and runs the hooks f registered after
// that runtime stops.
//
//	builder := app.WithHooks(func(ctx context.Context, h *app.HookRegistry) (app.Runtime, error) {
//	    producer, err := kafka.NewProducer(ctx, cfg)
//	    if err != nil {
//	        return nil, err
//	    }
//	    h.OnPostRun(func(ctx context.Context) error {
//	        return producer.Close()
//	    })
//	    return buildRuntime(ctx, producer)
//	})
func WithHooks[T Runtime](f func(context.Context, *HookRegistry) (T, error)) Builder[Runtime] {
	return BuilderFunc[Runtime](func(ctx context.Context) (Runtime, error) {
		registry := &HookRegistry{}

		inner, err := f(ctx, registry)
		if err != nil {
			return nil, err
		}

		return hookRuntime{
			inner: inner,
			hooks: registry.hooks,
		}, nil
	})
}
