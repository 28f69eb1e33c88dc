// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app is the lifecycle shared by every queuein process: build the
// components from configuration, run them until the process is signalled and
// release their resources afterwards.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc/pool"
)

// Builder builds a T from configuration available in the context.
type Builder[T any] interface {
	Build(context.Context) (T, error)
}

// BuilderFunc is an adapter to allow the use of ordinary functions as [Builder]s.
type BuilderFunc[T any] func(context.Context) (T, error)

// Build implements the [Builder] interface.
func (f BuilderFunc[T]) Build(ctx context.Context) (T, error) {
	return f(ctx)
}

// Bind builds A and passes it on to build B.
func Bind[A, B any](builder Builder[A], binder func(A) Builder[B]) Builder[B] {
	return BuilderFunc[B](func(ctx context.Context) (B, error) {
		a, err := builder.Build(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return binder(a).Build(ctx)
	})
}

// Runtime is a long running component.
type Runtime interface {
	Run(context.Context) error
}

// RuntimeFunc is an adapter to allow the use of ordinary functions as [Runtime]s.
type RuntimeFunc func(context.Context) error

// Run implements the [Runtime] interface.
func (f RuntimeFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Concurrently runs all rts at once. The first failure cancels the others;
// a runtime which stops on its own without error stops them too.
func Concurrently(rts ...Runtime) Runtime {
	return RuntimeFunc(func(ctx context.Context) error {
		p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
		stopCtx, stop := context.WithCancel(ctx)
		defer stop()

		for _, rt := range rts {
			p.Go(func(context.Context) error {
				defer stop()
				return rt.Run(stopCtx)
			})
		}

		err := p.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

// Run builds the [Runtime] and runs it. The context given to both is
// cancelled on SIGINT or SIGTERM.
func Run[T Runtime](ctx context.Context, builder Builder[T]) error {
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := builder.Build(sigCtx)
	if err != nil {
		return err
	}
	return rt.Run(sigCtx)
}

// LogError logs a non-nil err through handler.
func LogError(handler slog.Handler, err error) {
	if err == nil {
		return
	}

	log := slog.New(handler)
	log.Error("application error", slog.Any("error", err))
}
