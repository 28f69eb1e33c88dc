// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config provides composable, lazily evaluated configuration readers.
//
// A [Reader] produces an optional [Value]. Readers are combined with [Or],
// [Default] and [Map] and are only evaluated when an application is built,
// so every setting can come from the environment, a file or a literal.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// ErrValueNotSet is returned by [Read] when a [Reader] produced no value.
var ErrValueNotSet = errors.New("config: value not set")

// Value is an optional configuration value.
type Value[T any] struct {
	v   T
	set bool
}

// ValueOf returns a [Value] which is set to v.
func ValueOf[T any](v T) Value[T] {
	return Value[T]{v: v, set: true}
}

// Value returns the underlying value and whether it was set.
func (v Value[T]) Value() (T, bool) {
	return v.v, v.set
}

// Reader reads a single configuration value.
type Reader[T any] interface {
	Read(context.Context) (Value[T], error)
}

// ReaderFunc is an adapter to allow the use of ordinary functions as [Reader]s.
type ReaderFunc[T any] func(context.Context) (Value[T], error)

// Read implements the [Reader] interface.
func (f ReaderFunc[T]) Read(ctx context.Context) (Value[T], error) {
	return f(ctx)
}

// EmptyReader returns a [Reader] which never produces a value.
func EmptyReader[T any]() Reader[T] {
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		return Value[T]{}, nil
	})
}

// ReaderOf returns a [Reader] which always produces v.
func ReaderOf[T any](v T) Reader[T] {
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		return ValueOf(v), nil
	})
}

// Read evaluates r and returns its value. A nil reader or an unset
// value results in [ErrValueNotSet].
func Read[T any](ctx context.Context, r Reader[T]) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrValueNotSet
	}
	val, err := r.Read(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := val.Value()
	if !ok {
		return zero, ErrValueNotSet
	}
	return v, nil
}

// Must is like [Read] but panics on any error.
func Must[T any](ctx context.Context, r Reader[T]) T {
	v, err := Read(ctx, r)
	if err != nil {
		panic(err)
	}
	return v
}

// MustOr returns def when r is nil or produces no value. It panics if r fails.
func MustOr[T any](ctx context.Context, def T, r Reader[T]) T {
	v, err := Read(ctx, r)
	if errors.Is(err, ErrValueNotSet) {
		return def
	}
	if err != nil {
		panic(err)
	}
	return v
}

// Or returns the first set value produced by rs, evaluated in order.
func Or[T any](rs ...Reader[T]) Reader[T] {
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		for _, r := range rs {
			if r == nil {
				continue
			}
			val, err := r.Read(ctx)
			if err != nil {
				return Value[T]{}, err
			}
			if _, ok := val.Value(); ok {
				return val, nil
			}
		}
		return Value[T]{}, nil
	})
}

// Default falls back to def when r produces no value.
func Default[T any](def T, r Reader[T]) Reader[T] {
	return Or(r, ReaderOf(def))
}

// Map transforms the value produced by r. f is not called when r
// produces no value.
func Map[A, B any](r Reader[A], f func(context.Context, A) (B, error)) Reader[B] {
	return ReaderFunc[B](func(ctx context.Context) (Value[B], error) {
		if r == nil {
			return Value[B]{}, nil
		}
		val, err := r.Read(ctx)
		if err != nil {
			return Value[B]{}, err
		}
		a, ok := val.Value()
		if !ok {
			return Value[B]{}, nil
		}
		b, err := f(ctx, a)
		if err != nil {
			return Value[B]{}, err
		}
		return ValueOf(b), nil
	})
}

// Once evaluates r a single time and replays its value and error on
// every later read.
func Once[T any](r Reader[T]) Reader[T] {
	var (
		once sync.Once
		val  Value[T]
		err  error
	)
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		once.Do(func() {
			if r == nil {
				return
			}
			val, err = r.Read(ctx)
		})
		return val, err
	})
}

// Env reads the environment variable name. Unset and empty
// variables produce no value.
func Env(name string) Reader[string] {
	return ReaderFunc[string](func(ctx context.Context) (Value[string], error) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return Value[string]{}, nil
		}
		return ValueOf(v), nil
	})
}

// ParseError reports a string value which could not be converted.
type ParseError struct {
	Value string
	Type  string
	Cause error
}

// Error implements the [error] interface.
func (e ParseError) Error() string {
	return fmt.Sprintf("config: failed to parse %q as %s: %s", e.Value, e.Type, e.Cause)
}

// Unwrap returns the underlying parse error.
func (e ParseError) Unwrap() error {
	return e.Cause
}

func parseWith[T any](typ string, r Reader[string], parse func(string) (T, error)) Reader[T] {
	return Map(r, func(ctx context.Context, s string) (T, error) {
		v, err := parse(s)
		if err != nil {
			var zero T
			return zero, ParseError{Value: s, Type: typ, Cause: err}
		}
		return v, nil
	})
}

// BoolFromString parses the string value with [strconv.ParseBool].
func BoolFromString(r Reader[string]) Reader[bool] {
	return parseWith("bool", r, strconv.ParseBool)
}

// IntFromString parses the string value with [strconv.Atoi].
func IntFromString(r Reader[string]) Reader[int] {
	return parseWith("int", r, strconv.Atoi)
}

// Int32FromString parses the string value as a base 10 int32.
func Int32FromString(r Reader[string]) Reader[int32] {
	return parseWith("int32", r, func(s string) (int32, error) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	})
}

// Int64FromString parses the string value as a base 10 int64.
func Int64FromString(r Reader[string]) Reader[int64] {
	return parseWith("int64", r, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

// Float64FromString parses the string value as a float64.
func Float64FromString(r Reader[string]) Reader[float64] {
	return parseWith("float64", r, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// DurationFromString parses the string value with [time.ParseDuration].
func DurationFromString(r Reader[string]) Reader[time.Duration] {
	return parseWith("duration", r, time.ParseDuration)
}
