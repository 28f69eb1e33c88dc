// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func healthyBinary() *Binary {
	var b Binary
	b.MarkHealthy()
	return &b
}

func TestBinary_Healthy(t *testing.T) {
	t.Run("will be unhealthy", func(t *testing.T) {
		t.Run("if it is the zero value", func(t *testing.T) {
			var b Binary

			healthy, err := b.Healthy(context.Background())
			assert.NoError(t, err)
			assert.False(t, healthy)
		})

		t.Run("if it was marked unhealthy", func(t *testing.T) {
			b := healthyBinary()
			b.MarkUnhealthy()

			healthy, err := b.Healthy(context.Background())
			assert.NoError(t, err)
			assert.False(t, healthy)
		})
	})
}

func TestAndMonitor_Healthy(t *testing.T) {
	t.Run("will return unhealthy", func(t *testing.T) {
		t.Run("if at least one of the Monitors return unhealthy", func(t *testing.T) {
			and := And(healthyBinary(), &Binary{}, healthyBinary())

			healthy, err := and.Healthy(context.Background())
			assert.NoError(t, err)
			assert.False(t, healthy)
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if at least one of the Monitors return an error", func(t *testing.T) {
			healthErr := errors.New("queue unreachable")
			failing := MonitorFunc(func(ctx context.Context) (bool, error) {
				return false, healthErr
			})

			and := And(healthyBinary(), failing, healthyBinary())

			healthy, err := and.Healthy(context.Background())
			assert.ErrorIs(t, err, healthErr)
			assert.False(t, healthy)
		})
	})

	t.Run("will return healthy", func(t *testing.T) {
		t.Run("if all Monitors are healthy", func(t *testing.T) {
			healthy, err := And(healthyBinary(), healthyBinary()).Healthy(context.Background())
			assert.NoError(t, err)
			assert.True(t, healthy)
		})
	})
}

func TestOrMonitor_Healthy(t *testing.T) {
	t.Run("will return unhealthy", func(t *testing.T) {
		t.Run("if all Monitors return unhealthy", func(t *testing.T) {
			healthy, err := Or(&Binary{}, &Binary{}).Healthy(context.Background())
			assert.NoError(t, err)
			assert.False(t, healthy)
		})
	})

	t.Run("will return healthy", func(t *testing.T) {
		t.Run("if one Monitor is healthy despite another failing", func(t *testing.T) {
			failing := MonitorFunc(func(ctx context.Context) (bool, error) {
				return false, errors.New("queue unreachable")
			})

			healthy, err := Or(failing, healthyBinary()).Healthy(context.Background())
			assert.NoError(t, err)
			assert.True(t, healthy)
		})
	})

	t.Run("will return all errors", func(t *testing.T) {
		t.Run("if no Monitor is healthy", func(t *testing.T) {
			errA := errors.New("a")
			errB := errors.New("b")

			healthy, err := Or(
				MonitorFunc(func(ctx context.Context) (bool, error) { return false, errA }),
				MonitorFunc(func(ctx context.Context) (bool, error) { return false, errB }),
			).Healthy(context.Background())
			assert.ErrorIs(t, err, errA)
			assert.ErrorIs(t, err, errB)
			assert.False(t, healthy)
		})
	})
}
