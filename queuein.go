// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package queuein consumes messages from Azure Queue Storage and forwards
// them as events into a processing pipeline.
//
// The building blocks live in sub-packages: [github.com/z5labs/queuein/queue/azqueue]
// polls the queue and deletes messages, [github.com/z5labs/queuein/event] is the
// event passed between pipeline stages and [github.com/z5labs/queuein/decode]
// turns message payloads into event data.
package queuein

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// Logger returns a structured logger bridged to the global OpenTelemetry
// logger provider. name should be the import path of the calling package.
func Logger(name string) *slog.Logger {
	return otelslog.NewLogger(name)
}
