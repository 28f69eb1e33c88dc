// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package azqueue

import (
	"log/slog"

	azlog "github.com/Azure/azure-sdk-for-go/sdk/azcore/log"
)

// QueueAttr returns a slog attribute for the queue name.
func QueueAttr(name string) slog.Attr {
	return slog.String("messaging.destination.name", name)
}

// QueueURLAttr returns a slog attribute for the queue URL.
func QueueURLAttr(url string) slog.Attr {
	return slog.String("url.full", url)
}

// MessageIDAttr returns a slog attribute for the message id.
func MessageIDAttr(id string) slog.Attr {
	return slog.String("messaging.message.id", id)
}

// DequeueCountAttr returns a slog attribute for the number of times a
// message has been dequeued.
func DequeueCountAttr(n int64) slog.Attr {
	return slog.Int64("messaging.azure.queue.dequeue_count", n)
}

// LogSDKEvents routes the Azure SDK's request, response and retry logs to
// log at debug level. The SDK is silent until this is called.
func LogSDKEvents(log *slog.Logger) {
	azlog.SetEvents(azlog.EventRequest, azlog.EventResponse, azlog.EventRetryPolicy)
	azlog.SetListener(func(ev azlog.Event, msg string) {
		log.Debug(msg, slog.String("azure.sdk.event", string(ev)))
	})
}
