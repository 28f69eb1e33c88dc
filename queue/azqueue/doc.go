// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package azqueue forwards messages from an Azure Queue Storage queue as
// pipeline events.
//
// A [Runtime] runs two loops. The poll loop dequeues messages, optionally
// base64 decodes them, splits the content into payloads with a
// [decode.Decoder] and submits one [event.Event] per payload to the outbox.
// Every event carries the message metadata below "tmp.<name>":
//
//	id, insertion_time, expiration_time, dequeue_count, pop_receipt, time_next_visible
//
// With AutoMessageDelete enabled, a message is deleted as soon as all of
// its events were accepted by the outbox. Otherwise messages are deleted
// by sending their events to [Runtime.Delete], typically once a sink has
// delivered them, and reappear after their visibility timeout if that
// never happens.
//
// Connection handling and retries are left to the Azure SDK. Errors from
// the service end [Runtime.ProcessQueue].
//
// # Basic Usage
//
//	outbox := jsonl.NewWriter(os.Stdout)
//	builder := azqueue.Build("azure", azqueue.ConfigFromEnv(), outbox)
//	queue.Run(context.Background(), queue.Build(builder))
package azqueue
