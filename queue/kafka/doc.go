// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kafka forwards pipeline events to an Apache Kafka topic.
//
// A [Producer] implements [queue.Processor] for events, so it can be used
// directly as the outbox of an input. Each event is written in its native
// JSON envelope, keyed by the event UUID, using the franz-go client.
//
// # Delivery
//
// Records are produced asynchronously. Once the broker has acknowledged a
// record the acknowledger registered with [OnDelivered] is called with the
// original event. Pairing it with an input's delete queue removes source
// messages only after they are safely stored in Kafka:
//
//	in, _ := azqueue.Build("azure", azCfg, outbox).Build(ctx)
//	p, _ := kafka.Build(cfg,
//	    kafka.HeadersFrom(in.MetadataPath()),
//	    kafka.OnDelivered(queue.AcknowledgerFunc[event.Event](in.Delete)),
//	).Build(ctx)
//
// A failed delivery is reported by the next call to [Producer.Process] or
// by [Producer.Close], which also flushes buffered records.
//
// # Observability
//
// The client is instrumented with kotel tracing and metrics hooks and logs
// through kslog. The package adds two counters:
//
//   - kafka.producer.records.produced: records acknowledged by the broker
//   - kafka.producer.failures: records which could not be delivered
package kafka
