// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package queue provides the building blocks shared by queue input stages.
//
// Every input follows the same three phases:
//
//   - Consumer: retrieves items from a queue
//   - Processor: hands the item to the rest of the pipeline
//   - Acknowledger: tells the queue the item may be removed
//
// [ProcessAtLeastOnce] and [ProcessAtMostOnce] order those phases for the two
// common delivery guarantees. At least once acknowledges only after the item
// was processed; a failure leaves the item on the queue to be redelivered.
// At most once acknowledges first; a failure loses the item.
//
// A [QueueRuntime] loops over its phases until the context is cancelled or
// its [Consumer] reports [ErrEndOfQueue]:
//
//	func (r *MyRuntime) ProcessQueue(ctx context.Context) error {
//	    p := queue.ProcessAtLeastOnce(r.consumer, r.processor, r.acknowledger)
//	    for {
//	        err := p.ProcessItem(ctx)
//	        if errors.Is(err, queue.ErrEndOfQueue) {
//	            return nil
//	        }
//	        if err != nil {
//	            return err
//	        }
//	    }
//	}
//
// [Channel] is a bounded in-memory queue which implements both [Processor]
// and [Consumer]. It connects stages inside one process, e.g. a sink that
// asks an input to delete the messages it has forwarded.
package queue
