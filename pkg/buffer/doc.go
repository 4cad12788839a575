// Package buffer provides a generic bounded FIFO queue whose blocking
// operations are bounded by a timeout and interruptible by a context.
//
// Node loops use it as their inbound or outbound queue: a producer calls Put
// and waits at most the put timeout for space before failing with
// errors.ErrQueueFull; the loop calls Get with a short timeout so it observes
// cancellation promptly.
//
//	q, err := buffer.NewQueue[any](1024,
//	    buffer.WithMetrics[any](registry, "node_3"))
//	if err != nil {
//	    return err
//	}
//	defer q.Close()
//
//	if err := q.Put(ctx, item, time.Second); err != nil {
//	    // errors.ErrQueueFull, ctx.Err() or closed
//	}
//
//	item, err := q.Get(ctx, time.Second)
//	if errors.Is(err, errors.ErrTimeout) {
//	    // nothing arrived, check for cancellation and loop
//	}
//
// Statistics are always collected. Prometheus metrics are optional via
// WithMetrics and are unregistered by Close, so a queue name can be reused by
// the next instance once the previous one is closed.
package buffer
