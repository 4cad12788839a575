// Package worker provides a generic bounded worker pool.
//
// A Pool runs a fixed number of goroutines that drain a bounded channel of
// work items. Submit never blocks: when the queue is full the item is dropped
// and ErrQueueFull is returned, which lets a latency-sensitive producer (a
// node loop handing emissions to the NATS tap) shed load instead of stalling.
//
//	pool := worker.NewPool(2, 256, func(ctx context.Context, job publishJob) error {
//	    return client.Publish(ctx, job.subject, job.data)
//	}, worker.WithMetricsRegistry[publishJob](registry, "relay"))
//
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Stop closes the queue, lets workers finish what is already queued and
// waits up to the given timeout. Statistics are always collected; Prometheus
// metrics are registered only with WithMetricsRegistry and are removed again
// by Stop.
package worker
