// Package retry provides exponential backoff for transient failures.
//
// Do runs an operation until it succeeds, the attempt budget is spent, the
// context ends, or the operation returns an error that must not be retried
// (wrapped with NonRetryable, or classified Invalid or Fatal by the errors
// package). The daemon uses it to connect the NATS tap at startup:
//
//	conn, err := retry.DoWithResult(ctx, retry.Quick(), func() (*nats.Conn, error) {
//	    return nats.Connect(url)
//	})
//
// Backoff is the stateful half used by long-lived loops that never give up,
// such as an acquisition loop polling a driver: each failure sleeps a little
// longer, each success resets the delay.
//
//	b := retry.NewBackoff(retry.Config{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second})
//	for ctx.Err() == nil {
//	    if err := poll(); err != nil {
//	        _ = b.Wait(ctx)
//	        continue
//	    }
//	    b.Reset()
//	}
package retry
