// Package natsclient wraps a NATS connection used by the device to publish
// node data and status snapshots.
//
// The client is publish-only. Connection failures and publish failures feed a
// circuit breaker: after a threshold of consecutive failures the circuit
// opens, Connect and Publish fail fast with ErrCircuitOpen, and after the
// current backoff the circuit moves back to disconnected so the next attempt
// can try the server again. Each further round of failures doubles the backoff up
// to the configured maximum.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("synapse-"+serial),
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// The underlying nats.Conn reconnects on its own; the client tracks those
// transitions in Status and reports them through the optional callbacks and
// the synapse_nats_* metrics.
package natsclient
