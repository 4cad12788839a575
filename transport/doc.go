// Package transport allocates and releases the network endpoints nodes use
// on the data plane.
//
// Every endpoint is described by an Options value. The table below is the
// single place the socket options are defined:
//
//	Role       Direction  Bind                         Destination             Socket options
//	unicast    consumer   Host:Port (0 = ephemeral)    -                       -
//	unicast    producer   0.0.0.0:ephemeral            Host:BasePort+offset    -
//	multicast  consumer   0.0.0.0:group port           -                       SO_REUSEADDR, SO_REUSEPORT, group join
//	multicast  producer   0.0.0.0:ephemeral            group:port              TTL (default 3), loopback
//	pubsub     either     127.0.0.1:random in range    -                       -
//
// Unicast producer offsets are the lowest slot not held by a live unicast
// producer, so co-resident outlets never share a destination port. Pub/sub
// endpoints are WebSocket servers; they share one refcounted context that is
// terminated when the last pub/sub endpoint closes.
//
// Receive is bounded by a caller-supplied timeout and returns ErrTimeout
// when it expires, so node loops can observe cancellation promptly.
package transport
