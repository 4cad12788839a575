// Package relay mirrors device traffic onto NATS.
//
// When a NATS URL is configured, every node emission is also published to
// synapse.<serial>.node.<id> and a status snapshot is published to
// synapse.<serial>.status after each control operation. Publishing happens
// on a small worker pool so a slow or disconnected broker never blocks a
// node loop; a full queue drops the message.
package relay
