// Package testutil holds test doubles shared across package tests: an
// in-memory NATS publisher and loopback UDP helpers for data-plane checks.
//
//	pub := testutil.NewMockPublisher()
//	sink := testutil.NewUDPSink(t)
//	// point a unicast stream out at sink.Port(), publish through pub
//	data := sink.Read(2 * time.Second)
package testutil
