// Package device implements the device controller: the single owner of the
// node set and of the Initializing, Configured, Running and Stopped
// lifecycle.
//
// A Configuration is validated in full before the live node set is touched.
// Once accepted it replaces every node. Connections route one node's
// emissions into another's OnDataReceived; the routing table is swapped
// atomically so node goroutines never contend with control operations.
//
//	ctrl, err := device.NewController(identity, device.Deps{
//		Provisioner: transport.NewProvisioner(transport.Config{}),
//		Driver:      sim.New(sim.DefaultConfig()),
//	})
//	err = ctrl.Configure(ctx, cfg)
//	err = ctrl.Start(ctx)
//	status := ctrl.Status(err)
package device
