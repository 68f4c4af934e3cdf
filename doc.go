// Package gatts implements a peripheral-role BLE GATT server on top of
// a vendor host stack.
//
// Gatt (Generic Attribute Profile) is the protocol BLE peripherals use
// to expose services and characteristics to connected centrals. This
// package owns the server side of that exchange: the registry of
// services and characteristics, the two-phase activation sequence that
// commits them to the stack and resolves their attribute handles, the
// routing of the stack's asynchronous event stream, and per-connection
// bookkeeping for subscriptions and in-flight indications.
//
// The host stack itself (attribute database, advertising, ATT framing,
// pairing) is abstracted behind the HostStack interface; package
// simstack provides an in-memory implementation for tests and demos.
//
// USAGE
//
// Servers are constructed against a stack, populated with services and
// characteristics, and then started:
//
//	srv := gatts.NewServer(stack,
//		gatts.Connect(func(c *gatts.ConnDesc) { log.Println("connected:", c.ConnHandle) }),
//	)
//	svc, _ := srv.CreateService(gatts.UUID16(0x180d))
//	hr := svc.AddCharacteristic(gatts.UUID16(0x2a37), gatts.CharRead|gatts.CharNotify)
//	hr.SetValue([]byte{0x00, 0x3c})
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// After Start, pushing a value to every subscribed central is a single
// call; the delivery mode (notify or indicate) follows what each peer
// enabled:
//
//	hr.SetValue([]byte{0x00, 0x48})
//	hr.Notify()
//
// All event routing and all user callbacks run on the stack's single
// event context. Callbacks must not block and must not panic.
package gatts
