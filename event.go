package gatts

import "net"

// A BDAddr (Bluetooth Device Address) is a
// hardware-addressed-based net.Addr.
type BDAddr struct{ net.HardwareAddr }

func (a BDAddr) Network() string { return "BLE" }

// A ConnDesc describes one open link, as reported by the host stack.
type ConnDesc struct {
	ConnHandle  uint16
	PeerAddr    BDAddr
	ConnItvl    uint16 // connection interval, 1.25 ms units
	ConnLatency uint16
	MTU         uint16
}

// EventType tags the payload of a GapEvent.
type EventType uint8

const (
	EventConnect EventType = iota
	EventDisconnect
	EventConnUpdate
	EventEncChange
	EventSubscribe
	EventNotifyTx
	EventMTU
)

func (t EventType) String() string {
	names := []string{
		"connect",
		"disconnect",
		"conn-update",
		"enc-change",
		"subscribe",
		"notify-tx",
		"mtu",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "unknown"
}

// A GapEvent is one entry in the multiplexed event stream the host stack
// delivers to its registered handler. Exactly one payload field is
// meaningful, selected by Type; the stack guarantees serial delivery on a
// single execution context.
type GapEvent struct {
	Type EventType

	Connect    ConnectEvent
	Disconnect DisconnectEvent
	Subscribe  SubscribeEvent
	NotifyTx   NotifyTxEvent
}

// ConnectEvent reports the outcome of a connection attempt.
// A non-zero Status means the link was never established.
type ConnectEvent struct {
	Status     int
	ConnHandle uint16
}

// DisconnectEvent reports a link teardown. Conn is a snapshot of the
// descriptor taken before the handle was released; the handle may be
// reused by the stack for a later link.
type DisconnectEvent struct {
	Reason int
	Conn   ConnDesc
}

// SubscribeEvent reports a peer writing a characteristic's CCCD,
// enabling or disabling value pushes.
type SubscribeEvent struct {
	ConnHandle   uint16
	AttrHandle   uint16
	PrevNotify   bool
	CurNotify    bool
	PrevIndicate bool
	CurIndicate  bool
}

// NotifyTxEvent reports the terminal outcome of a value push. For
// indications it fires when the peer acknowledges (Status zero) or the
// confirmation fails or times out (Status non-zero).
type NotifyTxEvent struct {
	Status     int
	ConnHandle uint16
	AttrHandle uint16
	Indication bool
}
