package gatts

import "strings"

// Do not re-order the bit flags below;
// they are organized to match the BLE spec.

// Property is a characteristic capability bitmask.
type Property uint8

// Characteristic property flags.
const (
	CharBroadcast Property = 1 << iota // the value may be broadcast
	CharRead                           // the value may be read
	CharWriteNR                        // the value may be written, with no reply
	CharWrite                          // the value may be written, with a reply
	CharNotify                         // the value may be pushed without acknowledgement
	CharIndicate                       // the value may be pushed with acknowledgement
)

// subscribable reports whether a characteristic with these properties
// can have its value pushed to a subscribed peer.
func (p Property) subscribable() bool {
	return p&(CharNotify|CharIndicate) != 0
}

func (p Property) String() string {
	names := []struct {
		flag Property
		name string
	}{
		{CharBroadcast, "broadcast"},
		{CharRead, "read"},
		{CharWriteNR, "write-no-response"},
		{CharWrite, "write"},
		{CharNotify, "notify"},
		{CharIndicate, "indicate"},
	}
	var ss []string
	for _, n := range names {
		if p&n.flag != 0 {
			ss = append(ss, n.name)
		}
	}
	return strings.Join(ss, "|")
}
