package gatts

import (
	"errors"
	"sync"
)

// A Notifier provides a means for a GATT server to push value changes
// for one characteristic to one subscribed peer. Notifiers are handed
// to SubscribeHandlers and stop when the peer unsubscribes or the link
// drops.
type Notifier interface {
	// Write pushes data to the peer using the delivery mode it enabled.
	// Write returns HSEBusy while a previous indication to the peer is
	// still unacknowledged.
	Write(data []byte) (int, error)

	// Done reports whether the peer has requested not to
	// receive any more value pushes with this notifier.
	Done() bool

	// Cap returns the maximum number of bytes that may be sent
	// in a single push.
	Cap() int
}

type notifier struct {
	char   *Characteristic
	conn   uint16
	donemu sync.RWMutex
	done   bool
}

func newNotifier(c *Characteristic, conn uint16) *notifier {
	return &notifier{char: c, conn: conn}
}

func (n *notifier) Write(data []byte) (int, error) {
	if n.Done() {
		return 0, errors.New("peer stopped notifications")
	}
	if err := n.char.sendTo(n.conn, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (n *notifier) Cap() int {
	return attMTUDefault - 3 // ATT opcode + value handle
}

func (n *notifier) Done() bool {
	n.donemu.RLock()
	done := n.done
	n.donemu.RUnlock()
	return done
}

func (n *notifier) stop() {
	n.donemu.Lock()
	n.done = true
	n.donemu.Unlock()
}
