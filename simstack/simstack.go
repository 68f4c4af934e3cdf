// Package simstack provides an in-memory BLE host stack implementing
// gatts.HostStack. It assigns attribute handles the way a real stack
// does and exposes the central side of a session, so tests and demos
// can script connects, CCCD writes, and indication confirmations
// without a radio.
//
// Events are delivered synchronously on the scripting goroutine, which
// therefore plays the role of the stack's single event context; do not
// script from multiple goroutines at once.
package simstack

import (
	"fmt"
	"net"
	"sync"

	"github.com/nimgatt/gatts"
)

// attrBase is the first handle assigned; real stacks reserve the low
// handles for the GAP and GATT services.
const attrBase uint16 = 0x0010

// A PDU records one value push submitted to the stack.
type PDU struct {
	ConnHandle uint16
	AttrHandle uint16
	Value      []byte
	Indication bool
}

type subKey struct {
	conn uint16
	attr uint16
}

type subState struct {
	notify   bool
	indicate bool
}

// Stack is an in-memory host stack.
//
// The exported Err fields inject activation failures: they are returned
// verbatim by the corresponding stack call (AddServiceErr and
// FindServiceErr keyed by service UUID string).
type Stack struct {
	AddServiceErr  map[string]error
	StartErr       error
	FindServiceErr map[string]error
	AdvertiseErr   error

	mu          sync.Mutex
	handler     func(e *gatts.GapEvent) int
	nextHandle  uint16
	services    map[string]uint16
	chars       map[uint16]*gatts.Characteristic
	serving     bool
	advertising bool
	conns       map[uint16]*gatts.ConnDesc
	subs        map[subKey]subState
	sent        []PDU

	secBonding, secMITM, secSC bool
	ioCap                      gatts.IOCap
	initKeyDist, respKeyDist   gatts.KeyDist
}

// New returns an empty simulated stack.
func New() *Stack {
	return &Stack{
		nextHandle: attrBase,
		services:   make(map[string]uint16),
		chars:      make(map[uint16]*gatts.Characteristic),
		conns:      make(map[uint16]*gatts.ConnDesc),
		subs:       make(map[subKey]subState),
	}
}

// AddService commits a service: it reserves a declaration handle for
// the service and a declaration plus value handle for each
// characteristic, mirroring a real attribute database layout.
func (st *Stack) AddService(s *gatts.Service) error {
	if err := st.AddServiceErr[s.UUID().String()]; err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.services[s.UUID().String()] = st.nextHandle
	st.nextHandle++
	for _, char := range s.Characteristics() {
		st.nextHandle++ // characteristic declaration
		char.SetHandle(st.nextHandle)
		st.chars[st.nextHandle] = char
		st.nextHandle++
	}
	return nil
}

// Start begins serving GATT requests.
func (st *Stack) Start() error {
	if st.StartErr != nil {
		return st.StartErr
	}
	st.mu.Lock()
	st.serving = true
	st.mu.Unlock()
	return nil
}

// FindService reports the declaration handle assigned to a committed
// service.
func (st *Stack) FindService(u gatts.UUID) (uint16, error) {
	if err := st.FindServiceErr[u.String()]; err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	h, ok := st.services[u.String()]
	if !ok {
		return 0, fmt.Errorf("service %s: %w", u, gatts.HSENoEnt)
	}
	return h, nil
}

// FindConnection returns the descriptor of an open connection.
func (st *Stack) FindConnection(connHandle uint16) (*gatts.ConnDesc, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	desc, ok := st.conns[connHandle]
	if !ok {
		return nil, gatts.HSENotConn
	}
	d := *desc
	return &d, nil
}

// StartAdvertising marks the stack as advertising.
func (st *Stack) StartAdvertising() error {
	if st.AdvertiseErr != nil {
		return st.AdvertiseErr
	}
	st.mu.Lock()
	st.advertising = true
	st.mu.Unlock()
	return nil
}

// Notify records an unacknowledged value push.
func (st *Stack) Notify(connHandle, attrHandle uint16, value []byte) error {
	return st.send(connHandle, attrHandle, value, false)
}

// Indicate records an acknowledged value push. The confirmation must be
// scripted separately with ConfirmIndication.
func (st *Stack) Indicate(connHandle, attrHandle uint16, value []byte) error {
	return st.send(connHandle, attrHandle, value, true)
}

func (st *Stack) send(connHandle, attrHandle uint16, value []byte, indication bool) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.conns[connHandle]; !ok {
		return gatts.HSENotConn
	}
	v := make([]byte, len(value))
	copy(v, value)
	st.sent = append(st.sent, PDU{
		ConnHandle: connHandle,
		AttrHandle: attrHandle,
		Value:      v,
		Indication: indication,
	})
	return nil
}

// SetEventHandler registers the single event handler.
func (st *Stack) SetEventHandler(fn func(e *gatts.GapEvent) int) {
	st.mu.Lock()
	st.handler = fn
	st.mu.Unlock()
}

func (st *Stack) SetAuth(bonding, mitm, sc bool) {
	st.secBonding, st.secMITM, st.secSC = bonding, mitm, sc
}

func (st *Stack) SetIOCap(cap gatts.IOCap)        { st.ioCap = cap }
func (st *Stack) SetInitKeyDist(kd gatts.KeyDist) { st.initKeyDist = kd }
func (st *Stack) SetRespKeyDist(kd gatts.KeyDist) { st.respKeyDist = kd }

func (st *Stack) deliver(e *gatts.GapEvent) {
	st.mu.Lock()
	fn := st.handler
	st.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

// Connect opens a simulated link and delivers the connect event. The
// peer address is parsed as a MAC address; an unparsable peer leaves
// the descriptor's address empty.
func (st *Stack) Connect(connHandle uint16, peer string) *gatts.ConnDesc {
	addr, _ := net.ParseMAC(peer)
	desc := &gatts.ConnDesc{
		ConnHandle: connHandle,
		PeerAddr:   gatts.BDAddr{HardwareAddr: addr},
		ConnItvl:   24,
		MTU:        23,
	}
	st.mu.Lock()
	st.conns[connHandle] = desc
	st.advertising = false
	st.mu.Unlock()

	st.deliver(&gatts.GapEvent{
		Type:    gatts.EventConnect,
		Connect: gatts.ConnectEvent{ConnHandle: connHandle},
	})
	return desc
}

// FailConnect delivers a connect event with a non-zero status; no link
// is established.
func (st *Stack) FailConnect(connHandle uint16, status int) {
	st.deliver(&gatts.GapEvent{
		Type:    gatts.EventConnect,
		Connect: gatts.ConnectEvent{ConnHandle: connHandle, Status: status},
	})
}

// Disconnect tears down a link (or reports teardown of an unknown
// handle) and delivers the disconnect event.
func (st *Stack) Disconnect(connHandle uint16, reason int) {
	st.mu.Lock()
	desc := gatts.ConnDesc{ConnHandle: connHandle}
	if d, ok := st.conns[connHandle]; ok {
		desc = *d
	}
	delete(st.conns, connHandle)
	for k := range st.subs {
		if k.conn == connHandle {
			delete(st.subs, k)
		}
	}
	st.mu.Unlock()

	st.deliver(&gatts.GapEvent{
		Type:       gatts.EventDisconnect,
		Disconnect: gatts.DisconnectEvent{Reason: reason, Conn: desc},
	})
}

// Subscribe scripts a CCCD write and delivers the subscribe event with
// the previous flags the stack tracked for that peer and attribute.
func (st *Stack) Subscribe(connHandle, attrHandle uint16, notify, indicate bool) {
	key := subKey{conn: connHandle, attr: attrHandle}
	st.mu.Lock()
	prev := st.subs[key]
	st.subs[key] = subState{notify: notify, indicate: indicate}
	st.mu.Unlock()

	st.deliver(&gatts.GapEvent{
		Type: gatts.EventSubscribe,
		Subscribe: gatts.SubscribeEvent{
			ConnHandle:   connHandle,
			AttrHandle:   attrHandle,
			PrevNotify:   prev.notify,
			CurNotify:    notify,
			PrevIndicate: prev.indicate,
			CurIndicate:  indicate,
		},
	})
}

// ConfirmIndication delivers the terminal notify-TX event for an
// indication: status zero for a peer acknowledgement, non-zero for a
// failed or timed-out confirmation.
func (st *Stack) ConfirmIndication(connHandle, attrHandle uint16, status int) {
	st.deliver(&gatts.GapEvent{
		Type: gatts.EventNotifyTx,
		NotifyTx: gatts.NotifyTxEvent{
			Status:     status,
			ConnHandle: connHandle,
			AttrHandle: attrHandle,
			Indication: true,
		},
	})
}

// Read performs a central-side read of the characteristic at
// attrHandle.
func (st *Stack) Read(connHandle, attrHandle uint16) ([]byte, byte, error) {
	st.mu.Lock()
	char, ok := st.chars[attrHandle]
	mtu := attrMTU(st.conns[connHandle])
	st.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("attribute 0x%04x: %w", attrHandle, gatts.HSENoEnt)
	}
	value, status := char.ServeRead(connHandle, mtu-1)
	return value, status, nil
}

// Write performs a central-side write of the characteristic at
// attrHandle.
func (st *Stack) Write(connHandle, attrHandle uint16, data []byte) (byte, error) {
	st.mu.Lock()
	char, ok := st.chars[attrHandle]
	st.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("attribute 0x%04x: %w", attrHandle, gatts.HSENoEnt)
	}
	return char.ServeWrite(connHandle, data), nil
}

// Serving reports whether Start has been called.
func (st *Stack) Serving() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.serving
}

// Advertising reports whether the stack is currently advertising.
func (st *Stack) Advertising() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.advertising
}

// Sent returns the value pushes submitted so far.
func (st *Stack) Sent() []PDU {
	st.mu.Lock()
	defer st.mu.Unlock()
	pp := make([]PDU, len(st.sent))
	copy(pp, st.sent)
	return pp
}

// Auth returns the recorded pairing authentication settings.
func (st *Stack) Auth() (bonding, mitm, sc bool) {
	return st.secBonding, st.secMITM, st.secSC
}

// IOCap returns the recorded IO capability.
func (st *Stack) IOCap() gatts.IOCap { return st.ioCap }

// KeyDist returns the recorded initiator and responder key
// distribution masks.
func (st *Stack) KeyDist() (init, resp gatts.KeyDist) {
	return st.initKeyDist, st.respKeyDist
}

func attrMTU(desc *gatts.ConnDesc) int {
	if desc == nil || desc.MTU == 0 {
		return 23
	}
	return int(desc.MTU)
}
