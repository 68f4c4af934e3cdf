package gatts

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// subMode records which delivery modes a peer has enabled via the CCCD.
type subMode uint8

const (
	subNotify subMode = 1 << iota
	subIndicate
)

// A Request is the context for a request from a connected device.
type Request struct {
	ConnHandle     uint16
	Service        *Service
	Characteristic *Characteristic
}

// A ReadRequest is a characteristic read request from a connected device.
type ReadRequest struct {
	Request
	Cap    int // maximum allowed reply length
	Offset int // request value offset
}

type ReadResponseWriter interface {
	// Write writes data to return as the characteristic value.
	Write([]byte) (int, error)
	// SetStatus reports the result of the read operation. See the Status* constants.
	SetStatus(byte)
}

// A ReadHandler handles GATT read requests.
type ReadHandler interface {
	ServeRead(resp ReadResponseWriter, req *ReadRequest)
}

// ReadHandlerFunc is an adapter to allow the use of
// ordinary functions as ReadHandlers.
type ReadHandlerFunc func(resp ReadResponseWriter, req *ReadRequest)

// ServeRead calls f(resp, req).
func (f ReadHandlerFunc) ServeRead(resp ReadResponseWriter, req *ReadRequest) {
	f(resp, req)
}

// A WriteHandler handles GATT write requests.
// Write and WriteNR requests are presented identically;
// the stack ensures a response is sent if appropriate.
type WriteHandler interface {
	ServeWrite(r Request, data []byte) (status byte)
}

// WriteHandlerFunc is an adapter to allow the use of
// ordinary functions as WriteHandlers.
type WriteHandlerFunc func(r Request, data []byte) byte

// ServeWrite returns f(r, data).
func (f WriteHandlerFunc) ServeWrite(r Request, data []byte) byte {
	return f(r, data)
}

// A SubscribeHandler is invoked when a peer enables notifications or
// indications on a characteristic. Value pushes to that peer can be sent
// through the provided notifier.
type SubscribeHandler interface {
	ServeSubscribe(r Request, n Notifier)
}

// SubscribeHandlerFunc is an adapter to allow the use of
// ordinary functions as SubscribeHandlers.
type SubscribeHandlerFunc func(r Request, n Notifier)

// ServeSubscribe calls f(r, n).
func (f SubscribeHandlerFunc) ServeSubscribe(r Request, n Notifier) {
	f(r, n)
}

// A Characteristic is a BLE characteristic: a capability bitmask, the
// value attribute handle the stack assigns at activation, and the
// per-connection subscription state recorded from CCCD writes.
//
// A Characteristic is shared between its owning service and the server's
// subscribable index; its mutable state is guarded by an internal mutex
// so user code may read or push the value while the event router updates
// subscription state.
type Characteristic struct {
	uuid   UUID
	props  Property
	handle uint16 // value attribute handle; set by the stack at commit

	rhandler ReadHandler
	whandler WriteHandler
	shandler SubscribeHandler

	mu        sync.Mutex
	value     []byte
	subs      map[uint16]subMode
	notifiers map[uint16]*notifier

	service *Service
	srv     *Server
}

// UUID returns the characteristic's UUID.
func (c *Characteristic) UUID() UUID {
	return c.uuid
}

// Properties returns the characteristic's capability bitmask.
func (c *Characteristic) Properties() Property {
	return c.props
}

// Service returns the service the characteristic belongs to.
func (c *Characteristic) Service() *Service {
	return c.service
}

// Handle returns the value attribute handle assigned by the stack.
// It is zero until the server has been started.
func (c *Characteristic) Handle() uint16 {
	return c.handle
}

// SetHandle records the value attribute handle. It is called by the host
// stack while committing the attribute table; applications have no
// reason to call it.
func (c *Characteristic) SetHandle(h uint16) {
	c.handle = h
}

// SetValue replaces the characteristic's stored value.
func (c *Characteristic) SetValue(b []byte) {
	v := make([]byte, len(b))
	copy(v, b)
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
}

// Value returns a copy of the characteristic's stored value.
func (c *Characteristic) Value() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := make([]byte, len(c.value))
	copy(v, c.value)
	return v
}

// HandleRead routes read requests to h instead of the stored value.
// HandleRead must be called before the server is started.
func (c *Characteristic) HandleRead(h ReadHandler) {
	c.rhandler = h
}

// HandleReadFunc calls HandleRead(ReadHandlerFunc(f)).
func (c *Characteristic) HandleReadFunc(f func(resp ReadResponseWriter, req *ReadRequest)) {
	c.HandleRead(ReadHandlerFunc(f))
}

// HandleWrite routes write requests to h instead of the stored value.
// HandleWrite must be called before the server is started.
func (c *Characteristic) HandleWrite(h WriteHandler) {
	c.whandler = h
}

// HandleWriteFunc calls HandleWrite(WriteHandlerFunc(f)).
func (c *Characteristic) HandleWriteFunc(f func(r Request, data []byte) (status byte)) {
	c.HandleWrite(WriteHandlerFunc(f))
}

// HandleSubscribe routes subscription changes to h. HandleSubscribe must
// be called before the server is started.
func (c *Characteristic) HandleSubscribe(h SubscribeHandler) {
	c.shandler = h
}

// HandleSubscribeFunc calls HandleSubscribe(SubscribeHandlerFunc(f)).
func (c *Characteristic) HandleSubscribeFunc(f func(r Request, n Notifier)) {
	c.HandleSubscribe(SubscribeHandlerFunc(f))
}

// ServeRead handles a read access from conn: the read handler if one is
// set, the stored value otherwise. It is called by the host stack.
func (c *Characteristic) ServeRead(conn uint16, maxlen int) ([]byte, byte) {
	if c.rhandler != nil {
		w := newReadResponseWriter(maxlen)
		c.rhandler.ServeRead(w, &ReadRequest{
			Request: Request{ConnHandle: conn, Service: c.service, Characteristic: c},
			Cap:     maxlen,
		})
		return w.bytes(), w.status
	}
	v := c.Value()
	if len(v) > maxlen {
		v = v[:maxlen]
	}
	return v, StatusSuccess
}

// ServeWrite handles a write access from conn: the write handler if one
// is set, otherwise the data replaces the stored value. It is called by
// the host stack.
func (c *Characteristic) ServeWrite(conn uint16, data []byte) byte {
	if c.whandler != nil {
		return c.whandler.ServeWrite(Request{ConnHandle: conn, Service: c.service, Characteristic: c}, data)
	}
	c.SetValue(data)
	return StatusSuccess
}

// Subscribed reports which delivery modes conn currently has enabled.
func (c *Characteristic) Subscribed(conn uint16) (notify, indicate bool) {
	c.mu.Lock()
	m := c.subs[conn]
	c.mu.Unlock()
	return m&subNotify != 0, m&subIndicate != 0
}

// SubscribedCount returns the number of peers with a delivery mode enabled.
func (c *Characteristic) SubscribedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Notify pushes the current value to every subscribed peer, using the
// delivery mode each peer enabled; indication wins when a peer enabled
// both. Peers whose previous indication is still unacknowledged are
// skipped. Notify returns the combined send errors, if any.
func (c *Characteristic) Notify() error {
	c.mu.Lock()
	conns := make([]uint16, 0, len(c.subs))
	for conn := range c.subs {
		conns = append(conns, conn)
	}
	value := c.value
	c.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		err := c.sendTo(conn, value)
		if errors.Is(err, HSEBusy) {
			c.srv.log.WithField("conn", conn).Debug("indication still unconfirmed, skipping peer")
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("push to conn %d: %w", conn, err))
		}
	}
	return errors.Join(errs...)
}

// sendTo pushes data to one peer using its enabled delivery mode.
// Indications reserve the server's per-connection wait slot before the
// PDU is submitted, so at most one indication per link is in flight.
func (c *Characteristic) sendTo(conn uint16, data []byte) error {
	c.mu.Lock()
	mode := c.subs[conn]
	c.mu.Unlock()

	switch {
	case mode&subIndicate != 0:
		if !c.srv.reserveIndicate(conn) {
			return HSEBusy
		}
		if err := c.srv.stack.Indicate(conn, c.handle, data); err != nil {
			c.srv.clearIndicateWait(conn)
			return err
		}
		return nil
	case mode&subNotify != 0:
		return c.srv.stack.Notify(conn, c.handle, data)
	default:
		return HSENotConn
	}
}

// subscribe applies a CCCD change delivered by the event router. On the
// first enabled mode the subscribe handler, if any, receives a notifier
// bound to the peer; disabling the last mode stops that notifier.
func (c *Characteristic) subscribe(e *SubscribeEvent) {
	var mode subMode
	if e.CurNotify {
		mode |= subNotify
	}
	if e.CurIndicate {
		mode |= subIndicate
	}

	c.mu.Lock()
	var started *notifier
	if mode == 0 {
		delete(c.subs, e.ConnHandle)
		if n := c.notifiers[e.ConnHandle]; n != nil {
			n.stop()
			delete(c.notifiers, e.ConnHandle)
		}
	} else {
		if c.subs == nil {
			c.subs = make(map[uint16]subMode)
		}
		c.subs[e.ConnHandle] = mode
		if c.notifiers[e.ConnHandle] == nil {
			if c.notifiers == nil {
				c.notifiers = make(map[uint16]*notifier)
			}
			started = newNotifier(c, e.ConnHandle)
			c.notifiers[e.ConnHandle] = started
		}
	}
	c.mu.Unlock()

	if started != nil && c.shandler != nil {
		c.shandler.ServeSubscribe(Request{
			ConnHandle:     e.ConnHandle,
			Service:        c.service,
			Characteristic: c,
		}, started)
	}
}

// clearSubscription drops all subscription state for conn. The event
// router calls it on disconnect so a reused connection handle cannot
// inherit stale delivery modes.
func (c *Characteristic) clearSubscription(conn uint16) {
	c.mu.Lock()
	delete(c.subs, conn)
	if n := c.notifiers[conn]; n != nil {
		n.stop()
		delete(c.notifiers, conn)
	}
	c.mu.Unlock()
}

// readResponseWriter is the default implementation of ReadResponseWriter.
type readResponseWriter struct {
	capacity int
	buf      *bytes.Buffer
	status   byte
}

func newReadResponseWriter(c int) *readResponseWriter {
	return &readResponseWriter{
		capacity: c,
		buf:      new(bytes.Buffer),
		status:   StatusSuccess,
	}
}

func (w *readResponseWriter) Write(b []byte) (int, error) {
	if avail := w.capacity - w.buf.Len(); avail < len(b) {
		return 0, fmt.Errorf("requested write %d bytes, %d available", len(b), avail)
	}
	return w.buf.Write(b)
}

func (w *readResponseWriter) SetStatus(status byte) { w.status = status }
func (w *readResponseWriter) bytes() []byte         { return w.buf.Bytes() }
