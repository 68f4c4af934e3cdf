package gatts

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// A Server is a peripheral-role GATT server bound to a host stack.
// Services and characteristics are registered before Start; once Start
// succeeds the registry's structure is frozen and only per-connection
// state changes, driven by the stack's event stream.
//
// One Server handles the stack's entire event stream, so a process runs
// at most one per radio; see InitDevice.
type Server struct {
	stack HostStack
	log   *logrus.Logger

	started               bool
	advertiseOnDisconnect bool
	maxConnections        int

	services *orderedmap.OrderedMap[string, *Service]

	// subscribable is the flat index of notify/indicate-capable
	// characteristics, built once at Start for lookup by attribute
	// handle during event routing.
	subscribable []*Characteristic

	// mu guards connections and indicateWait: the event router mutates
	// them from the stack's context while user code reads connection
	// state and reserves indicate slots from its own.
	mu           sync.Mutex
	connections  []uint16
	indicateWait []uint16

	connect    func(c *ConnDesc)
	disconnect func(c *ConnDesc)
}

// NewServer creates a Server driving the given host stack, with the
// specified options, and registers its event handler with the stack.
// See also Server.Option.
// See http://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis for more discussion.
func NewServer(stack HostStack, opts ...option) *Server {
	s := &Server{
		stack:                 stack,
		log:                   logrus.StandardLogger(),
		advertiseOnDisconnect: true,
		maxConnections:        DefaultMaxConnections,
		services:              orderedmap.New[string, *Service](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.indicateWait = make([]uint16, s.maxConnections)
	for i := range s.indicateWait {
		s.indicateWait[i] = ConnHandleNone
	}
	stack.SetEventHandler(s.handleGapEvent)
	return s
}

// CreateService registers a new empty Service with the server and
// returns it. All services must be created before starting the server;
// a duplicate UUID is rejected with HSEAlready.
func (s *Server) CreateService(u UUID) (*Service, error) {
	if s.started {
		return nil, fmt.Errorf("create service %s: server already started: %w", u, HSEAlready)
	}
	key := u.String()
	if _, ok := s.services.Get(key); ok {
		return nil, fmt.Errorf("create service %s: %w", u, HSEAlready)
	}
	svc := &Service{uuid: u, srv: s}
	s.services.Set(key, svc)
	return svc, nil
}

// Services returns the registered services in registration order.
func (s *Server) Services() []*Service {
	ss := make([]*Service, 0, s.services.Len())
	for pair := s.services.Oldest(); pair != nil; pair = pair.Next() {
		ss = append(ss, pair.Value)
	}
	return ss
}

// Start activates the server: it commits every service's attribute
// table to the stack, begins serving GATT requests, resolves the
// stack-assigned service handles, and builds the subscribable
// characteristic index. Start is idempotent; once it has succeeded,
// further calls return nil without touching the stack.
//
// Any stack failure aborts activation and is returned; the server
// remains un-started and Start may be retried.
func (s *Server) Start() error {
	if s.started {
		return nil
	}

	for pair := s.services.Oldest(); pair != nil; pair = pair.Next() {
		if err := s.stack.AddService(pair.Value); err != nil {
			return fmt.Errorf("commit service %s: %w", pair.Value.uuid, err)
		}
	}

	if err := s.stack.Start(); err != nil {
		return fmt.Errorf("start attribute server: %w", err)
	}

	// Handles exist only now: the stack assigns them when the whole
	// attribute database is committed, so resolution is a second pass.
	s.subscribable = s.subscribable[:0]
	for pair := s.services.Oldest(); pair != nil; pair = pair.Next() {
		svc := pair.Value
		h, err := s.stack.FindService(svc.uuid)
		if err != nil {
			return fmt.Errorf("resolve handle of service %s: %w", svc.uuid, err)
		}
		svc.handle = h

		for _, char := range svc.chars {
			if char.props.subscribable() {
				s.subscribable = append(s.subscribable, char)
			}
		}
	}

	s.started = true
	return nil
}

// Started reports whether Start has completed successfully.
func (s *Server) Started() bool {
	return s.started
}

// ConnectedCount returns the number of open connections.
func (s *Server) ConnectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Connections returns a snapshot of the open connection handles.
func (s *Server) Connections() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc := make([]uint16, len(s.connections))
	copy(cc, s.connections)
	return cc
}

// handleGapEvent is the single event handler registered with the host
// stack. The stack delivers events serially on one execution context;
// the handler must not block and must never panic, since the stack has
// no recovery path and a stall here stops all BLE processing.
//
// Events referencing attribute or connection handles with no matching
// local record are ignored: the stream is outside the server's control
// and may mention handles it never tracked.
func (s *Server) handleGapEvent(e *GapEvent) int {
	switch e.Type {
	case EventConnect:
		if e.Connect.Status != 0 {
			// The link never came up; nothing to track.
			break
		}
		s.mu.Lock()
		s.connections = append(s.connections, e.Connect.ConnHandle)
		s.mu.Unlock()
		s.log.WithField("conn", e.Connect.ConnHandle).Debug("connected")

		if desc, err := s.stack.FindConnection(e.Connect.ConnHandle); err == nil && desc != nil {
			if s.connect != nil {
				s.connect(desc)
			}
		}

	case EventDisconnect:
		conn := e.Disconnect.Conn.ConnHandle
		s.mu.Lock()
		for i, c := range s.connections {
			if c == conn {
				last := len(s.connections) - 1
				s.connections[i] = s.connections[last]
				s.connections = s.connections[:last]
				break
			}
		}
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"conn":   conn,
			"reason": e.Disconnect.Reason,
		}).Debug("disconnected")

		// The stack may reuse the handle for a later link, so every
		// trace of it goes now.
		s.clearIndicateWait(conn)
		for _, char := range s.subscribable {
			char.clearSubscription(conn)
		}

		// Invoked even when the handle was unknown; a disconnect is
		// never silently dropped.
		if s.disconnect != nil {
			s.disconnect(&e.Disconnect.Conn)
		}

		if s.advertiseOnDisconnect {
			if err := s.stack.StartAdvertising(); err != nil {
				s.log.WithError(err).Warn("can't restart advertising")
			}
		}

	case EventSubscribe:
		if char := s.findSubscribable(e.Subscribe.AttrHandle); char != nil {
			char.subscribe(&e.Subscribe)
		}

	case EventNotifyTx:
		tx := &e.NotifyTx
		if char := s.findSubscribable(tx.AttrHandle); char != nil && tx.Indication {
			// Terminal outcome either way, confirmation or failure:
			// free the slot so the next indication is not blocked.
			s.clearIndicateWait(tx.ConnHandle)
		}
	}

	return 0
}

// findSubscribable returns the indexed characteristic with the given
// value attribute handle, or nil.
func (s *Server) findSubscribable(attrHandle uint16) *Characteristic {
	for _, char := range s.subscribable {
		if char.handle == attrHandle {
			return char
		}
	}
	return nil
}

// canIndicate reports whether no indication to conn is awaiting
// confirmation.
func (s *Server) canIndicate(conn uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.indicateWait {
		if h == conn {
			return false
		}
	}
	return true
}

// reserveIndicate claims the indicate-wait slot for conn. It returns
// false if an indication to conn is already awaiting confirmation, or
// if every slot is taken.
func (s *Server) reserveIndicate(conn uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	free := -1
	for i, h := range s.indicateWait {
		if h == conn {
			return false
		}
		if h == ConnHandleNone && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return false
	}
	s.indicateWait[free] = conn
	return true
}

// clearIndicateWait releases conn's indicate-wait slot, if any.
func (s *Server) clearIndicateWait(conn uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.indicateWait {
		if h == conn {
			s.indicateWait[i] = ConnHandleNone
			return
		}
	}
}

type option func(*Server) option

// Option sets the options specified.
// It returns an option to restore the last arg's previous value.
// Some options can only be set before the server is started;
// they are best used with NewServer instead of Option.
// See http://commandcenter.blogspot.com.au/2014/01/self-referential-functions-and-design.html for more discussion.
func (s *Server) Option(opts ...option) (prev option) {
	for _, opt := range opts {
		prev = opt(s)
	}
	return prev
}

// Connect sets a function to be called when a central connects to the
// server. The callback runs in the stack's event context and must not
// block or panic.
// See also NewServer and Server.Option.
func Connect(f func(c *ConnDesc)) option {
	return func(s *Server) option {
		prev := s.connect
		s.connect = f
		return Connect(prev)
	}
}

// Disconnect sets a function to be called when a central disconnects
// from the server. The callback runs in the stack's event context and
// must not block or panic.
// See also NewServer and Server.Option.
func Disconnect(f func(c *ConnDesc)) option {
	return func(s *Server) option {
		prev := s.disconnect
		s.disconnect = f
		return Disconnect(prev)
	}
}

// AdvertiseOnDisconnect sets whether the server asks the stack to
// resume advertising whenever a central disconnects. Enabled by default.
// See also NewServer and Server.Option.
func AdvertiseOnDisconnect(b bool) option {
	return func(s *Server) option {
		prev := s.advertiseOnDisconnect
		s.advertiseOnDisconnect = b
		return AdvertiseOnDisconnect(prev)
	}
}

// Logger sets the logger used for event-routing diagnostics.
// See also NewServer and Server.Option.
func Logger(l *logrus.Logger) option {
	return func(s *Server) option {
		prev := s.log
		s.log = l
		return Logger(prev)
	}
}

// MaxConnections sets the maximum number of concurrent connections the
// server sizes its per-connection bookkeeping for. It must match the
// stack's link cap. MaxConnections can only be used with NewServer.
func MaxConnections(n int) option {
	return func(s *Server) option {
		if s.indicateWait != nil {
			panic("cannot set MaxConnections after server creation")
		}
		prev := s.maxConnections
		s.maxConnections = n
		return MaxConnections(prev)
	}
}
