package gatts

// IOCap describes the device's pairing input/output capability.
type IOCap uint8

const (
	IOCapDisplayOnly IOCap = iota
	IOCapDisplayYesNo
	IOCapKeyboardOnly
	IOCapNoInputNoOutput
	IOCapKeyboardDisplay
)

// KeyDist is a bitmask of the keys distributed during pairing.
type KeyDist uint8

const (
	KeyDistENC  KeyDist = 1 << iota // long-term key
	KeyDistID                       // identity resolving key
	KeyDistSign                     // signing key
	KeyDistLink                     // link key derivation
)

// SecurityConfig is the pairing/bonding configuration surface of the
// host stack. All setters are plain pass-throughs into the stack's
// security manager; they must be called before Server.Start.
type SecurityConfig interface {
	SetAuth(bonding, mitm, sc bool)
	SetIOCap(cap IOCap)
	SetInitKeyDist(kd KeyDist)
	SetRespKeyDist(kd KeyDist)
}

// HostStack is the surface of the vendor BLE host stack the server
// drives. Implementations deliver every asynchronous GAP event serially,
// from a single execution context, to the handler registered with
// SetEventHandler.
type HostStack interface {
	SecurityConfig

	// AddService commits a service's attribute table to the stack and
	// assigns value handles to its characteristics. Called once per
	// service, before Start.
	AddService(s *Service) error

	// Start commits the attribute database and begins serving GATT
	// requests. Called exactly once, after every AddService.
	Start() error

	// FindService reports the attribute handle the stack assigned to
	// the service with the given UUID. Valid only after Start.
	FindService(u UUID) (uint16, error)

	// FindConnection returns the descriptor for an open connection.
	FindConnection(connHandle uint16) (*ConnDesc, error)

	// StartAdvertising (re)starts peripheral advertising.
	StartAdvertising() error

	// Notify submits an unacknowledged value push on an open link.
	Notify(connHandle, attrHandle uint16, value []byte) error

	// Indicate submits an acknowledged value push on an open link. The
	// confirmation, or its failure, arrives later as a notify-TX event.
	Indicate(connHandle, attrHandle uint16, value []byte) error

	// SetEventHandler registers the single GAP event handler for the
	// process lifetime. The handler's return value is passed through to
	// the stack, which ignores it.
	SetEventHandler(fn func(e *GapEvent) int)
}
