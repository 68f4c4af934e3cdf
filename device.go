package gatts

import "sync"

// A Device is the process-wide BLE device: the single radio, its host
// stack, the GATT server, and the security configuration. The host
// stack accepts exactly one event handler for the process lifetime, so
// there is exactly one Device.
type Device struct {
	stack    HostStack
	server   *Server
	security *Security
}

var (
	deviceOnce sync.Once
	device     *Device
)

// InitDevice binds the process-wide device to the given host stack and
// creates its server with the given options. The first call wins; later
// calls return the already-initialized device and ignore their
// arguments.
func InitDevice(stack HostStack, opts ...option) *Device {
	deviceOnce.Do(func() {
		device = &Device{
			stack:    stack,
			security: newSecurity(stack),
		}
		device.server = NewServer(stack, opts...)
	})
	return device
}

// DefaultDevice returns the device initialized by InitDevice,
// or nil if InitDevice has not been called.
func DefaultDevice() *Device {
	return device
}

// Server returns the device's GATT server.
func (d *Device) Server() *Server {
	return d.server
}

// Security returns the device's pairing configuration.
func (d *Device) Security() *Security {
	return d.security
}

// StartAdvertising asks the host stack to begin advertising.
func (d *Device) StartAdvertising() error {
	return d.stack.StartAdvertising()
}
