package gatts

// This file includes constants from the BLE spec and the host stack.

// ConnHandleNone is the host stack's sentinel for "no connection";
// it marks free slots in the indicate-wait table.
const ConnHandleNone uint16 = 0xffff

// DefaultMaxConnections is the host stack's default cap on concurrent
// links. The connection layer enforces the cap; the server only sizes
// its per-connection bookkeeping by it.
const DefaultMaxConnections = 3

// attMTUDefault is the ATT_MTU every link starts out with.
const attMTUDefault = 23

// ATT error codes surfaced by characteristic read/write handlers.
const (
	attEcodeSuccess       = 0x00
	attEcodeInvalidOffset = 0x07
	attEcodeUnlikely      = 0x0e
)

// Supported statuses for GATT characteristic read/write operations.
const (
	StatusSuccess         = attEcodeSuccess
	StatusInvalidOffset   = attEcodeInvalidOffset
	StatusUnexpectedError = attEcodeUnlikely
)
