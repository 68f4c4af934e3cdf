package gatts

import "fmt"

// HSError is a host-stack return code. The values mirror the NimBLE
// BLE_HS_E* space so a stack binding can pass its codes through unchanged.
type HSError int

const (
	HSEAgain   HSError = 1  // temporary failure, retry
	HSEAlready HSError = 2  // operation already in progress or completed
	HSEInvalid HSError = 3  // invalid argument
	HSEMsgSize HSError = 4  // value exceeds the transmittable size
	HSENoEnt   HSError = 5  // no matching entry
	HSENoMem   HSError = 6  // resource exhaustion in the stack
	HSENotConn HSError = 7  // no such connection
	HSENotSup  HSError = 8  // operation not supported
	HSETimeout HSError = 13 // peer did not respond in time
	HSEBusy    HSError = 15 // a conflicting operation is outstanding
)

func (e HSError) Error() string {
	switch e {
	case HSEAgain:
		return "ble_hs: temporary failure"
	case HSEAlready:
		return "ble_hs: already"
	case HSEInvalid:
		return "ble_hs: invalid argument"
	case HSEMsgSize:
		return "ble_hs: message too long"
	case HSENoEnt:
		return "ble_hs: no such entry"
	case HSENoMem:
		return "ble_hs: out of memory"
	case HSENotConn:
		return "ble_hs: not connected"
	case HSENotSup:
		return "ble_hs: not supported"
	case HSETimeout:
		return "ble_hs: timeout"
	case HSEBusy:
		return "ble_hs: busy"
	}
	return fmt.Sprintf("ble_hs: error %d", int(e))
}
