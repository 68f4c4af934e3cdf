package gatts

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// A UUID is a BLE UUID: either a 16-bit Bluetooth SIG assigned number
// or a full 128-bit UUID. The zero UUID is invalid.
type UUID struct {
	// b is little-endian, the order the attribute protocol carries it in.
	b []byte
}

// UUID16 converts a 16-bit Bluetooth SIG assigned number to a UUID.
func UUID16(i uint16) UUID {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return UUID{b}
}

// ParseUUID parses a standard-format UUID string, e.g.
// "180d", "0x2a37", or "1800f654-c111-11e3-9246-0002a5d5c51b".
func ParseUUID(s string) (UUID, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) == 4 {
		b, err := hex.DecodeString(s)
		if err != nil {
			return UUID{}, fmt.Errorf("invalid 16-bit UUID %q: %w", s, err)
		}
		return UUID{reverse(b)}, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return UUID{reverse(u[:])}, nil
}

// MustParseUUID parses a standard-format UUID string,
// panicking if the string is invalid.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Len returns the length of the UUID in bytes: 2 or 16.
func (u UUID) Len() int {
	return len(u.b)
}

// Equal reports whether u and v are equal.
func (u UUID) Equal(v UUID) bool {
	return bytes.Equal(u.b, v.b)
}

// String returns the canonical text form of the UUID: four hex digits
// for a 16-bit UUID, the usual hyphenated form for a 128-bit UUID.
func (u UUID) String() string {
	switch len(u.b) {
	case 2:
		return fmt.Sprintf("%04x", binary.LittleEndian.Uint16(u.b))
	case 16:
		var v uuid.UUID
		copy(v[:], reverse(u.b))
		return v.String()
	default:
		return hex.EncodeToString(u.b)
	}
}

func uuidEqual(a, b UUID) bool { return a.Equal(b) }

// reverse returns a reversed copy of u.
func reverse(u []byte) []byte {
	b := make([]byte, len(u))
	for i := 0; i < len(u)/2+1; i++ {
		b[i], b[len(u)-i-1] = u[len(u)-i-1], u[i]
	}
	return b
}
