package identity

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// ID is a participant key in base58 text form. A valid ID decodes to 32 raw
// bytes (a wallet public key). Core packages treat IDs as opaque strings;
// Parse is the boundary check for anything arriving over the wire.
type ID string

// None is the zero ID, used where a draw or sample produced no identity.
const None ID = ""

const rawLen = 32

// Parse validates s as a base58-encoded 32-byte key and returns it as an ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return None, fmt.Errorf("identity is empty")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return None, fmt.Errorf("identity %q is not base58: %w", s, err)
	}
	if len(raw) != rawLen {
		return None, fmt.Errorf("identity %q decodes to %d bytes, want %d", s, len(raw), rawLen)
	}
	return ID(s), nil
}

// FromBytes encodes a raw 32-byte key as an ID.
func FromBytes(raw [rawLen]byte) ID {
	return ID(base58.Encode(raw[:]))
}

// Short returns a truncated form for logs.
func (id ID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8]) + "…"
}

func (id ID) String() string { return string(id) }
