// Package identity provides the node's base58-encoded public-key
// identity type, shared by the packet, collaboration and config
// packages so that peer identity has one canonical representation.
package identity

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Size is the fixed length of a public key, also used as the previous-
// block hash length and trusted-info key length elsewhere in the wire
// format.
const Size = 32

// PublicKey identifies a peer or a trusted-info signer.
type PublicKey [Size]byte

// String renders the key as base58, matching spec §6's "node_id (base58
// 32-byte key)" and the known-hosts file's "base58_id" column.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// Parse decodes a base58-encoded public key, as found in config's
// node_id key or a known-hosts file entry.
func Parse(s string) (PublicKey, error) {
	var out PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return out, fmt.Errorf("identity: invalid base58: %w", err)
	}
	if len(raw) != Size {
		return out, fmt.Errorf("identity: decoded key is %d bytes, want %d", len(raw), Size)
	}
	copy(out[:], raw)
	return out, nil
}
