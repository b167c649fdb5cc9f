// Package block implements the node's hand-rolled block wire/on-disk
// format: a strictly positional, variable-length byte layout with no
// external schema. A RawBlock never decodes its fields eagerly; it is
// validated once at construction and thereafter treated as an opaque,
// immutable byte sequence (spec data model: "Blocks are created at
// ingest, validated once, written once, never mutated").
package block

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

const (
	// HashSize is the fixed length of the previous-block hash, also
	// used for trusted-info public keys.
	HashSize = 32
	// PublicKeySize is the size of a source/target public key when the
	// transaction's inner-id does not flag wallet-index encoding.
	PublicKeySize = 32
	// SignatureSize is the size of one block or contract signature.
	SignatureSize = 64
	// MoneySize is the encoded size of the fixed-point money type: a
	// 4-byte signed integral part plus an 8-byte unsigned fractional
	// part.
	MoneySize = 12

	// sourceIndexBit and targetIndexBit are the top two bits of a
	// transaction inner-id's high 32-bit word. When set, the
	// corresponding party is encoded as a 4-byte wallet index rather
	// than a 32-byte public key.
	sourceIndexBit = 0x8000_0000
	targetIndexBit = 0x4000_0000
)

// RawBlock wraps an owning byte buffer known to satisfy validateRawBlock
// end-to-end. It never re-parses its bytes beyond the narrow fixed-offset
// accessors below.
type RawBlock struct {
	data []byte
}

// Bytes returns the block's raw wire/on-disk bytes. Callers must treat
// the returned slice as read-only.
func (b *RawBlock) Bytes() []byte {
	return b.data
}

// Len returns the total encoded length of the block.
func (b *RawBlock) Len() int {
	return len(b.data)
}

// Hash returns the SHA3-256 digest of the block's raw bytes. It exists
// for log correlation only: nothing here re-derives or checks this
// value against the block's own previous-hash field, since hash and
// signature verification stay assumed-available, not implemented.
func (b *RawBlock) Hash() [32]byte {
	return sha3.Sum256(b.data)
}

// Sequence reads the block's 8-byte little-endian sequence number at its
// fixed offset (version byte + hash-length-prefix byte + hash bytes)
// without re-running the structural validator.
func (b *RawBlock) Sequence() (uint64, bool) {
	return Sequence(b.data)
}

// Sequence computes the fixed offset of the sequence field directly from
// the raw bytes, for callers that only hold a byte slice (e.g. while
// still streaming a batch apart from any RawBlock).
func Sequence(b []byte) (uint64, bool) {
	if len(b) < 2 {
		return 0, false
	}
	hashLen := int(b[1])
	offset := 1 + 1 + hashLen
	if len(b) < offset+8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b[offset : offset+8]), true
}

// FromBytes validates b as a single, complete block: validateRawBlock
// must consume exactly len(b). On success it returns an owned copy of
// the bytes wrapped in a RawBlock; on failure it returns ok=false with
// no partial state observable (spec §4.1 failure mode).
func FromBytes(b []byte) (*RawBlock, bool) {
	n, ok := validateRawBlock(b)
	if !ok || n != len(b) {
		return nil, false
	}
	return &RawBlock{data: append([]byte(nil), b...)}, true
}

// FromStream reads an 8-byte big-endian size prefix from b, requires
// that size to equal the structural validator's consumed length for the
// bytes that follow, and returns the parsed block plus the remaining
// suffix. Used to frame one block out of a batch of concatenated,
// length-prefixed blocks (spec §4.1, §4.5 RequestedBlock ingestion).
func FromStream(b []byte) (*RawBlock, []byte, bool) {
	if len(b) < 8 {
		return nil, nil, false
	}
	size := binary.BigEndian.Uint64(b[:8])
	body := b[8:]
	if uint64(len(body)) < size {
		return nil, nil, false
	}
	candidate := body[:size]
	n, ok := validateRawBlock(candidate)
	if !ok || uint64(n) != size {
		return nil, nil, false
	}
	blk := &RawBlock{data: append([]byte(nil), candidate...)}
	return blk, body[size:], true
}
