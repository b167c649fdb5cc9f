package block

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// TrustedSet is the decoded form of one trusted-info sub-record: the
// participation bitset plus the public keys it indexes. validateRawBlock
// never builds this — it only bounds-checks the same bytes by popcount —
// callers that need the structured view decode it explicitly with
// DecodeConsensusSet/DecodeNextRoundTableSet after a block has already
// passed validation.
type TrustedSet struct {
	Bits *bitset.BitSet
	Keys [][HashSize]byte
}

// Popcount returns the number of signatures this set's bitset implies.
func (t *TrustedSet) Popcount() int {
	if t.Bits == nil {
		return 0
	}
	return int(t.Bits.Count())
}

// decodeTrustedSet re-reads one already-validated trusted-info
// sub-record into a structured TrustedSet, returning the bytes consumed.
func decodeTrustedSet(b []byte) (*TrustedSet, int, error) {
	if len(b) < 9 {
		return nil, 0, fmt.Errorf("block: trusted set truncated")
	}
	count := int(b[0])
	rawBits := binary.LittleEndian.Uint64(b[1:9])
	pos := 9
	if len(b) < pos+count*PublicKeySize {
		return nil, 0, fmt.Errorf("block: trusted set key list truncated")
	}
	keys := make([][HashSize]byte, count)
	for i := 0; i < count; i++ {
		copy(keys[i][:], b[pos:pos+PublicKeySize])
		pos += PublicKeySize
	}
	bs := bitset.From([]uint64{rawBits})
	return &TrustedSet{Bits: bs, Keys: keys}, pos, nil
}

// DecodeConsensusSet decodes the block's consensus trusted-info set. The
// block must already have passed FromBytes/FromStream validation; this
// walks the same prefix again but only as far as needed, relying on the
// earlier validation for safety of the lengths involved.
func (b *RawBlock) DecodeConsensusSet() (*TrustedSet, error) {
	pos, err := b.trustedInfoOffset()
	if err != nil {
		return nil, err
	}
	set, _, err := decodeTrustedSet(b.data[pos:])
	return set, err
}

// DecodeNextRoundTableSet decodes the block's next-round-table
// trusted-info set (keys only; its signatures immediately follow in the
// wire format but are not part of the structured set itself).
func (b *RawBlock) DecodeNextRoundTableSet() (*TrustedSet, error) {
	pos, err := b.trustedInfoOffset()
	if err != nil {
		return nil, err
	}
	_, consensusConsumed, err := decodeTrustedSet(b.data[pos:])
	if err != nil {
		return nil, err
	}
	pos += consensusConsumed
	set, _, err := decodeTrustedSet(b.data[pos:])
	return set, err
}

// trustedInfoOffset re-walks the meta/transactions/new-wallets prefix to
// find where the trusted-info section begins.
func (b *RawBlock) trustedInfoOffset() (int, error) {
	data := b.data
	if len(data) < 2 {
		return 0, fmt.Errorf("block: truncated")
	}
	pos := 1
	hashLen := int(data[pos])
	pos += 1 + hashLen + 8

	n, ok := validateUserFields(data[pos:])
	if !ok {
		return 0, fmt.Errorf("block: corrupt user fields")
	}
	pos += n + MoneySize

	txCount := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	for i := 0; i < txCount; i++ {
		n, ok := validateTransaction(data[pos:])
		if !ok {
			return 0, fmt.Errorf("block: corrupt transaction")
		}
		pos += n
	}

	walletCount := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4 + walletCount*newWalletEntrySize

	return pos, nil
}
