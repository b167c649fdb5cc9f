package block

import (
	"encoding/binary"
	"math/bits"
)

// Field type tags for the user-field map (spec §3).
const (
	userFieldTagInteger = 1
	userFieldTagBytes   = 2
	userFieldTagMoney   = 3
)

const newWalletEntrySize = 8 + 4 // address-id (8) + wallet-id (4)

// validateUserFields decides whether b begins with a well-formed
// user-field map and reports the exact consumed length. It never reads
// past a length it has not first bounds-checked.
func validateUserFields(b []byte) (int, bool) {
	if len(b) < 1 {
		return 0, false
	}
	count := int(b[0])
	pos := 1
	for i := 0; i < count; i++ {
		if len(b) < pos+4+1 {
			return 0, false
		}
		pos += 4 // key
		tag := b[pos]
		pos++
		switch tag {
		case userFieldTagInteger:
			if len(b) < pos+8 {
				return 0, false
			}
			pos += 8
		case userFieldTagBytes:
			if len(b) < pos+4 {
				return 0, false
			}
			length := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
			pos += 4
			if length == 0 {
				return 0, false
			}
			if len(b) < pos+length {
				return 0, false
			}
			pos += length
		case userFieldTagMoney:
			if len(b) < pos+MoneySize {
				return 0, false
			}
			pos += MoneySize
		default:
			return 0, false
		}
	}
	if len(b) < pos {
		return 0, false
	}
	return pos, true
}

// validateTransaction decides whether b begins with a well-formed
// transaction and reports its consumed length. The source/target
// encoding is decided solely by the top two bits of the inner-id's high
// word: bit 31 set selects a 4-byte wallet index for the source, bit 30
// set selects a 4-byte wallet index for the target; clear means a
// 32-byte public key.
func validateTransaction(b []byte) (int, bool) {
	if len(b) < 6 {
		return 0, false
	}
	pos := 2 // inner-id low word
	hi := binary.LittleEndian.Uint32(b[pos : pos+4])
	pos += 4

	if hi&sourceIndexBit != 0 {
		pos += 4
	} else {
		pos += PublicKeySize
	}
	if len(b) < pos {
		return 0, false
	}
	if hi&targetIndexBit != 0 {
		pos += 4
	} else {
		pos += PublicKeySize
	}
	if len(b) < pos {
		return 0, false
	}

	pos += MoneySize + 2 + 1 // amount + max-fee + currency
	if len(b) < pos {
		return 0, false
	}

	n, ok := validateUserFields(b[pos:])
	if !ok {
		return 0, false
	}
	pos += n

	pos += SignatureSize + 2 // signature + fee
	if len(b) < pos {
		return 0, false
	}
	return pos, true
}

// validateTrustedSet validates one trusted-info sub-record: a count
// byte, an 8-byte participation bitset, and that many 32-byte public
// keys. It returns the consumed length and the bitset's popcount, which
// callers use to size the signature run that follows (either
// immediately, for the next-round-table set, or later in the dedicated
// block-signatures section, for the consensus set).
func validateTrustedSet(b []byte) (consumed int, popcount int, ok bool) {
	if len(b) < 1+8 {
		return 0, 0, false
	}
	count := int(b[0])
	bitset := binary.LittleEndian.Uint64(b[1:9])
	pos := 9
	if len(b) < pos+count*PublicKeySize {
		return 0, 0, false
	}
	pos += count * PublicKeySize
	return pos, bits.OnesCount64(bitset), true
}

// validateRawBlock decides whether b begins with a well-formed block and
// reports the exact consumed length, per the field order in spec §3:
// meta, transactions, new wallets, trusted info, hashed-length marker,
// block signatures, contract signatures.
func validateRawBlock(b []byte) (int, bool) {
	pos := 0

	// Meta: version, hash-length prefix, hash, sequence.
	if len(b) < pos+1 {
		return 0, false
	}
	pos++ // version
	if len(b) < pos+1 {
		return 0, false
	}
	hashLen := int(b[pos])
	pos++
	if hashLen != HashSize {
		return 0, false
	}
	if len(b) < pos+hashLen {
		return 0, false
	}
	pos += hashLen
	if len(b) < pos+8 {
		return 0, false
	}
	pos += 8 // sequence

	n, ok := validateUserFields(b[pos:])
	if !ok {
		return 0, false
	}
	pos += n

	if len(b) < pos+MoneySize {
		return 0, false
	}
	pos += MoneySize // round cost

	// Transactions.
	if len(b) < pos+4 {
		return 0, false
	}
	txCount := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
	pos += 4
	for i := 0; i < txCount; i++ {
		n, ok := validateTransaction(b[pos:])
		if !ok {
			return 0, false
		}
		pos += n
	}

	// New wallets.
	if len(b) < pos+4 {
		return 0, false
	}
	walletCount := int(binary.LittleEndian.Uint32(b[pos : pos+4]))
	pos += 4
	if len(b) < pos+walletCount*newWalletEntrySize {
		return 0, false
	}
	pos += walletCount * newWalletEntrySize

	// Trusted info: consensus set, then next-round-table set with its
	// signatures appended immediately.
	consensusLen, consensusPopcount, ok := validateTrustedSet(b[pos:])
	if !ok {
		return 0, false
	}
	pos += consensusLen

	nrtLen, nrtPopcount, ok := validateTrustedSet(b[pos:])
	if !ok {
		return 0, false
	}
	pos += nrtLen
	if len(b) < pos+nrtPopcount*SignatureSize {
		return 0, false
	}
	pos += nrtPopcount * SignatureSize

	// Hashed length: a size-of-word (8-byte) marker for the end of the
	// signed region. Its value is not re-derived here; the caller is
	// only required to be able to read it.
	if len(b) < pos+8 {
		return 0, false
	}
	pos += 8

	// Block signatures: one per bit set in the consensus bitset.
	if len(b) < pos+consensusPopcount*SignatureSize {
		return 0, false
	}
	pos += consensusPopcount * SignatureSize

	// Contract signatures.
	if len(b) < pos+1 {
		return 0, false
	}
	contractCount := int(b[pos])
	pos++
	for i := 0; i < contractCount; i++ {
		if len(b) < pos+HashSize+8+1 {
			return 0, false
		}
		pos += HashSize + 8 // key + round
		trustedCount := int(b[pos])
		pos++
		recordSize := trustedCount * (1 + SignatureSize)
		if len(b) < pos+recordSize {
			return 0, false
		}
		pos += recordSize
	}

	if len(b) < pos {
		return 0, false
	}
	return pos, true
}
