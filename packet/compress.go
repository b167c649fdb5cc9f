package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
)

// Compression container format (spec §4.3): once the C flag is set, the
// payload begins with an 8-byte decompressed-size and a 1-byte
// "actually compressed" indicator. The retrieved corpus carries no LZ4
// binding; this codec swaps in github.com/golang/snappy for the
// compressed-byte-stream itself (see SPEC_FULL.md DOMAIN STACK) while
// keeping the hand-rolled outer container exactly as specified.
const (
	compressedSizeLen  = 8
	actuallyCompressed = 1
)

// Compress builds a C-flagged payload: decompressed-size header,
// actually-compressed indicator, then the snappy-compressed bytes of
// raw.
func Compress(raw []byte) []byte {
	compressed := snappy.Encode(nil, raw)
	out := make([]byte, compressedSizeLen+1, compressedSizeLen+1+len(compressed))
	binary.LittleEndian.PutUint64(out[:compressedSizeLen], uint64(len(raw)))
	out[compressedSizeLen] = actuallyCompressed
	out = append(out, compressed...)
	return out
}

// decompressPayload reverses Compress. When the actually-compressed
// indicator is 0, spec §9's open question directs implementers to treat
// the remainder as raw bytes of the declared decompressed length rather
// than as a compressed stream.
func decompressPayload(payload []byte) ([]byte, error) {
	if len(payload) < compressedSizeLen+1 {
		return nil, fmt.Errorf("packet: compressed payload truncated")
	}
	decompressedSize := binary.LittleEndian.Uint64(payload[:compressedSizeLen])
	indicator := payload[compressedSizeLen]
	rest := payload[compressedSizeLen+1:]

	if indicator == 0 {
		if uint64(len(rest)) < decompressedSize {
			return nil, fmt.Errorf("packet: raw payload shorter than declared size")
		}
		return rest[:decompressedSize], nil
	}

	out, err := snappy.Decode(make([]byte, 0, decompressedSize), rest)
	if err != nil {
		return nil, fmt.Errorf("packet: decompress: %w", err)
	}
	if uint64(len(out)) != decompressedSize {
		return nil, fmt.Errorf("packet: decompressed size mismatch: got %d, want %d", len(out), decompressedSize)
	}
	return out, nil
}

// Decompress returns a packet identical to p except the C flag is
// cleared and the payload replaced by the decompressed bytes. If p is
// not compressed, it returns a shallow copy of p unchanged.
func (p *Packet) Decompress() (*Packet, error) {
	if !p.IsCompressed() {
		return &Packet{address: p.address, data: p.data}, nil
	}

	headerLen := neighbourHeaderLen
	if p.IsMessage() {
		headerLen = messageHeaderLen
	}
	if len(p.data) < headerLen {
		return nil, fmt.Errorf("packet: truncated header")
	}

	rawPayload, err := decompressPayload(p.data[headerLen:])
	if err != nil {
		return nil, err
	}

	header := append([]byte(nil), p.data[:headerLen]...)
	header[0] = header[0] &^ byte(FlagCompressed)
	out := append(header, rawPayload...)

	return &Packet{address: p.address, data: out}, nil
}
