// Package packet implements the node's packet framing (spec §4.3): the
// flags/cmd/msg/round header layout and the compressed-payload
// container. The pipeline stages that move packets between the
// transport and the collaboration/round-tracker components live in
// package pipeline.
package packet

import (
	"encoding/binary"

	"relaynode.dev/node/identity"
)

// Flags is the first byte of every packet: a bitmask of N (neighbour
// command vs. broadcast message), C (compressed) and S (signed).
type Flags uint8

const (
	FlagNeighbour  Flags = 0b0000_0001
	FlagCompressed Flags = 0b0000_0010
	FlagSigned     Flags = 0b0000_0100
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// NghbrCmd is the one-byte neighbour-command opcode carried by N-flagged
// packets. NodeFound and NodeLost are synthetic values injected by the
// transport on membership change, never seen on the wire.
type NghbrCmd uint8

const (
	CmdError         NghbrCmd = 1
	CmdVersionReq    NghbrCmd = 2
	CmdVersionReply  NghbrCmd = 3
	CmdPing          NghbrCmd = 4
	CmdPong          NghbrCmd = 5
	CmdNodeFound     NghbrCmd = 253
	CmdNodeLost      NghbrCmd = 254
)

// MsgType is the one-byte message-type opcode carried by non-neighbour
// packets, preserved exactly as numbered on the wire (spec §4.3).
type MsgType uint8

const (
	MsgBootstrapTable            MsgType = 0
	MsgTransactions              MsgType = 1
	MsgFirstTransaction          MsgType = 2
	MsgNewBlock                  MsgType = 3
	MsgBlockHash                 MsgType = 4
	MsgBlockRequest              MsgType = 5
	MsgRequestedBlock            MsgType = 6
	MsgFirstStage                MsgType = 7
	MsgSecondStage                MsgType = 8
	MsgThirdStage                MsgType = 9
	MsgFirstStageRequest         MsgType = 10
	MsgSecondStageRequest        MsgType = 11
	MsgThirdStageRequest         MsgType = 12
	MsgRoundTableRequest         MsgType = 13
	MsgRoundTableReply           MsgType = 14
	MsgTransactionPacket         MsgType = 15
	MsgTransactionsPacketRequest MsgType = 16
	MsgTransactionsPacketReply   MsgType = 17
	MsgNewCharacteristic         MsgType = 18
	MsgWriterNotification        MsgType = 19
	MsgFirstSmartStage           MsgType = 20
	MsgSecondSmartStage          MsgType = 21
	MsgRoundTable                MsgType = 22
	MsgThirdSmartStage           MsgType = 23
	MsgSmartFirstStageRequest    MsgType = 24
	MsgSmartSecondStageRequest   MsgType = 25
	MsgSmartThirdStageRequest    MsgType = 26
	MsgHashReply                 MsgType = 27
	MsgRejectedContracts         MsgType = 28
	MsgRoundPackRequest          MsgType = 29
	MsgStateRequest              MsgType = 30
	MsgStateReply                MsgType = 31
	MsgUtility                   MsgType = 32
	MsgEmptyRoundPack            MsgType = 33
	MsgBlockAlarm                MsgType = 34
	MsgEventReport               MsgType = 35
	MsgNodeStopRequest           MsgType = 255
)

// neighbourHeaderLen is flags(1) + cmd(1).
const neighbourHeaderLen = 2

// messageHeaderLen is flags(1) + msg(1) + round(8).
const messageHeaderLen = 10

// Packet is a small handle over an owning byte buffer plus an optional
// peer public key (sender for inbound packets, target for outbound
// unicasts). All inspection below is offset-based; the buffer is never
// eagerly re-parsed into a richer structure.
type Packet struct {
	address *identity.PublicKey
	data    []byte
}

// NewBroadcast builds a Packet with no target/sender address set.
// Empty input is rejected.
func NewBroadcast(data []byte) (*Packet, bool) {
	if len(data) == 0 {
		return nil, false
	}
	return &Packet{data: data}, true
}

// NewFromPeer builds an inbound Packet attributed to the given sender.
func NewFromPeer(sender identity.PublicKey, data []byte) (*Packet, bool) {
	p, ok := NewBroadcast(data)
	if !ok {
		return nil, false
	}
	p.SetAddress(sender)
	return p, true
}

// IsNeighbour reports whether the N flag is set.
func (p *Packet) IsNeighbour() bool {
	if len(p.data) == 0 {
		return false
	}
	return Flags(p.data[0]).has(FlagNeighbour)
}

// IsMessage is the complement of IsNeighbour.
func (p *Packet) IsMessage() bool { return !p.IsNeighbour() }

// IsSigned reports whether the S flag is set.
func (p *Packet) IsSigned() bool {
	if len(p.data) == 0 {
		return false
	}
	return Flags(p.data[0]).has(FlagSigned)
}

// IsCompressed reports whether the C flag is set.
func (p *Packet) IsCompressed() bool {
	if len(p.data) == 0 {
		return false
	}
	return Flags(p.data[0]).has(FlagCompressed)
}

// NghbrCmd returns the neighbour-command opcode, if this is a neighbour
// packet with at least 2 bytes.
func (p *Packet) NghbrCmd() (NghbrCmd, bool) {
	if !p.IsNeighbour() || len(p.data) < 2 {
		return 0, false
	}
	return NghbrCmd(p.data[1]), true
}

// MsgType returns the message-type opcode, if this is a message packet
// with at least 2 bytes.
func (p *Packet) MsgType() (MsgType, bool) {
	if !p.IsMessage() || len(p.data) < 2 {
		return 0, false
	}
	return MsgType(p.data[1]), true
}

// Round returns the 8-byte round field. Neighbour packets carry no
// round field and always return ok=false.
func (p *Packet) Round() (uint64, bool) {
	if !p.IsMessage() || len(p.data) < messageHeaderLen {
		return 0, false
	}
	return binary.LittleEndian.Uint64(p.data[2:messageHeaderLen]), true
}

// Payload returns the bytes following the header: offset 2 for
// neighbour packets, offset 10 for message packets.
func (p *Packet) Payload() ([]byte, bool) {
	if p.IsNeighbour() {
		if len(p.data) < neighbourHeaderLen {
			return nil, false
		}
		return p.data[neighbourHeaderLen:], true
	}
	if len(p.data) < messageHeaderLen {
		return nil, false
	}
	return p.data[messageHeaderLen:], true
}

// Address returns the packet's attributed peer (sender inbound, target
// outbound), if any.
func (p *Packet) Address() (identity.PublicKey, bool) {
	if p.address == nil {
		return identity.PublicKey{}, false
	}
	return *p.address, true
}

// Data returns the full raw packet buffer.
func (p *Packet) Data() []byte { return p.data }

// SetAddress attaches a peer identity to the packet.
func (p *Packet) SetAddress(peer identity.PublicKey) {
	addr := peer
	p.address = &addr
}
