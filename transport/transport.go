// Package transport declares the node's peer-id transport as a narrow
// interface. Per spec §1, the transport that delivers raw packets by
// node ID — and synthesizes NodeFound/NodeLost membership events — is
// an external collaborator specified only by interface; nothing here
// implements a concrete network binding.
package transport

import "relaynode.dev/node/identity"

// Frame is one inbound delivery from the transport: an opaque byte
// buffer attributed to a sending peer.
type Frame struct {
	PeerID identity.PublicKey
	Bytes  []byte
}

// Transport is the minimal surface the packet pipeline needs from the
// external peer-id transport library.
type Transport interface {
	// Inbound returns the channel the transport delivers Frames on.
	// Spec §5 models this edge as unbounded.
	Inbound() <-chan Frame

	// Send unicasts bytes to a single peer.
	Send(peer identity.PublicKey, data []byte) error

	// Broadcast fans bytes out to every current neighbour.
	Broadcast(data []byte) error
}

// null is a Transport that never delivers anything and discards every
// send. It exists only so a binary can wire the rest of the pipeline
// (collab, round, store) without linking a real peer-id transport
// library; a deployment that actually talks to the network replaces
// it at the injection point in cmd/relay-node.
type null struct {
	inbound chan Frame
}

// Null returns a no-op Transport.
func Null() Transport {
	return &null{inbound: make(chan Frame)}
}

func (n *null) Inbound() <-chan Frame { return n.inbound }
func (n *null) Send(identity.PublicKey, []byte) error { return nil }
func (n *null) Broadcast([]byte) error { return nil }
