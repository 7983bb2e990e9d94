// Package transport is the boundary between the session layer and the
// network. The session layer only ever sees the Transport interface; Socket
// implements it over WebRTC DataChannels brokered by a signaling server.
package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by a Transport whose message loop has ended.
	ErrClosed = errors.New("transport closed")

	// ErrUnknownPeer is returned by Send for a peer the transport has no
	// connection to.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrInvalidChannel is returned for a channel index outside the policy.
	ErrInvalidChannel = errors.New("invalid channel")
)

// PeerID identifies a connected peer. IDs are issued by the signaling
// server and are only unique for the lifetime of one connection.
type PeerID uuid.UUID

// NewPeerID returns a fresh random PeerID.
func NewPeerID() PeerID {
	return PeerID(uuid.New())
}

// ParsePeerID parses the textual form produced by PeerID.String.
func ParsePeerID(s string) (PeerID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PeerID{}, err
	}
	return PeerID(u), nil
}

func (id PeerID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first eight hex digits, for log lines.
func (id PeerID) Short() string {
	return id.String()[:8]
}

// PeerState is the connectivity change reported for a peer.
type PeerState int

const (
	PeerConnected PeerState = iota
	PeerDisconnected
)

func (s PeerState) String() string {
	switch s {
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// PeerUpdate is one entry of the peer-update stream.
type PeerUpdate struct {
	Peer  PeerID
	State PeerState
}

// Frame is one raw message received from a peer.
type Frame struct {
	Peer PeerID
	Data []byte
}

// Transport is the narrow interface the session layer consumes. All methods
// are non-blocking; network I/O happens on the implementation's own
// goroutines and is handed over once per tick through these calls.
type Transport interface {
	// LocalID reports the id assigned by the signaling server, once known.
	LocalID() (PeerID, bool)

	// PollPeerUpdates drains the connect/disconnect notifications that
	// arrived since the previous call.
	PollPeerUpdates() ([]PeerUpdate, error)

	// Send queues data for delivery to peer on the given channel.
	Send(ch Channel, peer PeerID, data []byte) error

	// Receive drains the frames that arrived on the given channel.
	Receive(ch Channel) ([]Frame, error)

	// AnyClosed reports whether the transport can no longer carry traffic.
	AnyClosed() bool

	// Close tears down every channel. Teardown may finish asynchronously.
	Close() error
}

// Opener starts establishing a Transport against a signaling URL. It must
// return without waiting for any peer to connect.
type Opener func(ctx context.Context, url string) (Transport, error)
