package transport

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Channel is a logical lane over the peer connection. The numeric value is
// the transport channel index and the negotiated DataChannel ID.
type Channel int

const (
	// Unreliable delivers in order but never retransmits.
	Unreliable Channel = 0
	// Reliable delivers in order and retransmits until delivered or the
	// connection drops.
	Reliable Channel = 1
)

// channelCount is the number of channels every peer connection carries.
const channelCount = 2

// Channels lists every channel in index order.
var Channels = [channelCount]Channel{Unreliable, Reliable}

func (c Channel) String() string {
	switch c {
	case Unreliable:
		return "unreliable"
	case Reliable:
		return "reliable"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Valid reports whether c is one of the two policy channels.
func (c Channel) Valid() bool {
	return c == Unreliable || c == Reliable
}

// dataChannelInit returns the pion options for c. Channels are
// pre-negotiated with ID == index so both sides can create them without
// relying on OnDataChannel.
func (c Channel) dataChannelInit() *webrtc.DataChannelInit {
	ordered := true
	negotiated := true
	id := uint16(c)

	init := &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	}
	if c == Unreliable {
		retransmits := uint16(0)
		init.MaxRetransmits = &retransmits
	}
	return init
}
