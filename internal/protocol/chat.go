package protocol

// Chat is the demo application payload: a line of text. Clients send it to
// the host; the host fills in From and relays it to every peer.
type Chat struct {
	From string `cbor:"from,omitempty"`
	Text string `cbor:"text"`
}

func (Chat) Tag() string { return "silk.demo.chat" }
