// Package signaling brokers WebRTC connection setup between peers. The
// server assigns every WebSocket an id and relays SDP/ICE messages between
// ids; it never carries session traffic.
package signaling

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	// Server → peer.
	MsgTypeIDAssigned MessageType = "id_assigned"
	MsgTypeNewPeer    MessageType = "new_peer"
	MsgTypePeerLeft   MessageType = "peer_left"

	// Peer → peer, relayed by the server.
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "candidate"
)

// Message is the JSON structure exchanged over the WebSocket.
type Message struct {
	Type      MessageType `json:"type"`
	Peer      string      `json:"peer,omitempty"` // subject of id_assigned / new_peer / peer_left
	From      string      `json:"from,omitempty"` // filled in by the server on relay
	To        string      `json:"to,omitempty"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

// relayed reports whether the server forwards m to another peer.
func (m Message) relayed() bool {
	switch m.Type {
	case MsgTypeOffer, MsgTypeAnswer, MsgTypeCandidate:
		return true
	default:
		return false
	}
}
