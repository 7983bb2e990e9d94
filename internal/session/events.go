package session

import "github.com/1ureka/silk/internal/transport"

// Reasons attached to disconnects the session detects itself.
const (
	ReasonServerReset      = "Server reset"
	ReasonConnectionClosed = "Connection closed"
)

// Event is an externally observable session change. Each occurrence is
// emitted exactly once, in the tick it happened.
type Event interface {
	isEvent()
}

// IDAssigned fires once, when the signaling server first names us.
type IDAssigned struct {
	ID transport.PeerID
}

// ConnectedToHost fires when the host accepts our login.
type ConnectedToHost struct {
	Host     transport.PeerID
	Username string
}

// DisconnectedFromHost fires on every transition to Disconnected. Reason
// is "" when none was given.
type DisconnectedFromHost struct {
	Reason string
}

// PeerJoined fires on the host when a peer's channels open.
type PeerJoined struct {
	Peer transport.PeerID
}

// PeerLeft fires on the host when a joined peer goes away.
type PeerLeft struct {
	Peer transport.PeerID
}

func (IDAssigned) isEvent()           {}
func (ConnectedToHost) isEvent()      {}
func (DisconnectedFromHost) isEvent() {}
func (PeerJoined) isEvent()           {}
func (PeerLeft) isEvent()             {}

// Request is a connection request from the application to a Client.
type Request interface {
	isRequest()
}

// Connect asks to join the session behind Addr using Auth. It is ignored
// unless the client is Disconnected.
type Connect struct {
	Addr transport.ConnectionAddr
	Auth AuthenticationRequest
}

// Disconnect drops the session immediately, in any state.
type Disconnect struct {
	Reason string
}

func (Connect) isRequest()    {}
func (Disconnect) isRequest() {}
