// Package session is the connection layer on top of the router: the
// client-side connection state machine with its login handshake, the
// host-side peer tracker that answers logins, and the events both emit.
//
// Neither role starts goroutines or takes locks. The tick loop owns a
// Client or Host exclusively and calls Tick once per tick.
package session

import (
	"github.com/1ureka/silk/internal/protocol"
	"github.com/1ureka/silk/internal/transport"
)

// ConnectionState is the client's connection phase.
type ConnectionState int

const (
	// Disconnected is the initial state and where every failure lands.
	Disconnected ConnectionState = iota
	// Establishing covers signaling, WebRTC setup and the login handshake.
	Establishing
	// Connected means the host accepted our login.
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Establishing:
		return "establishing"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// AuthenticationRequest is the credential a client presents to the host.
// Build one with RegisteredAuth or GuestAuth.
type AuthenticationRequest struct {
	registered  bool
	accessToken string
	character   string
	username    string
}

// RegisteredAuth authenticates an account holder playing character.
func RegisteredAuth(accessToken, character string) AuthenticationRequest {
	return AuthenticationRequest{registered: true, accessToken: accessToken, character: character}
}

// GuestAuth asks for a guest session. An empty username lets the host
// pick one.
func GuestAuth(username string) AuthenticationRequest {
	return AuthenticationRequest{username: username}
}

// IsRegistered reports whether a is the registered-user variant.
func (a AuthenticationRequest) IsRegistered() bool { return a.registered }

// loginRequest maps the credential onto its wire message.
func (a AuthenticationRequest) loginRequest() protocol.LoginRequest {
	if a.registered {
		return protocol.RegisteredUser(a.accessToken, a.character)
	}
	return protocol.Guest(a.username)
}

// SessionState is everything the client knows about the current
// connection attempt. It is replaced wholesale on every reset.
//
// HostID is set only while Establishing (after the host became reachable)
// or Connected. Auth is nil whenever the state is Connected.
type SessionState struct {
	Addr    transport.ConnectionAddr
	Auth    *AuthenticationRequest
	LocalID *transport.PeerID
	HostID  *transport.PeerID
}

// clone returns a copy that shares no pointers with s.
func (s SessionState) clone() SessionState {
	out := SessionState{Addr: s.Addr}
	if s.Auth != nil {
		auth := *s.Auth
		out.Auth = &auth
	}
	if s.LocalID != nil {
		id := *s.LocalID
		out.LocalID = &id
	}
	if s.HostID != nil {
		id := *s.HostID
		out.HostID = &id
	}
	return out
}
