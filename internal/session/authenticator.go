package session

import (
	"github.com/1ureka/silk/internal/protocol"
	"github.com/1ureka/silk/internal/transport"
)

// Reasons the bundled authenticators deny with.
const (
	ReasonRegisteredUnsupported = "registered users are not supported"
	ReasonBadToken              = "bad token"
	ReasonGuestsDisabled        = "guests are not allowed"
)

// Authenticator decides whether a peer's login is accepted.
type Authenticator interface {
	Authenticate(peer transport.PeerID, req protocol.LoginRequest) protocol.LoginResponse
}

// AuthenticatorFunc adapts a plain function to Authenticator.
type AuthenticatorFunc func(peer transport.PeerID, req protocol.LoginRequest) protocol.LoginResponse

func (f AuthenticatorFunc) Authenticate(peer transport.PeerID, req protocol.LoginRequest) protocol.LoginResponse {
	return f(peer, req)
}

// GuestAuthenticator accepts every guest. A guest without a username is
// named after its peer id.
type GuestAuthenticator struct{}

func (GuestAuthenticator) Authenticate(peer transport.PeerID, req protocol.LoginRequest) protocol.LoginResponse {
	if req.Guest == nil {
		return protocol.Denied(ReasonRegisteredUnsupported)
	}
	return protocol.Accepted(guestName(peer, req.Guest.Username))
}

// TokenAuthenticator accepts registered users whose access token appears in
// Tokens, which maps token to account name. The accepted username is the
// requested character, or the account name when no character was given.
type TokenAuthenticator struct {
	Tokens      map[string]string
	AllowGuests bool
}

func (a TokenAuthenticator) Authenticate(peer transport.PeerID, req protocol.LoginRequest) protocol.LoginResponse {
	if req.Guest != nil {
		if !a.AllowGuests {
			return protocol.Denied(ReasonGuestsDisabled)
		}
		return protocol.Accepted(guestName(peer, req.Guest.Username))
	}

	account, ok := a.Tokens[req.Registered.AccessToken]
	if !ok {
		return protocol.Denied(ReasonBadToken)
	}
	if req.Registered.Character != "" {
		return protocol.Accepted(req.Registered.Character)
	}
	return protocol.Accepted(account)
}

func guestName(peer transport.PeerID, username string) string {
	if username != "" {
		return username
	}
	return "guest-" + peer.Short()
}
