package protocol

import "errors"

// LoginRequest is sent once by a client, on the reliable channel, as soon
// as the host becomes reachable. Exactly one variant is set.
type LoginRequest struct {
	Registered *RegisteredLogin `cbor:"registered,omitempty"`
	Guest      *GuestLogin      `cbor:"guest,omitempty"`
}

// RegisteredLogin authenticates an account holder.
type RegisteredLogin struct {
	AccessToken string `cbor:"access_token"`
	Character   string `cbor:"character"`
}

// GuestLogin asks for an unauthenticated session. An empty username lets
// the host pick one.
type GuestLogin struct {
	Username string `cbor:"username"`
}

// RegisteredUser builds the registered-user variant.
func RegisteredUser(accessToken, character string) LoginRequest {
	return LoginRequest{Registered: &RegisteredLogin{AccessToken: accessToken, Character: character}}
}

// Guest builds the guest variant.
func Guest(username string) LoginRequest {
	return LoginRequest{Guest: &GuestLogin{Username: username}}
}

func (LoginRequest) Tag() string { return "silk.login_request" }

func (r LoginRequest) Validate() error {
	if (r.Registered == nil) == (r.Guest == nil) {
		return errors.New("login request must set exactly one of registered, guest")
	}
	return nil
}

// LoginResponse is the host's answer to a LoginRequest. Exactly one variant
// is set.
type LoginResponse struct {
	Accepted *LoginAccepted `cbor:"accepted,omitempty"`
	Denied   *LoginDenied   `cbor:"denied,omitempty"`
}

// LoginAccepted carries the identity the host resolved.
type LoginAccepted struct {
	Username string `cbor:"username"`
}

// LoginDenied carries an optional human-readable reason; "" means none.
type LoginDenied struct {
	Reason string `cbor:"reason,omitempty"`
}

// Accepted builds the accepted variant.
func Accepted(username string) LoginResponse {
	return LoginResponse{Accepted: &LoginAccepted{Username: username}}
}

// Denied builds the denied variant.
func Denied(reason string) LoginResponse {
	return LoginResponse{Denied: &LoginDenied{Reason: reason}}
}

func (LoginResponse) Tag() string { return "silk.login_response" }

func (r LoginResponse) Validate() error {
	if (r.Accepted == nil) == (r.Denied == nil) {
		return errors.New("login response must set exactly one of accepted, denied")
	}
	return nil
}
