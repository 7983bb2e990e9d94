package session

import (
	"fmt"

	"github.com/1ureka/silk/internal/transport"
)

// handlePeerUpdate reacts to the transport's connect/disconnect stream.
//
// The first peer to connect while Establishing is the host: the pending
// credential is consumed and exactly one login request goes out on the
// reliable channel.
func (c *Client) handlePeerUpdate(u transport.PeerUpdate) error {
	switch u.State {
	case transport.PeerConnected:
		if c.state != Establishing {
			c.log.Debug("ignoring peer %s connecting while %s", u.Peer.Short(), c.state)
			return nil
		}
		if host := c.session.HostID; host != nil {
			if *host != u.Peer {
				c.log.Warning("ignoring peer %s: already bound to host %s", u.Peer.Short(), host.Short())
			}
			return nil
		}

		auth := c.session.Auth
		if auth == nil {
			return fmt.Errorf("%w: host %s connected with no pending authentication request", ErrInvariant, u.Peer)
		}
		c.session.Auth = nil

		host := u.Peer
		c.session.HostID = &host
		c.loginRequests.SendReliable(host, auth.loginRequest())
		c.log.Debug("host %s reachable, logging in", host.Short())

	case transport.PeerDisconnected:
		// A client only ever sees its host, so losing any peer means the
		// session is gone.
		if c.state == Disconnected {
			return nil
		}
		c.log.Debug("peer %s disconnected", u.Peer.Short())
		c.disconnect(ReasonServerReset)
	}
	return nil
}

// handleLoginResponses completes or fails the handshake. Responses from
// anyone but the host, or outside Establishing, are ignored.
func (c *Client) handleLoginResponses() {
	for _, in := range c.loginResponses.Incoming() {
		host := c.session.HostID
		if c.state != Establishing || host == nil || *host != in.From {
			c.log.Debug("ignoring login response from %s while %s", in.From.Short(), c.state)
			continue
		}

		switch resp := in.Message; {
		case resp.Accepted != nil:
			c.log.Success("authenticated as %s", resp.Accepted.Username)
			c.setState(Connected)
			c.emit(ConnectedToHost{Host: *host, Username: resp.Accepted.Username})

		case resp.Denied != nil:
			c.log.Error("login denied, reason: %q", resp.Denied.Reason)
			c.disconnect(resp.Denied.Reason)
		}
	}
}
