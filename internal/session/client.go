package session

import (
	"context"
	"fmt"

	"github.com/1ureka/silk/internal/protocol"
	"github.com/1ureka/silk/internal/router"
	"github.com/1ureka/silk/internal/transport"
	"github.com/1ureka/silk/internal/util"
)

// Compile-time interface check.
var _ router.Resolver = (*Client)(nil)

// Client is the connecting side of a session. It moves between
// Disconnected, Establishing and Connected, and runs the login handshake
// once the host becomes reachable.
type Client struct {
	log    util.Logger
	opener transport.Opener
	reg    *router.Registry

	loginRequests  *router.Router[protocol.LoginRequest]
	loginResponses *router.Router[protocol.LoginResponse]

	state   ConnectionState
	session SessionState
	tr      transport.Transport

	pending []Request
	events  []Event

	// Read-phase results, consumed by the update phase.
	updates []transport.PeerUpdate
	closed  bool
}

// NewClient registers the login messages on reg and installs the client as
// the registry's resolver, so ReliableToHost on any Router targets the
// current host.
func NewClient(reg *router.Registry, opener transport.Opener) (*Client, error) {
	loginRequests, err := router.Register[protocol.LoginRequest](reg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	loginResponses, err := router.Register[protocol.LoginResponse](reg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	c := &Client{
		log:            util.NewLogger("client"),
		opener:         opener,
		reg:            reg,
		loginRequests:  loginRequests,
		loginResponses: loginResponses,
	}
	reg.SetResolver(c)
	return c, nil
}

// ---------------------------------------------------------------------------
// Application surface
// ---------------------------------------------------------------------------

// Request queues a connection request for the next tick. Only the first
// request queued per tick is honored.
func (c *Client) Request(req Request) {
	c.pending = append(c.pending, req)
}

// Connect queues a Connect request.
func (c *Client) Connect(addr transport.ConnectionAddr, auth AuthenticationRequest) {
	c.Request(Connect{Addr: addr, Auth: auth})
}

// Disconnect queues a Disconnect request.
func (c *Client) Disconnect(reason string) {
	c.Request(Disconnect{Reason: reason})
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return c.state
}

// Session returns a copy of the session record.
func (c *Client) Session() SessionState {
	return c.session.clone()
}

// Events returns the events emitted by the most recent Tick.
func (c *Client) Events() []Event {
	return c.events
}

// Host implements router.Resolver.
func (c *Client) Host() (transport.PeerID, bool) {
	if c.session.HostID == nil {
		return transport.PeerID{}, false
	}
	return *c.session.HostID, true
}

// Peers implements router.Resolver. A client only ever talks to its host.
func (c *Client) Peers() []transport.PeerID {
	if host, ok := c.Host(); ok {
		return []transport.PeerID{host}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tick
// ---------------------------------------------------------------------------

// Tick runs one full cycle, in this order:
//  1. read the transport: local id, peer updates, closed flag, raw frames
//  2. decode raw frames into every Router's inbound queue
//  3. update the state machine: requests, peer updates, closed flag, login
//     responses
//  4. run app, which may read inbound queues and enqueue outbound messages
//  5. encode and write every outbound queue to the transport
//
// Tick returns an error only for fatal conditions (see IsFatal) or when app
// fails; in the latter case the write phase has still run.
func (c *Client) Tick(ctx context.Context, app func() error) error {
	c.events = nil

	c.read()
	c.reg.Decode()
	if err := c.update(ctx); err != nil {
		return err
	}

	var appErr error
	if app != nil {
		appErr = app()
	}

	c.reg.Write(c.tr)
	return appErr
}

func (c *Client) read() {
	c.updates = nil
	c.closed = false
	if c.tr == nil {
		return
	}

	if id, ok := c.tr.LocalID(); ok && c.session.LocalID == nil {
		c.session.LocalID = &id
		c.log.Debug("assigned id %s", id)
		c.emit(IDAssigned{ID: id})
	}

	updates, err := c.tr.PollPeerUpdates()
	if err != nil {
		c.log.Error("read channel error: %v", err)
	} else {
		c.updates = updates
	}

	c.closed = c.tr.AnyClosed()
	c.reg.Read(c.tr)
}

func (c *Client) update(ctx context.Context) error {
	tr := c.tr
	if err := c.handleRequest(ctx); err != nil {
		return err
	}
	if c.tr == nil || c.tr != tr {
		// Reset or freshly opened: what was read belongs to no live
		// connection.
		return nil
	}

	for _, u := range c.updates {
		if err := c.handlePeerUpdate(u); err != nil {
			return err
		}
	}

	if c.closed && c.state != Disconnected {
		c.disconnect(ReasonConnectionClosed)
	}

	c.handleLoginResponses()
	return nil
}

// handleRequest honors the first queued request and drops the rest.
func (c *Client) handleRequest(ctx context.Context) error {
	if len(c.pending) == 0 {
		return nil
	}
	req := c.pending[0]
	if extra := len(c.pending) - 1; extra > 0 {
		c.log.Debug("dropping %d extra connection requests", extra)
	}
	clear(c.pending)
	c.pending = c.pending[:0]

	switch r := req.(type) {
	case Connect:
		if c.state != Disconnected {
			c.log.Debug("ignoring connect while %s", c.state)
			return nil
		}
		if r.Addr.IsZero() {
			return fmt.Errorf("%w: connect without a signaling address", ErrConfig)
		}

		auth := r.Auth
		c.session.Addr = r.Addr
		c.session.Auth = &auth

		tr, err := c.opener(ctx, r.Addr.URL())
		if err != nil {
			c.log.Error("failed to open transport to %s: %v", r.Addr, err)
			c.disconnect(err.Error())
			return nil
		}
		c.tr = tr
		c.log.Debug("connecting to %s", r.Addr)
		c.setState(Establishing)

	case Disconnect:
		c.disconnect(r.Reason)
	}
	return nil
}

func (c *Client) emit(ev Event) {
	c.events = append(c.events, ev)
}

func (c *Client) setState(next ConnectionState) {
	c.log.Debug("set state: %s (previous %s)", next, c.state)
	c.state = next
}

// disconnect tears the transport down, resets the session record and
// reports why.
func (c *Client) disconnect(reason string) {
	if c.tr != nil {
		if err := c.tr.Close(); err != nil {
			c.log.Debug("closing transport: %v", err)
		}
		c.tr = nil
	}
	c.session = SessionState{}
	c.setState(Disconnected)
	c.emit(DisconnectedFromHost{Reason: reason})
}
