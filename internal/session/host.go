package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/1ureka/silk/internal/protocol"
	"github.com/1ureka/silk/internal/router"
	"github.com/1ureka/silk/internal/transport"
	"github.com/1ureka/silk/internal/util"
)

// Compile-time interface check.
var _ router.Resolver = (*Host)(nil)

// member is a peer whose channels are open. username is empty until its
// login has been accepted.
type member struct {
	username string
	answered bool
}

// heldLoginTicks is how many ticks a login from a peer that has not joined
// yet is kept. A peer's reliable channel can deliver before the transport
// reports the peer connected.
const heldLoginTicks = 150

// heldLogin is a login waiting for its sender to join.
type heldLogin struct {
	req protocol.LoginRequest
	age int
}

// Host is the accepting side of a session. It tracks connected peers and
// answers their login requests through an Authenticator.
type Host struct {
	log  util.Logger
	reg  *router.Registry
	auth Authenticator

	loginRequests  *router.Router[protocol.LoginRequest]
	loginResponses *router.Router[protocol.LoginResponse]

	tr      transport.Transport
	localID *transport.PeerID
	members map[transport.PeerID]*member
	order   []transport.PeerID
	held    map[transport.PeerID]*heldLogin
	events  []Event
}

// NewHost registers the login messages on reg and installs the host as the
// registry's resolver, so ReliableToAll on any Router reaches every
// authenticated peer.
func NewHost(reg *router.Registry, auth Authenticator) (*Host, error) {
	if auth == nil {
		return nil, fmt.Errorf("%w: host needs an authenticator", ErrConfig)
	}
	loginRequests, err := router.Register[protocol.LoginRequest](reg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	loginResponses, err := router.Register[protocol.LoginResponse](reg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	h := &Host{
		log:            util.NewLogger("host"),
		reg:            reg,
		auth:           auth,
		loginRequests:  loginRequests,
		loginResponses: loginResponses,
		members:        make(map[transport.PeerID]*member),
		held:           make(map[transport.PeerID]*heldLogin),
	}
	reg.SetResolver(h)
	return h, nil
}

// Open starts accepting peers through the signaling server at addr.
func (h *Host) Open(ctx context.Context, opener transport.Opener, addr transport.ConnectionAddr) error {
	if h.tr != nil {
		return fmt.Errorf("%w: host already open", ErrConfig)
	}
	if addr.IsZero() {
		return fmt.Errorf("%w: host without a signaling address", ErrConfig)
	}
	tr, err := opener(ctx, addr.URL())
	if err != nil {
		return fmt.Errorf("open transport to %s: %w", addr, err)
	}
	h.tr = tr
	h.log.Info("waiting for peers via %s", addr)
	return nil
}

// Close shuts the transport down and forgets every peer.
func (h *Host) Close() error {
	if h.tr == nil {
		return nil
	}
	err := h.tr.Close()
	h.tr = nil
	h.localID = nil
	clear(h.members)
	clear(h.held)
	h.order = nil
	return err
}

// Host implements router.Resolver. The host has no host of its own.
func (h *Host) Host() (transport.PeerID, bool) {
	return transport.PeerID{}, false
}

// Peers implements router.Resolver and returns the authenticated peers in
// join order.
func (h *Host) Peers() []transport.PeerID {
	var out []transport.PeerID
	for _, id := range h.order {
		if h.members[id].username != "" {
			out = append(out, id)
		}
	}
	return out
}

// Username returns the name peer logged in with.
func (h *Host) Username(peer transport.PeerID) (string, bool) {
	m, ok := h.members[peer]
	if !ok || m.username == "" {
		return "", false
	}
	return m.username, true
}

// LocalID returns the id the signaling server gave us, once known.
func (h *Host) LocalID() (transport.PeerID, bool) {
	if h.localID == nil {
		return transport.PeerID{}, false
	}
	return *h.localID, true
}

// Events returns the events emitted by the most recent Tick.
func (h *Host) Events() []Event {
	return h.events
}

// Tick runs one cycle in the same phase order as Client.Tick. It returns
// ErrTransportClosed once the transport is gone; the host cannot recover
// from that and should be reopened.
func (h *Host) Tick(app func() error) error {
	h.events = nil
	if h.tr == nil {
		return ErrTransportClosed
	}

	if id, ok := h.tr.LocalID(); ok && h.localID == nil {
		h.localID = &id
		h.log.Debug("assigned id %s", id)
		h.events = append(h.events, IDAssigned{ID: id})
	}
	updates, err := h.tr.PollPeerUpdates()
	if err != nil {
		h.log.Error("read channel error: %v", err)
	}
	if h.tr.AnyClosed() {
		return ErrTransportClosed
	}
	h.reg.Read(h.tr)

	h.reg.Decode()

	for _, u := range updates {
		h.handlePeerUpdate(u)
	}
	h.answerLogins()

	var appErr error
	if app != nil {
		appErr = app()
	}

	h.reg.Write(h.tr)
	return appErr
}

func (h *Host) handlePeerUpdate(u transport.PeerUpdate) {
	switch u.State {
	case transport.PeerConnected:
		if _, ok := h.members[u.Peer]; ok {
			return
		}
		h.members[u.Peer] = &member{}
		h.order = append(h.order, u.Peer)
		h.log.Info("peer %s joined", u.Peer.Short())
		h.events = append(h.events, PeerJoined{Peer: u.Peer})

	case transport.PeerDisconnected:
		delete(h.held, u.Peer)
		if _, ok := h.members[u.Peer]; !ok {
			return
		}
		delete(h.members, u.Peer)
		h.order = slices.DeleteFunc(h.order, func(id transport.PeerID) bool { return id == u.Peer })
		h.log.Info("peer %s left", u.Peer.Short())
		h.events = append(h.events, PeerLeft{Peer: u.Peer})
	}
}

// answerLogins replies to the first login request of every joined peer.
// Later requests from the same peer are ignored. A login from a peer that
// has not joined yet is held until it joins or heldLoginTicks pass.
func (h *Host) answerLogins() {
	for peer, held := range h.held {
		if _, ok := h.members[peer]; ok {
			delete(h.held, peer)
			h.answer(peer, held.req)
		}
	}

	for _, in := range h.loginRequests.Incoming() {
		if _, ok := h.members[in.From]; !ok {
			if _, ok := h.held[in.From]; !ok {
				h.log.Debug("holding login from %s until it joins", in.From.Short())
				h.held[in.From] = &heldLogin{req: in.Message}
			}
			continue
		}
		h.answer(in.From, in.Message)
	}

	for peer, held := range h.held {
		held.age++
		if held.age > heldLoginTicks {
			h.log.Debug("dropping login from %s: never joined", peer.Short())
			delete(h.held, peer)
		}
	}
}

// answer authenticates a joined peer's first login and queues the reply.
func (h *Host) answer(peer transport.PeerID, req protocol.LoginRequest) {
	m := h.members[peer]
	if m.answered {
		h.log.Debug("ignoring repeated login from %s", peer.Short())
		return
	}
	m.answered = true

	resp := h.auth.Authenticate(peer, req)
	if err := resp.Validate(); err != nil {
		h.log.Error("authenticator answered %s with an invalid response: %v", peer.Short(), err)
		resp = protocol.Denied("")
	}

	if resp.Accepted != nil {
		m.username = resp.Accepted.Username
		h.log.Success("peer %s logged in as %s", peer.Short(), m.username)
	} else {
		h.log.Warning("peer %s denied: %q", peer.Short(), resp.Denied.Reason)
	}
	h.loginResponses.SendReliable(peer, resp)
}
