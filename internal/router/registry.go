// Package router decouples application message types from the two fixed
// transport channels. Each registered payload type gets its own Router with
// one inbound queue and a reliable/unreliable pair of outbound queues; the
// Registry moves frames between those queues and the transport once per
// tick.
package router

import (
	"errors"
	"fmt"

	"github.com/1ureka/silk/internal/protocol"
	"github.com/1ureka/silk/internal/transport"
	"github.com/1ureka/silk/internal/util"
)

var (
	// ErrDuplicate is returned by Register for a type that already has a
	// Router. It is a setup error; callers should not continue.
	ErrDuplicate = errors.New("message type already registered")

	// ErrNoHost is returned by the *ToHost methods while no host is known.
	ErrNoHost = errors.New("no host to send to")
)

var log = util.NewLogger("router")

// Resolver names destinations at enqueue time. The client session resolves
// Host; the host session resolves Peers.
type Resolver interface {
	// Host returns the peer the local side authenticated against.
	Host() (transport.PeerID, bool)
	// Peers returns every connected peer.
	Peers() []transport.PeerID
}

// Stats counts what the registry did since it was created.
type Stats struct {
	Received     int // frames decoded into a registered type
	Dropped      int // frames that were malformed or carried an unknown tag
	Sent         int // frames handed to the transport
	SendFailures int // frames the transport refused or that failed to encode
}

// route is the type-erased view of a Router the registry drives.
type route interface {
	flush()
	decode(from transport.PeerID, tag string, body protocol.RawMessage) error
	drain(tr transport.Transport, stats *Stats)
}

// Registry owns every Router and the raw frames read in the current tick.
// It is not safe for concurrent use; the tick loop owns it.
type Registry struct {
	resolver Resolver
	routes   map[string]route
	order    []string
	frames   []transport.Frame
	stats    Stats
}

// NewRegistry creates an empty registry with no resolver.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]route)}
}

// SetResolver installs the destination resolver used by every Router.
func (r *Registry) SetResolver(res Resolver) {
	r.resolver = res
}

// Register binds payload type T to a new Router.
func Register[T protocol.Payload](reg *Registry) (*Router[T], error) {
	tag := protocol.TagOf[T]()
	if _, ok := reg.routes[tag]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, tag)
	}

	rt := &Router[T]{reg: reg}
	reg.routes[tag] = rt
	reg.order = append(reg.order, tag)
	log.Debug("registered %s", tag)
	return rt, nil
}

// Tags lists the registered type tags in registration order.
func (r *Registry) Tags() []string {
	return append([]string(nil), r.order...)
}

// Stats returns the registry's counters.
func (r *Registry) Stats() Stats {
	return r.stats
}

// Read pulls every pending frame from the transport, reliable channel
// first. A channel that fails to read contributes nothing this tick.
func (r *Registry) Read(tr transport.Transport) {
	r.frames = r.frames[:0]
	for _, ch := range []transport.Channel{transport.Reliable, transport.Unreliable} {
		frames, err := tr.Receive(ch)
		if err != nil {
			log.Error("read %s channel: %v", ch, err)
			continue
		}
		r.frames = append(r.frames, frames...)
	}
}

// Decode clears every inbound queue, then decodes the frames from the last
// Read into them in delivery order. Frames that are malformed or whose tag
// has no Router are counted and dropped.
func (r *Registry) Decode() {
	for _, tag := range r.order {
		r.routes[tag].flush()
	}

	for _, f := range r.frames {
		tag, body, err := protocol.Open(f.Data)
		if err != nil {
			r.drop(f.Peer, err)
			continue
		}
		rt, ok := r.routes[tag]
		if !ok {
			r.drop(f.Peer, fmt.Errorf("unregistered tag %q", tag))
			continue
		}
		if err := rt.decode(f.Peer, tag, body); err != nil {
			r.drop(f.Peer, err)
			continue
		}
		r.stats.Received++
	}

	clear(r.frames)
	r.frames = r.frames[:0]
}

func (r *Registry) drop(from transport.PeerID, err error) {
	r.stats.Dropped++
	util.Stats.AddDrop()
	log.Debug("dropped frame from %s: %v", from.Short(), err)
}

// Write drains every Router's outbound queues into the transport, in
// registration order. Queues are cleared whether or not the sends succeed.
// A nil transport fails every send.
func (r *Registry) Write(tr transport.Transport) {
	if tr == nil {
		tr = closedTransport{}
	}
	for _, tag := range r.order {
		r.routes[tag].drain(tr, &r.stats)
	}
}

// closedTransport stands in while no transport is open.
type closedTransport struct{}

func (closedTransport) LocalID() (transport.PeerID, bool) { return transport.PeerID{}, false }
func (closedTransport) PollPeerUpdates() ([]transport.PeerUpdate, error) {
	return nil, transport.ErrClosed
}
func (closedTransport) Send(transport.Channel, transport.PeerID, []byte) error {
	return transport.ErrClosed
}
func (closedTransport) Receive(transport.Channel) ([]transport.Frame, error) {
	return nil, transport.ErrClosed
}
func (closedTransport) AnyClosed() bool { return true }
func (closedTransport) Close() error    { return nil }
