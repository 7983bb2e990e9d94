package router

import (
	"github.com/1ureka/silk/internal/protocol"
	"github.com/1ureka/silk/internal/transport"
	"github.com/1ureka/silk/internal/util"
)

// Incoming is a decoded message tagged with its sender.
type Incoming[T protocol.Payload] struct {
	From    transport.PeerID
	Message T
}

type outgoing[T protocol.Payload] struct {
	to  transport.PeerID
	msg T
}

// Router holds the queues for one payload type.
type Router[T protocol.Payload] struct {
	reg        *Registry
	incoming   []Incoming[T]
	reliable   []outgoing[T]
	unreliable []outgoing[T]
}

// Incoming returns the messages decoded this tick. The slice is reused by
// the next Decode; copy anything that must outlive the tick.
func (r *Router[T]) Incoming() []Incoming[T] {
	return r.incoming
}

// SendReliable queues msg for peer on the reliable channel.
func (r *Router[T]) SendReliable(peer transport.PeerID, msg T) {
	r.reliable = append(r.reliable, outgoing[T]{to: peer, msg: msg})
}

// SendUnreliable queues msg for peer on the unreliable channel.
func (r *Router[T]) SendUnreliable(peer transport.PeerID, msg T) {
	r.unreliable = append(r.unreliable, outgoing[T]{to: peer, msg: msg})
}

// ReliableToHost queues msg for the current host on the reliable channel.
func (r *Router[T]) ReliableToHost(msg T) error {
	host, err := r.host()
	if err != nil {
		return err
	}
	r.SendReliable(host, msg)
	return nil
}

// UnreliableToHost queues msg for the current host on the unreliable
// channel.
func (r *Router[T]) UnreliableToHost(msg T) error {
	host, err := r.host()
	if err != nil {
		return err
	}
	r.SendUnreliable(host, msg)
	return nil
}

// ReliableToAll queues msg for every connected peer and returns how many
// peers that was.
func (r *Router[T]) ReliableToAll(msg T) int {
	peers := r.peers()
	for _, p := range peers {
		r.SendReliable(p, msg)
	}
	return len(peers)
}

// UnreliableToAll is ReliableToAll on the unreliable channel.
func (r *Router[T]) UnreliableToAll(msg T) int {
	peers := r.peers()
	for _, p := range peers {
		r.SendUnreliable(p, msg)
	}
	return len(peers)
}

// Pending reports how many sends are queued on each channel.
func (r *Router[T]) Pending() (reliable, unreliable int) {
	return len(r.reliable), len(r.unreliable)
}

func (r *Router[T]) host() (transport.PeerID, error) {
	if r.reg.resolver == nil {
		return transport.PeerID{}, ErrNoHost
	}
	host, ok := r.reg.resolver.Host()
	if !ok {
		return transport.PeerID{}, ErrNoHost
	}
	return host, nil
}

func (r *Router[T]) peers() []transport.PeerID {
	if r.reg.resolver == nil {
		return nil
	}
	return r.reg.resolver.Peers()
}

// ---------------------------------------------------------------------------
// route
// ---------------------------------------------------------------------------

func (r *Router[T]) flush() {
	if len(r.incoming) > 0 {
		log.Debug("flushing %d %s messages", len(r.incoming), protocol.TagOf[T]())
	}
	clear(r.incoming)
	r.incoming = r.incoming[:0]
}

func (r *Router[T]) decode(from transport.PeerID, tag string, body protocol.RawMessage) error {
	msg, err := protocol.Decode[T](tag, body)
	if err != nil {
		return err
	}
	r.incoming = append(r.incoming, Incoming[T]{From: from, Message: msg})
	return nil
}

func (r *Router[T]) drain(tr transport.Transport, stats *Stats) {
	send(tr, transport.Reliable, r.reliable, stats)
	send(tr, transport.Unreliable, r.unreliable, stats)

	clear(r.reliable)
	r.reliable = r.reliable[:0]
	clear(r.unreliable)
	r.unreliable = r.unreliable[:0]
}

// send is fire-and-forget: failures are counted and logged, never retried.
func send[T protocol.Payload](tr transport.Transport, ch transport.Channel, queue []outgoing[T], stats *Stats) {
	for _, out := range queue {
		data, err := protocol.Marshal(out.msg)
		if err != nil {
			stats.SendFailures++
			util.Stats.AddSendFailure()
			log.Error("encode %s: %v", out.msg.Tag(), err)
			continue
		}
		if err := tr.Send(ch, out.to, data); err != nil {
			stats.SendFailures++
			util.Stats.AddSendFailure()
			log.Debug("send %s to %s on %s channel: %v", out.msg.Tag(), out.to.Short(), ch, err)
			continue
		}
		stats.Sent++
	}
}
