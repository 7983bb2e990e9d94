package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/1ureka/silk/internal/signaling"
	"github.com/1ureka/silk/internal/util"
)

// Compile-time interface check.
var _ Transport = (*Socket)(nil)

var log = util.NewLogger("transport")

// Options configures a Socket.
type Options struct {
	// ICEServers are STUN URLs. Nil selects DefaultICEServers; an empty
	// non-nil slice disables STUN (loopback / LAN only).
	ICEServers []string
}

// Socket implements Transport over WebRTC. It joins a signaling room,
// connects to every peer the signaling server introduces, and buffers
// everything the peers send until the session layer drains it.
//
// All network I/O runs on the Socket's own goroutines. The Transport
// methods only swap buffers under a mutex, so they never block a tick.
type Socket struct {
	url  string
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	once   sync.Once

	mu      sync.Mutex
	sig     *signaling.Client
	id      PeerID
	idSet   bool
	peers   map[PeerID]*peer
	updates []PeerUpdate
	inbox   [channelCount][]Frame
}

// Open starts joining the signaling room at rawURL and returns immediately.
// Connection progress is observed through LocalID and PollPeerUpdates.
func Open(ctx context.Context, rawURL string, opts Options) (*Socket, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("invalid signaling URL: %s", rawURL)
	}
	if opts.ICEServers == nil {
		opts.ICEServers = DefaultICEServers
	}

	sCtx, sCancel := context.WithCancel(ctx)
	s := &Socket{
		url:    rawURL,
		opts:   opts,
		ctx:    sCtx,
		cancel: sCancel,
		peers:  make(map[PeerID]*peer),
	}

	go s.run()

	return s, nil
}

// WebRTCOpener adapts Open to the Opener signature.
func WebRTCOpener(opts Options) Opener {
	return func(ctx context.Context, url string) (Transport, error) {
		return Open(ctx, url, opts)
	}
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (s *Socket) LocalID() (PeerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.idSet
}

func (s *Socket) PollPeerUpdates() ([]PeerUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updates := s.updates
	s.updates = nil
	if len(updates) == 0 && s.closed.Load() {
		return nil, ErrClosed
	}
	return updates, nil
}

func (s *Socket) Send(ch Channel, id PeerID, data []byte) error {
	if !ch.Valid() {
		return ErrInvalidChannel
	}

	s.mu.Lock()
	p, ok := s.peers[id]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}

	if err := p.send(ch, data); err != nil {
		return err
	}
	util.Stats.AddSent(len(data))
	return nil
}

func (s *Socket) Receive(ch Channel) ([]Frame, error) {
	if !ch.Valid() {
		return nil, ErrInvalidChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.inbox[ch]
	s.inbox[ch] = nil
	return frames, nil
}

func (s *Socket) AnyClosed() bool {
	return s.closed.Load()
}

// Close cancels the signaling loop and shuts down every PeerConnection.
func (s *Socket) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()

		s.mu.Lock()
		peers := s.peers
		s.peers = make(map[PeerID]*peer)
		s.mu.Unlock()

		var errs []error
		for _, p := range peers {
			errs = append(errs, p.close())
		}
		err = errors.Join(errs...)
	})
	return err
}

// ---------------------------------------------------------------------------
// Signaling loop
// ---------------------------------------------------------------------------

// run joins the signaling room and handles its messages until the
// WebSocket fails or the Socket is closed. Either way the Socket reports
// AnyClosed afterwards.
func (s *Socket) run() {
	defer s.closed.Store(true)

	client, err := signaling.Dial(s.ctx, s.url)
	if err != nil {
		log.Error("%v", err)
		return
	}

	s.mu.Lock()
	s.sig = client
	s.mu.Unlock()

	go func() {
		<-s.ctx.Done()
		client.Close()
	}()

	for {
		msg, err := client.Next()
		if err != nil {
			if s.ctx.Err() == nil {
				log.Warning("signaling connection lost: %v", err)
			}
			s.cancel()
			return
		}
		if err := s.handle(msg); err != nil {
			log.Warning("signaling %q: %v", msg.Type, err)
		}
	}
}

func (s *Socket) handle(msg signaling.Message) error {
	switch msg.Type {
	case signaling.MsgTypeIDAssigned:
		id, err := ParsePeerID(msg.Peer)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if !s.idSet {
			s.id, s.idSet = id, true
		}
		s.mu.Unlock()
		log.Debug("assigned id %s", id)

	case signaling.MsgTypeNewPeer:
		// The side that is told about a new peer makes the offer.
		id, err := ParsePeerID(msg.Peer)
		if err != nil {
			return err
		}
		p, err := s.addPeer(id)
		if err != nil {
			return err
		}
		sdp, err := p.createOffer()
		if err != nil {
			return err
		}
		return s.signal(signaling.Message{Type: signaling.MsgTypeOffer, To: msg.Peer, SDP: sdp})

	case signaling.MsgTypeOffer:
		id, err := ParsePeerID(msg.From)
		if err != nil {
			return err
		}
		p, err := s.addPeer(id)
		if err != nil {
			return err
		}
		sdp, err := p.acceptOffer(msg.SDP)
		if err != nil {
			return err
		}
		return s.signal(signaling.Message{Type: signaling.MsgTypeAnswer, To: msg.From, SDP: sdp})

	case signaling.MsgTypeAnswer:
		p, err := s.lookup(msg.From)
		if err != nil {
			return err
		}
		return p.acceptAnswer(msg.SDP)

	case signaling.MsgTypeCandidate:
		p, err := s.lookup(msg.From)
		if err != nil {
			return err
		}
		return p.addCandidate(msg.Candidate)

	case signaling.MsgTypePeerLeft:
		id, err := ParsePeerID(msg.Peer)
		if err != nil {
			return err
		}
		s.dropPeer(id)
	}
	return nil
}

// signal sends msg to the signaling server, if connected.
func (s *Socket) signal(msg signaling.Message) error {
	s.mu.Lock()
	client := s.sig
	s.mu.Unlock()
	if client == nil {
		return ErrClosed
	}
	return client.Send(msg)
}

// signalCandidate trickles a local ICE candidate. Best-effort: a lost
// candidate only narrows the candidate pairs ICE can try.
func (s *Socket) signalCandidate(to PeerID, candidate string) {
	if err := s.signal(signaling.Message{
		Type:      signaling.MsgTypeCandidate,
		To:        to.String(),
		Candidate: candidate,
	}); err != nil {
		log.Debug("candidate for %s not sent: %v", to.Short(), err)
	}
}

// ---------------------------------------------------------------------------
// Peer table
// ---------------------------------------------------------------------------

// addPeer returns the peer for id, creating it on first sight.
func (s *Socket) addPeer(id PeerID) (*peer, error) {
	s.mu.Lock()
	if p, ok := s.peers[id]; ok {
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	p, err := newPeer(s, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.peers[id]; ok {
		p.close()
		return existing, nil
	}
	s.peers[id] = p
	return p, nil
}

func (s *Socket) lookup(raw string) (*peer, error) {
	id, err := ParsePeerID(raw)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, raw)
	}
	return p, nil
}

// channelOpened counts open DataChannels; the peer is reported connected
// once every channel is open.
func (s *Socket) channelOpened(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peers[p.id] != p {
		return
	}
	p.opened++
	if p.opened == channelCount && !p.connected {
		p.connected = true
		s.updates = append(s.updates, PeerUpdate{Peer: p.id, State: PeerConnected})
		log.Debug("peer %s connected", p.id.Short())
	}
}

// dropPeer forgets id and reports it disconnected if it had connected.
func (s *Socket) dropPeer(id PeerID) {
	s.mu.Lock()
	p, ok := s.peers[id]
	if ok {
		delete(s.peers, id)
		if p.connected {
			s.updates = append(s.updates, PeerUpdate{Peer: id, State: PeerDisconnected})
		}
	}
	s.mu.Unlock()

	if ok {
		log.Debug("peer %s disconnected", id.Short())
		if err := p.close(); err != nil {
			log.Debug("closing peer %s: %v", id.Short(), err)
		}
	}
}

// deliver buffers an inbound frame until the next Receive.
func (s *Socket) deliver(ch Channel, id PeerID, data []byte) {
	util.Stats.AddRecv(len(data))
	s.mu.Lock()
	s.inbox[ch] = append(s.inbox[ch], Frame{Peer: id, Data: data})
	s.mu.Unlock()
}
