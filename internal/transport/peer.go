package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DefaultICEServers are used when Options.ICEServers is nil. No TURN: the
// session is meant for direct P2P connectivity.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection configured with the given STUN
// servers. An empty list means host candidates only.
func newPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return webrtc.NewPeerConnection(config)
}

// peer is one remote endpoint: a PeerConnection carrying one DataChannel
// per policy channel.
type peer struct {
	id       PeerID
	pc       *webrtc.PeerConnection
	channels [channelCount]*webrtc.DataChannel
	senders  [channelCount]*sender

	ctx    context.Context
	cancel context.CancelFunc

	// Guarded by Socket.mu.
	opened    int
	connected bool

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// newPeer builds the PeerConnection and both DataChannels for id and wires
// their callbacks into s.
func newPeer(s *Socket, id PeerID) (*peer, error) {
	pc, err := newPeerConnection(s.opts.ICEServers)
	if err != nil {
		return nil, fmt.Errorf("create PeerConnection: %w", err)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	p := &peer{id: id, pc: pc, ctx: ctx, cancel: cancel}

	for _, ch := range Channels {
		ch := ch
		dc, err := pc.CreateDataChannel(ch.String(), ch.dataChannelInit())
		if err != nil {
			p.close()
			return nil, fmt.Errorf("create %s DataChannel: %w", ch, err)
		}
		p.channels[ch] = dc

		openSignal := make(chan struct{})
		var openOnce sync.Once
		dc.OnOpen(func() {
			openOnce.Do(func() {
				close(openSignal)
				s.channelOpened(p)
			})
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			s.deliver(ch, id, msg.Data)
		})
		p.senders[ch] = newSender(ctx, ch, dc, openSignal, func() { s.dropPeer(id) })
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		s.signalCandidate(id, string(data))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("peer %s: PeerConnection state %s", id.Short(), state)
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.dropPeer(id)
		}
	})

	return p, nil
}

// createOffer starts negotiation from this side.
func (p *peer) createOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("CreateOffer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("SetLocalDescription: %w", err)
	}
	return offer.SDP, nil
}

// acceptOffer applies a remote offer and returns the answer SDP.
func (p *peer) acceptOffer(sdp string) (string, error) {
	if err := p.setRemote(webrtc.SDPTypeOffer, sdp); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("SetLocalDescription: %w", err)
	}
	return answer.SDP, nil
}

// acceptAnswer applies the remote answer to our offer.
func (p *peer) acceptAnswer(sdp string) error {
	return p.setRemote(webrtc.SDPTypeAnswer, sdp)
}

// setRemote applies the remote description and flushes candidates that
// arrived before it.
func (p *peer) setRemote(typ webrtc.SDPType, sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("SetRemoteDescription: %w", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	var errs []error
	for _, c := range pending {
		errs = append(errs, p.pc.AddICECandidate(c))
	}
	return errors.Join(errs...)
}

// addCandidate applies a remote ICE candidate, or holds it until the remote
// description is known.
func (p *peer) addCandidate(raw string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(raw), &init); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}

	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, init)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.pc.AddICECandidate(init)
}

// send hands data to the channel's sender.
func (p *peer) send(ch Channel, data []byte) error {
	return p.senders[ch].enqueue(data)
}

// close stops the senders and tears down the PeerConnection.
func (p *peer) close() error {
	p.cancel()
	var errs []error
	for _, dc := range p.channels {
		if dc != nil {
			errs = append(errs, dc.Close())
		}
	}
	errs = append(errs, p.pc.Close())
	return errors.Join(errs...)
}
