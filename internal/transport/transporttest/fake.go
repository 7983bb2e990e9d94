// Package transporttest provides a scriptable in-memory Transport. Tests
// play the network: they assign ids, connect peers and deliver frames, then
// inspect what the code under test sent.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/1ureka/silk/internal/transport"
)

// Compile-time interface check.
var _ transport.Transport = (*Fake)(nil)

// Sent records one Send call.
type Sent struct {
	Channel transport.Channel
	Peer    transport.PeerID
	Data    []byte
}

// Fake implements transport.Transport in memory. The zero value is not
// usable; call New.
type Fake struct {
	mu sync.Mutex

	url     string
	opened  int
	closed  bool // Close was called
	broken  bool // AnyClosed reports true
	id      transport.PeerID
	idSet   bool
	updates []transport.PeerUpdate
	inbox   [2][]transport.Frame
	sent    []Sent

	// SendErr, when set, is returned by every Send. The call is still
	// recorded.
	SendErr error
	// ReceiveErr, when set, is returned by Receive instead of frames.
	ReceiveErr error
	// OpenErr, when set, makes Opener fail.
	OpenErr error
}

// New returns an unopened Fake.
func New() *Fake {
	return &Fake{}
}

// Opener returns a transport.Opener that hands out f and records the URL.
func (f *Fake) Opener() transport.Opener {
	return func(_ context.Context, url string) (transport.Transport, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.OpenErr != nil {
			return nil, f.OpenErr
		}
		f.url = url
		f.opened++
		f.closed = false
		f.broken = false
		return f, nil
	}
}

// ---------------------------------------------------------------------------
// Scripting
// ---------------------------------------------------------------------------

// AssignID makes LocalID report id.
func (f *Fake) AssignID(id transport.PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id, f.idSet = id, true
}

// Connect queues a peer-connected notification.
func (f *Fake) Connect(peer transport.PeerID) {
	f.push(transport.PeerUpdate{Peer: peer, State: transport.PeerConnected})
}

// Disconnect queues a peer-disconnected notification.
func (f *Fake) Disconnect(peer transport.PeerID) {
	f.push(transport.PeerUpdate{Peer: peer, State: transport.PeerDisconnected})
}

func (f *Fake) push(u transport.PeerUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

// Deliver queues a raw frame from peer on ch.
func (f *Fake) Deliver(ch transport.Channel, peer transport.PeerID, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox[ch] = append(f.inbox[ch], transport.Frame{Peer: peer, Data: data})
}

// Break makes AnyClosed report true.
func (f *Fake) Break() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broken = true
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// URL returns the URL of the most recent Opener call.
func (f *Fake) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// Opened returns how many times Opener handed out f.
func (f *Fake) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// Closed reports whether Close was called since the last open.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// TakeSent returns and forgets every recorded Send on ch.
func (f *Fake) TakeSent(ch transport.Channel) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out, keep []Sent
	for _, s := range f.sent {
		if s.Channel == ch {
			out = append(out, s)
		} else {
			keep = append(keep, s)
		}
	}
	f.sent = keep
	return out
}

// ---------------------------------------------------------------------------
// transport.Transport
// ---------------------------------------------------------------------------

func (f *Fake) LocalID() (transport.PeerID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.idSet
}

func (f *Fake) PollPeerUpdates() ([]transport.PeerUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	updates := f.updates
	f.updates = nil
	return updates, nil
}

func (f *Fake) Send(ch transport.Channel, peer transport.PeerID, data []byte) error {
	if !ch.Valid() {
		return transport.ErrInvalidChannel
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{Channel: ch, Peer: peer, Data: data})
	return f.SendErr
}

func (f *Fake) Receive(ch transport.Channel) ([]transport.Frame, error) {
	if !ch.Valid() {
		return nil, transport.ErrInvalidChannel
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReceiveErr != nil {
		return nil, f.ReceiveErr
	}
	frames := f.inbox[ch]
	f.inbox[ch] = nil
	return frames, nil
}

func (f *Fake) AnyClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.broken
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("transporttest: already closed")
	}
	f.closed = true
	return nil
}
