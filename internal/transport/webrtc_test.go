package transport

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/silk/internal/signaling"
)

func TestOpenRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "http://127.0.0.1:1/", "ws://"} {
		_, err := Open(context.Background(), raw, Options{})
		require.Error(t, err, raw)
	}
}

func TestSocketReportsClosedWhenSignalingUnreachable(t *testing.T) {
	// Port 1 on loopback refuses connections.
	s, err := Open(context.Background(), "ws://127.0.0.1:1/", Options{ICEServers: []string{}})
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, s.AnyClosed, 5*time.Second, 10*time.Millisecond)

	_, ok := s.LocalID()
	require.False(t, ok)

	_, err = s.PollPeerUpdates()
	require.ErrorIs(t, err, ErrClosed)
}

func TestSocketSendUnknownPeer(t *testing.T) {
	s, err := Open(context.Background(), "ws://127.0.0.1:1/", Options{ICEServers: []string{}})
	require.NoError(t, err)
	defer s.Close()

	require.ErrorIs(t, s.Send(Reliable, NewPeerID(), []byte("x")), ErrUnknownPeer)
	require.ErrorIs(t, s.Send(Channel(7), NewPeerID(), []byte("x")), ErrInvalidChannel)

	_, err = s.Receive(Channel(7))
	require.ErrorIs(t, err, ErrInvalidChannel)
}

// waitUpdate polls s until a PeerUpdate with the wanted state shows up.
func waitUpdate(t *testing.T, s *Socket, want PeerState) PeerID {
	t.Helper()
	var got PeerID
	require.Eventually(t, func() bool {
		updates, _ := s.PollPeerUpdates()
		for _, u := range updates {
			if u.State == want {
				got = u.Peer
				return true
			}
		}
		return false
	}, 20*time.Second, 20*time.Millisecond)
	return got
}

// waitFrame polls ch on s until a frame carrying data arrives.
func waitFrame(t *testing.T, s *Socket, ch Channel, data []byte) Frame {
	t.Helper()
	var got Frame
	require.Eventually(t, func() bool {
		frames, _ := s.Receive(ch)
		for _, f := range frames {
			if bytes.Equal(f.Data, data) {
				got = f
				return true
			}
		}
		return false
	}, 10*time.Second, 10*time.Millisecond)
	return got
}

// TestSocketPairExchangesFrames connects two Sockets through an in-process
// signaling server and checks traffic on both channels. It needs a
// non-loopback interface for ICE host candidates.
func TestSocketPairExchangesFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("needs real network interfaces")
	}

	srv := signaling.NewServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := Options{ICEServers: []string{}}

	host, err := Open(ctx, url, opts)
	require.NoError(t, err)
	defer host.Close()

	var hostID PeerID
	require.Eventually(t, func() bool {
		var ok bool
		hostID, ok = host.LocalID()
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	client, err := Open(ctx, url, opts)
	require.NoError(t, err)
	defer client.Close()

	clientSeen := waitUpdate(t, host, PeerConnected)
	hostSeen := waitUpdate(t, client, PeerConnected)
	require.Equal(t, hostID, hostSeen)

	clientID, ok := client.LocalID()
	require.True(t, ok)
	require.Equal(t, clientID, clientSeen)

	require.NoError(t, client.Send(Reliable, hostID, []byte("ping")))
	f := waitFrame(t, host, Reliable, []byte("ping"))
	require.Equal(t, clientID, f.Peer)

	require.NoError(t, host.Send(Unreliable, clientID, []byte("pong")))
	f = waitFrame(t, client, Unreliable, []byte("pong"))
	require.Equal(t, hostID, f.Peer)

	require.NoError(t, host.Close())
	require.Equal(t, hostID, waitUpdate(t, client, PeerDisconnected))
}
