package signaling

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startServer runs a Server behind httptest and returns the ws:// URL of
// a room on it.
func startServer(t *testing.T) string {
	t.Helper()
	srv := NewServer()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/room"
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// next reads one message or fails the test after a timeout.
func next(t *testing.T, c *Client) Message {
	t.Helper()
	type result struct {
		msg Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := c.Next()
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signaling message")
		return Message{}
	}
}

// joinPair connects a host and one client and consumes the setup messages.
func joinPair(t *testing.T) (host, client *Client, hostID, clientID string) {
	url := startServer(t)

	host = dial(t, url)
	msg := next(t, host)
	require.Equal(t, MsgTypeIDAssigned, msg.Type)
	hostID = msg.Peer

	client = dial(t, url)
	msg = next(t, client)
	require.Equal(t, MsgTypeIDAssigned, msg.Type)
	clientID = msg.Peer
	require.NotEqual(t, hostID, clientID)

	msg = next(t, host)
	require.Equal(t, MsgTypeNewPeer, msg.Type)
	require.Equal(t, clientID, msg.Peer)
	return host, client, hostID, clientID
}

func TestServerIntroducesClientToHost(t *testing.T) {
	joinPair(t)
}

func TestServerRelaysWithSender(t *testing.T) {
	host, client, hostID, clientID := joinPair(t)

	require.NoError(t, host.Send(Message{Type: MsgTypeOffer, To: clientID, SDP: "v=0"}))
	msg := next(t, client)
	require.Equal(t, MsgTypeOffer, msg.Type)
	require.Equal(t, hostID, msg.From)
	require.Equal(t, "v=0", msg.SDP)

	require.NoError(t, client.Send(Message{Type: MsgTypeCandidate, To: hostID, Candidate: "{}"}))
	msg = next(t, host)
	require.Equal(t, MsgTypeCandidate, msg.Type)
	require.Equal(t, clientID, msg.From)
}

func TestServerClientLeaveNotifiesHost(t *testing.T) {
	host, client, _, clientID := joinPair(t)

	require.NoError(t, client.Close())
	msg := next(t, host)
	require.Equal(t, MsgTypePeerLeft, msg.Type)
	require.Equal(t, clientID, msg.Peer)
}

func TestServerHostLeaveNotifiesClients(t *testing.T) {
	host, client, hostID, _ := joinPair(t)

	require.NoError(t, host.Close())
	msg := next(t, client)
	require.Equal(t, MsgTypePeerLeft, msg.Type)
	require.Equal(t, hostID, msg.Peer)
}

func TestServerClosesRoomWhenHostLeaves(t *testing.T) {
	url := startServer(t)

	host := dial(t, url)
	next(t, host)
	client := dial(t, url)
	next(t, client)
	next(t, host)

	require.NoError(t, host.Close())
	require.Equal(t, MsgTypePeerLeft, next(t, client).Type)
	_, err := client.Next()
	require.Error(t, err)

	// The room starts over: the next peer hosts and later peers meet it.
	newHost := dial(t, url)
	newHostID := next(t, newHost).Peer
	rejoined := dial(t, url)
	rejoinedID := next(t, rejoined).Peer

	msg := next(t, newHost)
	require.Equal(t, MsgTypeNewPeer, msg.Type)
	require.Equal(t, rejoinedID, msg.Peer)
	require.NotEqual(t, newHostID, rejoinedID)
}

func TestMessageRelayed(t *testing.T) {
	testCases := []struct {
		typ  MessageType
		want bool
	}{
		{MsgTypeOffer, true},
		{MsgTypeAnswer, true},
		{MsgTypeCandidate, true},
		{MsgTypeIDAssigned, false},
		{MsgTypeNewPeer, false},
		{MsgTypePeerLeft, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.typ), func(t *testing.T) {
			require.Equal(t, tc.want, Message{Type: tc.typ}.relayed())
		})
	}
}
