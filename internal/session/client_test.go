package session

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/silk/internal/protocol"
	"github.com/1ureka/silk/internal/router"
	"github.com/1ureka/silk/internal/transport"
	"github.com/1ureka/silk/internal/transport/transporttest"
)

var testAddr = transport.RemoteAddr(netip.MustParseAddr("127.0.0.1"), 3536)

func newTestClient(t *testing.T) (*Client, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.New()
	c, err := NewClient(router.NewRegistry(), fake.Opener())
	require.NoError(t, err)
	return c, fake
}

func tick(t *testing.T, c *Client) {
	t.Helper()
	require.NoError(t, c.Tick(context.Background(), nil))
}

func respond(t *testing.T, fake *transporttest.Fake, from transport.PeerID, resp protocol.LoginResponse) {
	t.Helper()
	data, err := protocol.Marshal(resp)
	require.NoError(t, err)
	fake.Deliver(transport.Reliable, from, data)
}

func sentLogins(t *testing.T, fake *transporttest.Fake) []transporttest.Sent {
	t.Helper()
	var out []transporttest.Sent
	for _, s := range fake.TakeSent(transport.Reliable) {
		tag, _, err := protocol.Open(s.Data)
		require.NoError(t, err)
		if tag == protocol.TagOf[protocol.LoginRequest]() {
			out = append(out, s)
		}
	}
	return out
}

// establish drives a fresh client to Establishing with P1 reachable and
// returns P1.
func establish(t *testing.T, c *Client, fake *transporttest.Fake) transport.PeerID {
	t.Helper()
	c.Connect(testAddr, GuestAuth("alice"))
	tick(t, c)
	require.Equal(t, Establishing, c.State())

	host := transport.NewPeerID()
	fake.Connect(host)
	tick(t, c)
	return host
}

func TestConnectOpensTransport(t *testing.T) {
	c, fake := newTestClient(t)

	c.Connect(testAddr, GuestAuth("alice"))
	tick(t, c)

	require.Equal(t, Establishing, c.State())
	require.Equal(t, 1, fake.Opened())
	require.Equal(t, "ws://127.0.0.1:3536/", fake.URL())

	s := c.Session()
	require.Equal(t, testAddr, s.Addr)
	require.NotNil(t, s.Auth)
	require.Nil(t, s.HostID)
}

func TestConnectWithoutAddressIsFatal(t *testing.T) {
	c, fake := newTestClient(t)

	c.Connect(transport.ConnectionAddr{}, GuestAuth("alice"))
	err := c.Tick(context.Background(), nil)

	require.ErrorIs(t, err, ErrConfig)
	require.True(t, IsFatal(err))
	require.Equal(t, 0, fake.Opened())
}

func TestConnectOpenFailureDisconnects(t *testing.T) {
	c, fake := newTestClient(t)
	fake.OpenErr = errors.New("dial refused")

	c.Connect(testAddr, GuestAuth("alice"))
	tick(t, c)

	require.Equal(t, Disconnected, c.State())
	require.Equal(t, []Event{DisconnectedFromHost{Reason: "dial refused"}}, c.Events())
	require.Equal(t, SessionState{}, c.Session())
}

func TestRedundantConnectIsIgnored(t *testing.T) {
	c, fake := newTestClient(t)
	host := establish(t, c, fake)
	before := c.Session()

	other := transport.RemoteAddr(netip.MustParseAddr("10.0.0.9"), 4000)
	c.Connect(other, GuestAuth("mallory"))
	tick(t, c)
	require.Equal(t, Establishing, c.State())
	require.Equal(t, before, c.Session())

	respond(t, fake, host, protocol.Accepted("alice"))
	tick(t, c)
	require.Equal(t, Connected, c.State())
	before = c.Session()

	c.Connect(other, RegisteredAuth("token", "hero"))
	tick(t, c)
	require.Equal(t, Connected, c.State())
	require.Equal(t, before, c.Session())
	require.Equal(t, 1, fake.Opened())
}

func TestOnlyFirstRequestPerTick(t *testing.T) {
	c, fake := newTestClient(t)

	c.Connect(testAddr, GuestAuth("alice"))
	c.Disconnect("changed my mind")
	tick(t, c)
	require.Equal(t, Establishing, c.State())

	// The dropped Disconnect does not resurface.
	tick(t, c)
	require.Equal(t, Establishing, c.State())
	require.False(t, fake.Closed())
}

func TestPeerConnectSendsOneLogin(t *testing.T) {
	c, fake := newTestClient(t)
	host := establish(t, c, fake)

	logins := sentLogins(t, fake)
	require.Len(t, logins, 1)
	require.Equal(t, host, logins[0].Peer)
	require.Equal(t, transport.Reliable, logins[0].Channel)

	req, err := protocol.Unmarshal[protocol.LoginRequest](logins[0].Data)
	require.NoError(t, err)
	require.Equal(t, protocol.Guest("alice"), req)

	s := c.Session()
	require.Nil(t, s.Auth)
	require.Equal(t, host, *s.HostID)

	// A repeated or foreign connect does not log in again.
	fake.Connect(host)
	fake.Connect(transport.NewPeerID())
	tick(t, c)
	require.Empty(t, sentLogins(t, fake))
	require.Equal(t, host, *c.Session().HostID)
}

func TestRegisteredLoginOnWire(t *testing.T) {
	c, fake := newTestClient(t)
	c.Connect(testAddr, RegisteredAuth("secret", "hero"))
	tick(t, c)
	fake.Connect(transport.NewPeerID())
	tick(t, c)

	logins := sentLogins(t, fake)
	require.Len(t, logins, 1)
	req, err := protocol.Unmarshal[protocol.LoginRequest](logins[0].Data)
	require.NoError(t, err)
	require.Equal(t, protocol.RegisteredUser("secret", "hero"), req)
}

func TestAcceptedConnects(t *testing.T) {
	c, fake := newTestClient(t)
	host := establish(t, c, fake)

	respond(t, fake, host, protocol.Accepted("alice"))
	tick(t, c)

	require.Equal(t, Connected, c.State())
	require.Equal(t, []Event{ConnectedToHost{Host: host, Username: "alice"}}, c.Events())
	require.Nil(t, c.Session().Auth)

	// A late duplicate response changes nothing.
	respond(t, fake, host, protocol.Accepted("alice"))
	tick(t, c)
	require.Equal(t, Connected, c.State())
	require.Empty(t, c.Events())
}

func TestDeniedDisconnects(t *testing.T) {
	c, fake := newTestClient(t)
	host := establish(t, c, fake)

	respond(t, fake, host, protocol.Denied("bad token"))
	tick(t, c)

	require.Equal(t, Disconnected, c.State())
	require.Equal(t, []Event{DisconnectedFromHost{Reason: "bad token"}}, c.Events())
	require.Nil(t, c.Session().HostID)
	require.True(t, fake.Closed())
}

func TestResponseFromOtherPeerIgnored(t *testing.T) {
	c, fake := newTestClient(t)
	establish(t, c, fake)

	respond(t, fake, transport.NewPeerID(), protocol.Accepted("alice"))
	tick(t, c)

	require.Equal(t, Establishing, c.State())
	require.Empty(t, c.Events())
}

func TestHostLossResetsOnce(t *testing.T) {
	c, fake := newTestClient(t)
	host := establish(t, c, fake)
	respond(t, fake, host, protocol.Accepted("alice"))
	tick(t, c)
	require.Equal(t, Connected, c.State())

	fake.Disconnect(host)
	fake.Disconnect(host)
	tick(t, c)
	require.Equal(t, Disconnected, c.State())
	require.Equal(t, []Event{DisconnectedFromHost{Reason: ReasonServerReset}}, c.Events())
	require.Equal(t, SessionState{}, c.Session())

	fake.Disconnect(host)
	tick(t, c)
	require.Empty(t, c.Events())
}

func TestAnyPeerLossResets(t *testing.T) {
	c, fake := newTestClient(t)
	establish(t, c, fake)

	fake.Disconnect(transport.NewPeerID())
	tick(t, c)
	require.Equal(t, Disconnected, c.State())
	require.Equal(t, []Event{DisconnectedFromHost{Reason: ReasonServerReset}}, c.Events())
	require.Nil(t, c.Session().HostID)
}

func TestPeerLossBeforeHostResets(t *testing.T) {
	c, fake := newTestClient(t)
	c.Connect(testAddr, GuestAuth("alice"))
	tick(t, c)

	fake.Disconnect(transport.NewPeerID())
	tick(t, c)
	require.Equal(t, Disconnected, c.State())
	require.Equal(t, []Event{DisconnectedFromHost{Reason: ReasonServerReset}}, c.Events())
}

func TestClosedTransportDisconnects(t *testing.T) {
	c, fake := newTestClient(t)
	establish(t, c, fake)

	fake.Break()
	tick(t, c)

	require.Equal(t, Disconnected, c.State())
	require.Equal(t, []Event{DisconnectedFromHost{Reason: ReasonConnectionClosed}}, c.Events())
}

func TestDisconnectRequest(t *testing.T) {
	c, fake := newTestClient(t)
	establish(t, c, fake)
	fake.TakeSent(transport.Reliable)

	c.Disconnect("bye")
	tick(t, c)

	require.Equal(t, Disconnected, c.State())
	require.Equal(t, []Event{DisconnectedFromHost{Reason: "bye"}}, c.Events())
	require.True(t, fake.Closed())

	// Reconnecting starts from scratch.
	host := establish(t, c, fake)
	require.Equal(t, 2, fake.Opened())
	require.Len(t, sentLogins(t, fake), 1)
	require.Equal(t, host, *c.Session().HostID)
}

func TestIDAssignedOnce(t *testing.T) {
	c, fake := newTestClient(t)
	c.Connect(testAddr, GuestAuth("alice"))
	tick(t, c)

	id := transport.NewPeerID()
	fake.AssignID(id)
	tick(t, c)
	require.Equal(t, []Event{IDAssigned{ID: id}}, c.Events())
	require.Equal(t, id, *c.Session().LocalID)

	tick(t, c)
	require.Empty(t, c.Events())
}

func TestMissingAuthIsInvariantViolation(t *testing.T) {
	c, fake := newTestClient(t)
	c.Connect(testAddr, GuestAuth("alice"))
	tick(t, c)

	c.session.Auth = nil
	fake.Connect(transport.NewPeerID())
	err := c.Tick(context.Background(), nil)

	require.ErrorIs(t, err, ErrInvariant)
	require.True(t, IsFatal(err))
}

func TestAppRunsBetweenUpdateAndWrite(t *testing.T) {
	reg := router.NewRegistry()
	fake := transporttest.New()
	c, err := NewClient(reg, fake.Opener())
	require.NoError(t, err)
	chat, err := router.Register[protocol.Chat](reg)
	require.NoError(t, err)

	host := establish(t, c, fake)
	fake.TakeSent(transport.Reliable)
	respond(t, fake, host, protocol.Accepted("alice"))

	var seen ConnectionState
	appErr := errors.New("app failed")
	err = c.Tick(context.Background(), func() error {
		seen = c.State()
		require.NoError(t, chat.ReliableToHost(protocol.Chat{From: "alice", Text: "hi"}))
		return appErr
	})

	require.ErrorIs(t, err, appErr)
	require.False(t, IsFatal(err))
	require.Equal(t, Connected, seen)

	sent := fake.TakeSent(transport.Reliable)
	require.Len(t, sent, 1)
	require.Equal(t, host, sent[0].Peer)
}

func TestNewClientRejectsDuplicateRegistration(t *testing.T) {
	reg := router.NewRegistry()
	_, err := router.Register[protocol.LoginRequest](reg)
	require.NoError(t, err)

	_, err = NewClient(reg, transporttest.New().Opener())
	require.ErrorIs(t, err, ErrConfig)
	require.ErrorIs(t, err, router.ErrDuplicate)
}
