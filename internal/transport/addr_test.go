package transport

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionAddrURL(t *testing.T) {
	testCases := []struct {
		name string
		addr ConnectionAddr
		want string
	}{
		{"local", LocalAddr(3536), "ws://0.0.0.0:3536/"},
		{"remote ipv4", RemoteAddr(netip.MustParseAddr("127.0.0.1"), 3536), "ws://127.0.0.1:3536/"},
		{"remote ipv6", RemoteAddr(netip.MustParseAddr("::1"), 80), "ws://[::1]:80/"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.addr.URL())
			require.False(t, tc.addr.IsZero())
		})
	}
}

func TestConnectionAddrZero(t *testing.T) {
	var addr ConnectionAddr
	require.True(t, addr.IsZero())
	require.Equal(t, "<none>", addr.String())
}

func TestPeerIDRoundTrip(t *testing.T) {
	id := NewPeerID()
	parsed, err := ParsePeerID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
	require.Len(t, id.Short(), 8)

	_, err = ParsePeerID("not-a-peer")
	require.Error(t, err)
}
