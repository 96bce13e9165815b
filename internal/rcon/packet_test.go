package rcon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p := Packet{ID: 7, Kind: KindCommand, Payload: "list"}
	data, err := Marshal(p)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestMarshalRejectsNonASCII(t *testing.T) {
	_, err := Marshal(Packet{ID: 1, Kind: KindCommand, Payload: "café"})
	require.Error(t, err)
}

func TestUnmarshalRejectsShortPacket(t *testing.T) {
	_, err := Unmarshal([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestParseListResponse(t *testing.T) {
	online, names, err := parseListResponse("There are 2 of a max of 20 players online: alice, bob")
	require.NoError(t, err)
	require.Equal(t, 2, online)
	require.Equal(t, []string{"alice", "bob"}, names)
}

func TestParseListResponseNoPlayers(t *testing.T) {
	online, names, err := parseListResponse("There are 0 of a max of 20 players online:")
	require.NoError(t, err)
	require.Equal(t, 0, online)
	require.Empty(t, names)
}

func TestParseListResponseUnrecognized(t *testing.T) {
	_, _, err := parseListResponse("garbage")
	require.Error(t, err)
}
