package packet_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go.lazytran.dev/lazytran/internal/codec"
	"go.lazytran.dev/lazytran/internal/proto/packet"
)

func decodeFrame(t *testing.T, frame []byte) (int32, []byte) {
	t.Helper()
	id, payload, _, err := codec.Decode(bufio.NewReader(bytes.NewReader(frame)))
	require.NoError(t, err)
	return id, payload
}

func TestHandshakeEncodeDecodeRoundTrips(t *testing.T) {
	hs := packet.Handshake{
		ProtocolVersion: 765,
		ServerAddress:   "play.example.com",
		ServerPort:      25565,
		NextState:       packet.NextStateLogin,
	}
	id, payload := decodeFrame(t, hs.Encode())
	require.Equal(t, int32(packet.IDHandshake), id)

	got, err := packet.DecodeHandshake(payload)
	require.NoError(t, err)
	require.Equal(t, hs, got)
}

func TestDecodeHandshakeRejectsOutOfRangeNextState(t *testing.T) {
	hs := packet.Handshake{ProtocolVersion: 765, ServerAddress: "x", ServerPort: 1, NextState: 1}
	frame := hs.Encode()
	_, payload := decodeFrame(t, frame)

	// Corrupt the last byte (the next_state VarInt) to an out-of-range value.
	payload[len(payload)-1] = 9
	_, err := packet.DecodeHandshake(payload)
	require.Error(t, err)
}

func TestHandshakeWithNextStateReplacesOnlyThatField(t *testing.T) {
	hs := packet.Handshake{ProtocolVersion: 765, ServerAddress: "x", ServerPort: 1, NextState: packet.NextStateStatus}
	transferred := hs.WithNextState(packet.NextStateTransfer)
	require.Equal(t, packet.NextStateTransfer, transferred.NextState)
	require.Equal(t, hs.ServerAddress, transferred.ServerAddress)
	require.Equal(t, packet.NextStateStatus, hs.NextState, "original must be unchanged")
}

func TestLoginStartEncodeDecodeRoundTripsWithUUID(t *testing.T) {
	ls := packet.LoginStart{Username: "Notch", HasUUID: true, UUID: packet.OfflineUUID("Notch")}
	_, payload := decodeFrame(t, ls.Encode())

	got, err := packet.DecodeLoginStart(payload)
	require.NoError(t, err)
	require.Equal(t, ls, got)
}

func TestOfflineUUIDIsDeterministic(t *testing.T) {
	a := packet.OfflineUUID("Steve")
	b := packet.OfflineUUID("Steve")
	c := packet.OfflineUUID("Alex")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, uuid.Version(3), a.Version())
}

func TestEncodeStatusResponseThenDecode(t *testing.T) {
	resp := packet.StatusResponse{
		Version:     packet.StatusVersion{Name: "lazytran 1.20.4", Protocol: 765},
		Players:     packet.StatusPlayers{Max: 20, Online: 3},
		Description: packet.BuildDescription("Server is sleeping. Join to wake it up!"),
	}
	frame, err := packet.EncodeStatusResponse(resp)
	require.NoError(t, err)

	_, payload := decodeFrame(t, frame)
	got, err := packet.DecodeStatusResponse(payload)
	require.NoError(t, err)
	require.Equal(t, resp.Version, got.Version)
	require.Equal(t, resp.Players, got.Players)
}

func TestBuildDescriptionSplitsOnNewlineIntoTwoLineComponent(t *testing.T) {
	raw := packet.BuildDescription("line one\nline two")
	var comp packet.ChatText
	require.NoError(t, json.Unmarshal(raw, &comp))
	require.Equal(t, "line one", comp.Text)
	require.Len(t, comp.Extra, 1)
	require.Equal(t, "\nline two", comp.Extra[0].Text)
}

func TestBuildDescriptionSingleLineHasNoExtra(t *testing.T) {
	raw := packet.BuildDescription("just one line")
	var comp packet.ChatText
	require.NoError(t, json.Unmarshal(raw, &comp))
	require.Equal(t, "just one line", comp.Text)
	require.Empty(t, comp.Extra)
}

func TestPingEncodeDecodeEchoesPayload(t *testing.T) {
	_, payload := decodeFrame(t, packet.EncodePing(0xdeadbeef))
	got, err := packet.DecodePing(payload)
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeef), got)
}

func TestLoginSuccessEncodeContainsUsername(t *testing.T) {
	ls := packet.LoginSuccess{UUID: packet.OfflineUUID("Herobrine"), Username: "Herobrine"}
	id, payload := decodeFrame(t, ls.Encode())
	require.Equal(t, int32(packet.IDLoginSuccess), id)
	require.Contains(t, string(payload), "Herobrine")
}

func TestEncodeLoginDisconnectCarriesReasonText(t *testing.T) {
	id, payload := decodeFrame(t, packet.EncodeLoginDisconnect("you got banned"))
	require.Equal(t, int32(packet.IDLoginDisconnect), id)
	require.Contains(t, string(payload), "you got banned")
}
