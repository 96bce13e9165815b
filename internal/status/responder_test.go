package status_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.lazytran.dev/lazytran/internal/netutil"
	"go.lazytran.dev/lazytran/internal/proto/packet"
	"go.lazytran.dev/lazytran/internal/status"
)

func TestServeAnswersStatusRequestWithEchoedProtocol(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fc := netutil.NewFrameConn(server)
	hs := packet.Handshake{ProtocolVersion: 765, ServerAddress: "proxy", ServerPort: 25565, NextState: packet.NextStateStatus}

	done := make(chan struct{})
	go func() {
		status.Serve(fc, hs, status.Info{VersionName: "lazytran 1.20.4", MaxPlayers: 10, Online: 2, MOTD: "sleeping"})
		close(done)
	}()

	fcClient := netutil.NewFrameConn(client)
	require.NoError(t, fcClient.WriteRaw(time.Second, packet.EncodeToBytesStatusRequest()))

	id, payload, err := fcClient.ReadPacket(time.Second)
	require.NoError(t, err)
	require.Equal(t, int32(packet.IDStatusResponse), id)

	resp, err := packet.DecodeStatusResponse(payload)
	require.NoError(t, err)
	require.Equal(t, "lazytran 1.20.4", resp.Version.Name)
	require.Equal(t, int32(765), resp.Version.Protocol)
	require.Equal(t, 10, resp.Players.Max)
	require.Equal(t, 2, resp.Players.Online)

	client.Close()
	<-done
}

func TestServeEchoesPingThenCloses(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	fc := netutil.NewFrameConn(server)
	hs := packet.Handshake{ProtocolVersion: 765, ServerAddress: "proxy", ServerPort: 25565, NextState: packet.NextStateStatus}

	done := make(chan struct{})
	go func() {
		status.Serve(fc, hs, status.Info{})
		close(done)
	}()

	fcClient := netutil.NewFrameConn(client)
	require.NoError(t, fcClient.WriteRaw(time.Second, packet.EncodePing(42)))

	_, payload, err := fcClient.ReadPacket(time.Second)
	require.NoError(t, err)
	echo, err := packet.DecodePing(payload)
	require.NoError(t, err)
	require.Equal(t, uint64(42), echo)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve should return after answering the ping")
	}
}

func TestServeIncludesFaviconWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "favicon.png")
	require.NoError(t, os.WriteFile(path, []byte("not-really-a-png"), 0o644))

	client, server := net.Pipe()
	defer client.Close()

	fc := netutil.NewFrameConn(server)
	hs := packet.Handshake{ProtocolVersion: 765, ServerAddress: "proxy", ServerPort: 25565, NextState: packet.NextStateStatus}

	done := make(chan struct{})
	go func() {
		status.Serve(fc, hs, status.Info{FaviconPath: path})
		close(done)
	}()

	fcClient := netutil.NewFrameConn(client)
	require.NoError(t, fcClient.WriteRaw(time.Second, packet.EncodeToBytesStatusRequest()))

	_, payload, err := fcClient.ReadPacket(time.Second)
	require.NoError(t, err)
	resp, err := packet.DecodeStatusResponse(payload)
	require.NoError(t, err)
	require.Contains(t, resp.Favicon, "data:image/png;base64,")

	client.Close()
	<-done
}
