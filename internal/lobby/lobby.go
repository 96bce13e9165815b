// Package lobby implements the fake "waiting room" world (spec.md §4.8):
// a minimal Configuration+Play session that keeps a client occupied
// while the real backend starts, then hands it off with a Transfer
// packet once the backend reports Started. The session loop shape
// (reader goroutine feeding a select alongside timer channels) is
// grounded on the teacher's minecraftConn.readLoop/sessionHandler split
// in pkg/proxy/connection.go, collapsed into a single function since the
// lobby has only one state to be in rather than a chain of handlers.
package lobby

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go.lazytran.dev/lazytran/internal/netutil"
	"go.lazytran.dev/lazytran/internal/proto/packet"
	"go.lazytran.dev/lazytran/internal/state"
)

const (
	writeTimeout    = 5 * time.Second
	ackTimeout      = 10 * time.Second
	readPollTimeout = 30 * time.Second
	chatInterval    = 5 * time.Second
	keepAliveEvery  = 10 * time.Second
)

// Config carries what Run needs to know about the public-facing handoff
// target once the backend is ready (spec.md §4.8 step 5), plus the
// join.lobby.timeout give-up deadline.
type Config struct {
	PublicHost string
	PublicPort int32
	Timeout    time.Duration // give up and disconnect if the backend never reaches Started
}

// Run drives one client through the fake world until the backend reaches
// Started (at which point it hands off via Transfer/Disconnect) or the
// client disconnects. It counts as an active player for idleness for as
// long as it runs (spec.md §4.8 "Concurrency").
func Run(ctx context.Context, fc *netutil.FrameConn, hs packet.Handshake, ls packet.LoginStart, tracker *state.Tracker, changed func() <-chan struct{}, cfg Config) error {
	tracker.AddLobbyHold(1)
	defer tracker.AddLobbyHold(-1)

	if err := login(fc, ls); err != nil {
		return err
	}
	if err := configure(fc); err != nil {
		return err
	}
	if err := enterPlay(fc); err != nil {
		return err
	}

	return playLoop(ctx, fc, hs, tracker, changed, cfg)
}

func login(fc *netutil.FrameConn, ls packet.LoginStart) error {
	uid := packet.OfflineUUID(ls.Username)
	success := packet.LoginSuccess{UUID: uid, Username: ls.Username}
	if err := fc.WriteRaw(writeTimeout, success.Encode()); err != nil {
		return err
	}
	return awaitPacket(fc, packet.IDLoginAcknowledged, ackTimeout)
}

func configure(fc *netutil.FrameConn) error {
	for _, reg := range packet.LobbyRegistries() {
		if err := fc.WriteRaw(writeTimeout, reg); err != nil {
			return err
		}
	}
	if err := fc.WriteRaw(writeTimeout, packet.EncodeFeatureFlags()); err != nil {
		return err
	}
	if err := fc.WriteRaw(writeTimeout, packet.EncodeFinishConfiguration()); err != nil {
		return err
	}
	return awaitPacket(fc, packet.IDAckFinishConfiguration, ackTimeout)
}

func enterPlay(fc *netutil.FrameConn) error {
	loginPlay := packet.LoginPlay{
		EntityID:       1,
		DimensionNames: []string{"minecraft:overworld"},
		Dimension:      "minecraft:overworld",
		DimensionName:  "minecraft:overworld",
		MaxPlayers:     20,
		ViewDistance:   2,
		SimulationDist: 2,
		IsFlat:         true,
	}
	if err := fc.WriteRaw(writeTimeout, loginPlay.Encode()); err != nil {
		return err
	}
	if err := fc.WriteRaw(writeTimeout, packet.EncodeSynchronizePlayerPosition(0, 128, 0, 0)); err != nil {
		return err
	}
	if err := fc.WriteRaw(writeTimeout, packet.EncodeSetCenterChunk(0, 0)); err != nil {
		return err
	}
	return fc.WriteRaw(writeTimeout, packet.EncodeEmptyChunk(0, 0))
}

type inbound struct {
	id      int32
	payload []byte
	err     error
}

// playLoop holds the client in the void world, chatting periodically and
// answering keep-alives, until the backend reaches Started or the client
// goes away.
func playLoop(ctx context.Context, fc *netutil.FrameConn, hs packet.Handshake, tracker *state.Tracker, changed func() <-chan struct{}, cfg Config) error {
	msgs := make(chan inbound, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			id, payload, err := fc.ReadPacket(readPollTimeout)
			select {
			case msgs <- inbound{id, payload, err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	chatTicker := time.NewTicker(chatInterval)
	defer chatTicker.Stop()
	keepAliveTicker := time.NewTicker(keepAliveEvery)
	defer keepAliveTicker.Stop()

	var giveUp <-chan time.Time
	if cfg.Timeout > 0 {
		timeoutTimer := time.NewTimer(cfg.Timeout)
		defer timeoutTimer.Stop()
		giveUp = timeoutTimer.C
	}

	var keepAliveID int64

	if tracker.Server() == state.Started {
		return handoff(fc, hs, cfg)
	}
	changedCh := changed()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-giveUp:
			msg := fmt.Sprintf("Server did not start within %s, please try again.", cfg.Timeout)
			return fc.WriteRaw(writeTimeout, packet.EncodeDisconnectPlay(msg))

		case m := <-msgs:
			if m.err != nil {
				return m.err
			}
			if m.id == packet.IDKeepAliveServerbound {
				if echoed, err := packet.DecodeKeepAlive(m.payload); err != nil || echoed != keepAliveID {
					zap.S().Debugw("lobby: stale or malformed keep-alive echo", "err", err)
				}
			}

		case <-chatTicker.C:
			if err := fc.WriteRaw(writeTimeout, packet.EncodeSystemChat("Server is starting... please wait", false)); err != nil {
				return err
			}

		case <-keepAliveTicker.C:
			keepAliveID++
			if err := fc.WriteRaw(writeTimeout, packet.EncodeKeepAlive(keepAliveID)); err != nil {
				return err
			}

		case <-changedCh:
			changedCh = changed()
			if tracker.Server() == state.Started {
				return handoff(fc, hs, cfg)
			}
		}
	}
}

// handoff transfers the client to the now-ready backend (spec.md §4.8
// step 5): a Transfer packet for protocol >=765 clients (which is every
// client the lobby ever accepts, since Configuration phase itself
// requires >=765), falling back to a Disconnect telling the player to
// reconnect manually.
func handoff(fc *netutil.FrameConn, hs packet.Handshake, cfg Config) error {
	const minTransferProtocol = 765
	if hs.ProtocolVersion >= minTransferProtocol {
		return fc.WriteRaw(writeTimeout, packet.EncodeTransfer(cfg.PublicHost, cfg.PublicPort))
	}
	msg := fmt.Sprintf("Server is ready! Please reconnect to %s:%d", cfg.PublicHost, cfg.PublicPort)
	return fc.WriteRaw(writeTimeout, packet.EncodeDisconnectPlay(msg))
}

func awaitPacket(fc *netutil.FrameConn, wantID int32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("lobby: timed out waiting for packet 0x%02X", wantID)
		}
		id, _, err := fc.ReadPacket(remaining)
		if err != nil {
			return err
		}
		if id == wantID {
			return nil
		}
	}
}
