// Package status implements the Status Responder (spec.md §4.2): it
// answers a Status-intent connection on behalf of a sleeping backend with
// a synthesized status JSON and echoes pings.
package status

import (
	"encoding/base64"
	"os"
	"time"

	"go.uber.org/zap"

	"go.lazytran.dev/lazytran/internal/netutil"
	"go.lazytran.dev/lazytran/internal/proto/packet"
)

const (
	readTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
)

// Info is the subset of configuration the responder needs to synthesize
// a status response (spec.md §4.2).
type Info struct {
	VersionName string
	MaxPlayers  int
	Online      int
	MOTD        string
	FaviconPath string
}

// Serve answers one Status-intent connection: it expects the caller to
// have already read the Handshake, then reads Status Request / Ping
// Request packets until the client disconnects or a Ping is answered
// (spec.md §4.2 step 3: "then close").
func Serve(fc *netutil.FrameConn, hs packet.Handshake, info Info) {
	for {
		id, payload, err := fc.ReadPacket(readTimeout)
		if err != nil {
			return
		}

		switch id {
		case packet.IDStatusRequest:
			resp := buildResponse(hs, info)
			frame, err := packet.EncodeStatusResponse(resp)
			if err != nil {
				zap.L().Warn("status: failed to encode response", zap.Error(err))
				return
			}
			if err := fc.WriteRaw(writeTimeout, frame); err != nil {
				return
			}
		case packet.IDPing:
			echo, err := packet.DecodePing(payload)
			if err != nil {
				return
			}
			if err := fc.WriteRaw(writeTimeout, packet.EncodePing(echo)); err != nil {
				return
			}
			return // spec.md §4.2 step 3: close after the ping echo
		default:
			return
		}
	}
}

func buildResponse(hs packet.Handshake, info Info) packet.StatusResponse {
	resp := packet.StatusResponse{
		Version: packet.StatusVersion{
			Name: info.VersionName,
			// Echo the client's own protocol number back so it always
			// renders the sleep MOTD as "compatible" (spec.md §4.2 step 2).
			Protocol: hs.ProtocolVersion,
		},
		Players: packet.StatusPlayers{
			Max:    info.MaxPlayers,
			Online: info.Online,
			Sample: []packet.StatusPlayerSample{},
		},
		Description: packet.BuildDescription(info.MOTD),
	}
	if info.FaviconPath != "" {
		if data := loadFavicon(info.FaviconPath); data != "" {
			resp.Favicon = data
		}
	}
	return resp
}

// loadFavicon reads a 64x64 PNG and returns it as a data URL (spec.md
// §4.2: "must be a 64x64 PNG encoded as data:image/png;base64,<...>").
// lazytran trusts the operator-configured file is already sized
// correctly; it does not decode/validate image dimensions itself.
func loadFavicon(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		zap.S().Warnf("status: could not read favicon %q: %v", path, err)
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}
