// Package probe implements the Status Prober (spec.md §4.4): it
// determines whether a backend is reachable and, if so, how many players
// are online, using a four-step precedence ladder from a strict protocol
// decode down to an RCON `list` fallback.
package probe

import (
	"encoding/json"
	"net"
	"time"

	"go.lazytran.dev/lazytran/internal/netutil"
	"go.lazytran.dev/lazytran/internal/proto/packet"
	"go.lazytran.dev/lazytran/internal/rcon"
)

// Result is the outcome of one probe: either Unreachable, or Alive with
// an optional player count (spec.md §4.4: "Unreachable | Alive{players:
// Option<u32>}").
type Result struct {
	Alive       bool
	Players     *int
	Version     string
	Description string
	// Tag records how the result was obtained, useful for logs/tests;
	// "unknown" mirrors spec.md §4.4 step 2's "unknown tag" language.
	Tag string
}

// Prober polls a single backend endpoint.
type Prober struct {
	Address string // host:port of the backend, e.g. loopback:internal_port
	Rcon    *rcon.Client // nil if RCON isn't configured
}

// New builds a Prober. rconClient may be nil if spec.md §4.4 step 4
// (RCON list fallback) isn't configured.
func New(address string, rconClient *rcon.Client) *Prober {
	return &Prober{Address: address, Rcon: rconClient}
}

// Probe runs the full precedence ladder with the given connect timeout,
// following spec.md §4.4's four steps in order.
func (p *Prober) Probe(connectTimeout time.Duration) Result {
	if res, ok := p.probeStatus(connectTimeout); ok {
		return res
	}
	if p.probePing(connectTimeout) {
		return Result{Alive: true, Tag: "ping"}
	}
	if p.Rcon != nil {
		if res, ok := p.probeRCON(); ok {
			return res
		}
	}
	return Result{Alive: false, Tag: "unreachable"}
}

// probeStatus performs steps 1 and 2: a strict decode of the Status
// Response, falling back to a lenient/tolerant JSON extraction if the
// strict decode's JSON doesn't conform to the expected shape.
func (p *Prober) probeStatus(timeout time.Duration) (Result, bool) {
	conn, err := net.DialTimeout("tcp", p.Address, timeout)
	if err != nil {
		return Result{}, false
	}
	defer conn.Close()

	fc := netutil.NewFrameConn(conn)

	hs := packet.Handshake{
		ProtocolVersion: 0, // the prober doesn't impersonate a real client version
		ServerAddress:   "lazytran-probe",
		ServerPort:      0,
		NextState:       packet.NextStateStatus,
	}
	if err := fc.WriteRaw(timeout, hs.Encode()); err != nil {
		return Result{}, false
	}
	if err := fc.WriteRaw(timeout, packet.EncodeToBytesStatusRequest()); err != nil {
		return Result{}, false
	}

	id, payload, err := fc.ReadPacket(timeout)
	if err != nil || id != packet.IDStatusResponse {
		return Result{}, false
	}

	// Step 1: strict decode.
	if resp, err := packet.DecodeStatusResponse(payload); err == nil && statusConforms(payload) {
		n := resp.Players.Online
		var desc interface{}
		_ = json.Unmarshal(resp.Description, &desc)
		return Result{Alive: true, Players: &n, Version: resp.Version.Name, Description: flattenDescription(desc), Tag: "strict"}, true
	}

	// Step 2: lenient/tolerant extraction.
	if res, ok := lenientParse(payload); ok {
		return res, true
	}

	return Result{}, false
}

// statusConforms reports whether the raw payload's JSON strictly matches
// spec.md §4.2's shape: description is a string-or-plain-object with a
// "text" field, players has numeric "online" and "max", and no top-level
// key other than version, players, description and favicon appears
// (extra keys inside players are not checked). It is deliberately
// stricter than json.Unmarshal (which silently ignores mismatched or
// extra fields) so step 1 only succeeds on well-formed servers, per
// spec.md §4.4 step 2's trigger ("fields are non-conformant").
func statusConforms(payload []byte) bool {
	s, err := packet.ReadRawJSONString(payload)
	if err != nil {
		return false
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &generic); err != nil {
		return false
	}
	for key := range generic {
		switch key {
		case "version", "players", "description", "favicon":
		default:
			return false
		}
	}
	playersRaw, ok := generic["players"]
	if !ok {
		return false
	}
	var players struct {
		Online *int `json:"online"`
		Max    *int `json:"max"`
	}
	if err := json.Unmarshal(playersRaw, &players); err != nil {
		return false
	}
	if players.Online == nil || players.Max == nil {
		return false
	}
	if descRaw, ok := generic["description"]; ok {
		// A plain JSON string, or an object with a "text" field, both
		// conform; anything else (e.g. a bare number, or an object with
		// no usable text) does not.
		var asString string
		if err := json.Unmarshal(descRaw, &asString); err == nil {
			return true
		}
		var asObj struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(descRaw, &asObj); err == nil && asObj.Text != nil {
			return true
		}
		return false
	}
	return true
}

// lenientParse implements spec.md §4.4 step 2: find players.online as any
// number, version.name as any string, description recursively flattened
// to text. A missing players.online leaves Players nil and tags the
// result "unknown"; a missing version.name becomes "unknown".
func lenientParse(payload []byte) (Result, bool) {
	s, err := packet.ReadRawJSONString(payload)
	if err != nil {
		return Result{}, false
	}
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(s), &generic); err != nil {
		return Result{}, false
	}

	var players *int
	tag := "lenient"
	if p, ok := generic["players"].(map[string]interface{}); ok {
		if n, ok := p["online"].(float64); ok {
			v := int(n)
			players = &v
		}
	}
	if players == nil {
		tag = "unknown"
	}

	version := "unknown"
	if v, ok := generic["version"].(map[string]interface{}); ok {
		if name, ok := v["name"].(string); ok {
			version = name
		}
	}

	desc := flattenDescription(generic["description"])

	return Result{Alive: true, Players: players, Version: version, Description: desc, Tag: tag}, true
}

// flattenDescription recursively extracts the readable text from a chat
// component of unknown shape (a string, {"text":...}, or {"extra":[...]})
// per spec.md §4.4 step 2. It is unexported and used by both the strict
// and the lenient parse step.
func flattenDescription(v interface{}) string {
	switch d := v.(type) {
	case string:
		return d
	case map[string]interface{}:
		var out string
		if t, ok := d["text"].(string); ok {
			out += t
		}
		if extra, ok := d["extra"].([]interface{}); ok {
			for _, e := range extra {
				out += flattenDescription(e)
			}
		}
		return out
	case []interface{}:
		var out string
		for _, e := range d {
			out += flattenDescription(e)
		}
		return out
	default:
		return ""
	}
}

// probePing implements spec.md §4.4 step 3: if the Status Response can't
// be read but the Ping round-trips, the server is alive with an unknown
// player count.
func (p *Prober) probePing(timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", p.Address, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	fc := netutil.NewFrameConn(conn)
	hs := packet.Handshake{ServerAddress: "lazytran-probe", NextState: packet.NextStateStatus}
	if err := fc.WriteRaw(timeout, hs.Encode()); err != nil {
		return false
	}
	const echo = 0xC0FFEE
	if err := fc.WriteRaw(timeout, packet.EncodePing(echo)); err != nil {
		return false
	}
	id, payload, err := fc.ReadPacket(timeout)
	if err != nil || id != packet.IDPing {
		return false
	}
	got, err := packet.DecodePing(payload)
	return err == nil && got == echo
}

// probeRCON implements spec.md §4.4 step 4: issue `list` over RCON and
// extract the online count.
func (p *Prober) probeRCON() (Result, bool) {
	online, _, err := p.Rcon.List()
	if err != nil {
		return Result{}, false
	}
	return Result{Alive: true, Players: &online, Tag: "rcon"}, true
}
