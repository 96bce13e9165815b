package packet

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.lazytran.dev/lazytran/internal/codec"
	"go.lazytran.dev/lazytran/internal/errs"
)

// StatusResponse is the JSON payload of the Status Response packet
// (spec.md §4.2). Description is left as json.RawMessage since it may be
// a plain string or a chat component object — callers build it with
// BuildDescription below.
type StatusResponse struct {
	Version     StatusVersion   `json:"version"`
	Players     StatusPlayers   `json:"players"`
	Description json.RawMessage `json:"description"`
	Favicon     string          `json:"favicon,omitempty"`
}

type StatusVersion struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type StatusPlayers struct {
	Max    int                  `json:"max"`
	Online int                  `json:"online"`
	Sample []StatusPlayerSample `json:"sample,omitempty"`
}

type StatusPlayerSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ChatText is the simplest chat component shape: a plain text node, used
// for single-line MOTDs and disconnect reasons.
type ChatText struct {
	Text  string      `json:"text"`
	Extra []ChatText  `json:"extra,omitempty"`
	Color string      `json:"color,omitempty"`
}

// BuildDescription turns a MOTD string into the chat-component JSON
// spec.md §4.2 requires: a {"text":...} component for single-line MOTDs,
// or a two-line chat component (joined with a literal newline, matching
// vanilla's own multi-line MOTD rendering) when motd contains "\n".
func BuildDescription(motd string) json.RawMessage {
	comp := ChatText{Text: motd}
	if idx := strings.Index(motd, "\n"); idx >= 0 {
		comp = ChatText{
			Text:  motd[:idx],
			Extra: []ChatText{{Text: "\n" + motd[idx+1:]}},
		}
	}
	raw, err := json.Marshal(comp)
	if err != nil {
		return json.RawMessage(`{"text":""}`)
	}
	return raw
}

// EncodeStatusResponse serializes resp as a full Status Response frame.
func EncodeStatusResponse(resp StatusResponse) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, errs.New(errs.KindIO, "EncodeStatusResponse", err)
	}
	var buf bytes.Buffer
	_ = codec.WriteString(&buf, string(data))
	return codec.EncodeToBytes(IDStatusResponse, buf.Bytes()), nil
}

// DecodeStatusResponse parses the JSON body of a Status Response payload.
// It is used by the prober's strict decode path (spec.md §4.4 step 1).
func DecodeStatusResponse(payload []byte) (StatusResponse, error) {
	var resp StatusResponse
	s, err := codec.ReadString(bytes.NewReader(payload))
	if err != nil {
		return resp, errs.New(errs.KindMalformed, "DecodeStatusResponse", err)
	}
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return resp, errs.New(errs.KindMalformed, "DecodeStatusResponse", err)
	}
	return resp, nil
}

// EncodeToBytesStatusRequest builds the (empty-payload) Status Request
// frame the prober sends after its Handshake.
func EncodeToBytesStatusRequest() []byte {
	return codec.EncodeToBytes(IDStatusRequest, nil)
}

// ReadRawJSONString extracts the VarInt-prefixed JSON string from a
// Status Response payload without decoding it into StatusResponse,
// preserving unknown/malformed shapes for the prober's lenient extractor
// (spec.md §4.4 step 2).
func ReadRawJSONString(payload []byte) (string, error) {
	s, err := codec.ReadString(bytes.NewReader(payload))
	if err != nil {
		return "", errs.New(errs.KindMalformed, "ReadRawJSONString", err)
	}
	return s, nil
}

// EncodePing builds a Ping Request/Response frame with the given 8-byte
// payload (spec.md §4.2 step 3: response payload must match the request).
func EncodePing(payload uint64) []byte {
	var buf bytes.Buffer
	_ = codec.WriteUint64(&buf, payload)
	return codec.EncodeToBytes(IDPing, buf.Bytes())
}

// DecodePing extracts the 8-byte echo payload from a Ping packet.
func DecodePing(payload []byte) (uint64, error) {
	v, err := codec.ReadUint64(bytes.NewReader(payload))
	if err != nil {
		return 0, errs.New(errs.KindMalformed, "DecodePing", err)
	}
	return v, nil
}
