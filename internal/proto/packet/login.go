package packet

import (
	"bytes"
	"crypto/md5"
	"encoding/json"

	"github.com/google/uuid"

	"go.lazytran.dev/lazytran/internal/codec"
	"go.lazytran.dev/lazytran/internal/errs"
)

// LoginStart is packet 0x00 in state Login: the client's declared
// username and (protocol-dependent) UUID (spec.md §4.7).
type LoginStart struct {
	Username string
	HasUUID  bool
	UUID     uuid.UUID
}

// DecodeLoginStart parses a LoginStart payload. The UUID field was made
// mandatory in protocol 759+; lazytran only targets ≥765 (spec.md §1) so
// it is always present, but decoding tolerates its absence defensively.
func DecodeLoginStart(payload []byte) (LoginStart, error) {
	r := bytes.NewReader(payload)
	var ls LoginStart

	name, err := codec.ReadString(r)
	if err != nil {
		return ls, errs.New(errs.KindMalformed, "DecodeLoginStart", err)
	}
	ls.Username = name

	if r.Len() >= 16 {
		raw, err := codec.ReadUUID(r)
		if err != nil {
			return ls, errs.New(errs.KindMalformed, "DecodeLoginStart", err)
		}
		ls.HasUUID = true
		ls.UUID = uuid.UUID(raw)
	}
	return ls, nil
}

// Encode re-serializes ls verbatim, used when the join dispatcher replays
// the buffered LoginStart into the backend (spec.md §4.7 Splice).
func (ls LoginStart) Encode() []byte {
	var buf bytes.Buffer
	_ = codec.WriteString(&buf, ls.Username)
	if ls.HasUUID {
		_ = codec.WriteUUID(&buf, ls.UUID)
	}
	return codec.EncodeToBytes(IDLoginStart, buf.Bytes())
}

// OfflineUUID derives the deterministic offline-mode UUID Minecraft uses
// when online-mode authentication is skipped: a version-3 (name-based,
// MD5) UUID over "OfflinePlayer:<name>" (spec.md §4.8 step 1).
func OfflineUUID(username string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + username))
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC 4122 variant
	return uuid.UUID(sum)
}

// LoginSuccess is packet 0x02 in state Login, sent by the lobby to
// complete a fake login (spec.md §4.8 step 1).
type LoginSuccess struct {
	UUID     uuid.UUID
	Username string
}

// Encode serializes a LoginSuccess frame. The properties array (skin,
// cape) is always empty since the lobby never needs real player data.
func (ls LoginSuccess) Encode() []byte {
	var buf bytes.Buffer
	_ = codec.WriteUUID(&buf, ls.UUID)
	_ = codec.WriteString(&buf, ls.Username)
	_ = codec.WriteVarInt(&buf, 0) // number of properties
	return codec.EncodeToBytes(IDLoginSuccess, buf.Bytes())
}

// EncodeLoginDisconnect builds a Login-state Disconnect packet
// (spec.md §4.7 Kick / §9 Router ban rejection) carrying a chat-component
// reason.
func EncodeLoginDisconnect(reason string) []byte {
	data, err := json.Marshal(ChatText{Text: reason})
	if err != nil {
		data = []byte(`{"text":""}`)
	}
	var buf bytes.Buffer
	_ = codec.WriteString(&buf, string(data))
	return codec.EncodeToBytes(IDLoginDisconnect, buf.Bytes())
}
