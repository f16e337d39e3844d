package protocol

import (
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vearne/framereplay/consts"
)

const CodecJsonName = "json"

func init() {
	RegisterCodec(CodecJson{})
}

// CodecJson writes one JSON object per record. Payload is hex encoded, the same
// way the replay log prints received bytes, so transcripts can be grepped.
type CodecJson struct{}

type jsonMessage struct {
	Meta      Meta      `json:"meta"`
	Direction Direction `json:"direction"`
	Index     int       `json:"index"`
	Size      int       `json:"size"`
	Payload   string    `json:"payload"`
}

func (c CodecJson) Marshal(v *Message) ([]byte, error) {
	return json.Marshal(&jsonMessage{
		Meta:      v.Meta,
		Direction: v.Direction,
		Index:     v.Index,
		Size:      len(v.Payload),
		Payload:   hex.EncodeToString(v.Payload),
	})
}

func (c CodecJson) Unmarshal(data []byte, v *Message) error {
	var jm jsonMessage
	if err := json.Unmarshal(data, &jm); err != nil {
		return errors.Wrapf(consts.ErrProtocol, "json:%v", err)
	}
	if jm.Direction != DirectionIn && jm.Direction != DirectionOut {
		return errors.Wrapf(consts.ErrProtocol, "direction:%q", jm.Direction)
	}
	payload, err := hex.DecodeString(jm.Payload)
	if err != nil {
		return errors.Wrapf(consts.ErrProtocol, "payload:%v", err)
	}
	if len(payload) != jm.Size {
		return errors.Wrapf(consts.ErrProtocol, "payload size %d, expected %d", len(payload), jm.Size)
	}
	if len(payload) == 0 {
		payload = nil
	}
	v.Meta = jm.Meta
	v.Direction = jm.Direction
	v.Index = jm.Index
	v.Payload = payload
	return nil
}

func (c CodecJson) Name() string {
	return CodecJsonName
}
