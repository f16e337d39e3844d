package protocol

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vearne/framereplay/consts"
)

const CodecSimpleName = "simple"

func init() {
	RegisterCodec(CodecSimple{})
}

type CodecSimple struct{}

func (c CodecSimple) Marshal(msg *Message) ([]byte, error) {
	buff := bytes.NewBuffer(make([]byte, 0, 64+2*len(msg.Payload)))
	// line 1
	//{version} {uuid} {timestamp} {direction} {index} {local} {remote}
	buff.WriteString(fmt.Sprintf("%d %s %d %s %d %s %s", msg.Meta.Version, msg.Meta.UUID,
		msg.Meta.Timestamp, msg.Direction, msg.Index,
		placeholder(msg.Meta.LocalAddr), placeholder(msg.Meta.RemoteAddr)))
	buff.Write([]byte{'\n'})
	// line 2
	// payload
	buff.WriteString(hex.EncodeToString(msg.Payload))
	buff.Write([]byte{'\n'})
	return buff.Bytes(), nil
}

func (c CodecSimple) Unmarshal(data []byte, msg *Message) error {
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte{'\n'})
	if len(lines) != 2 {
		return consts.ErrProtocol
	}
	// line 1
	strList := strings.Split(string(lines[0]), " ")
	if len(strList) != 7 {
		return consts.ErrProtocol
	}
	var err error
	msg.Meta.Version, err = strconv.Atoi(strList[0])
	if err != nil {
		return errors.Wrap(consts.ErrProtocol, err.Error())
	}
	msg.Meta.UUID = strList[1]
	msg.Meta.Timestamp, err = strconv.ParseInt(strList[2], 10, 64)
	if err != nil {
		return errors.Wrap(consts.ErrProtocol, err.Error())
	}
	msg.Direction = Direction(strList[3])
	if msg.Direction != DirectionIn && msg.Direction != DirectionOut {
		return errors.Wrapf(consts.ErrProtocol, "direction %q", strList[3])
	}
	msg.Index, err = strconv.Atoi(strList[4])
	if err != nil {
		return errors.Wrap(consts.ErrProtocol, err.Error())
	}
	msg.Meta.LocalAddr = unplaceholder(strList[5])
	msg.Meta.RemoteAddr = unplaceholder(strList[6])
	// line 2
	msg.Payload, err = hex.DecodeString(string(lines[1]))
	if err != nil {
		return errors.Wrap(consts.ErrProtocol, err.Error())
	}
	return nil
}

func (c CodecSimple) Name() string {
	return CodecSimpleName
}

// empty fields would break the space separated header
func placeholder(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func unplaceholder(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
