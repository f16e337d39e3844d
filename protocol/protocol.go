package protocol

import (
	"time"

	"github.com/vearne/framereplay/consts"
)

type Direction string

const (
	// DirectionOut is a captured frame written to the target
	DirectionOut Direction = "out"
	// DirectionIn is a chunk received from the target
	DirectionIn Direction = "in"
)

// Message is one session record handed to the outputs
type Message struct {
	Meta      Meta      `json:"meta"`
	Direction Direction `json:"direction"`
	// 1-based frame number (out) or chunk number (in)
	Index   int    `json:"index"`
	Payload []byte `json:"payload"`
}

type Meta struct {
	Version int    `json:"version"`
	UUID    string `json:"uuid"`
	// Nanosecond
	Timestamp  int64  `json:"timestamp"`
	LocalAddr  string `json:"localAddr"`
	RemoteAddr string `json:"remoteAddr"`
}

// NewMessage stamps a record with the current time.
func NewMessage(session, local, remote string, dir Direction, index int, payload []byte) *Message {
	return &Message{
		Meta: Meta{
			Version:    consts.RecordVersion,
			UUID:       session,
			Timestamp:  time.Now().UnixNano(),
			LocalAddr:  local,
			RemoteAddr: remote,
		},
		Direction: dir,
		Index:     index,
		Payload:   payload,
	}
}
