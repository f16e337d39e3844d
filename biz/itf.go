package biz

import (
	"context"
	"net"
	"time"

	"github.com/vearne/framereplay/protocol"
)

// PluginWriter is an interface for output plugins
type PluginWriter interface {
	Write(msg *protocol.Message) error
}

// Recorder receives every session record produced by the Replayer
type Recorder interface {
	Record(msg *protocol.Message)
}

type Limiter interface {
	Allow() bool
}

// Dialer opens the outbound connection, *net.Dialer satisfies it
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Clock arms one-shot timers
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	// Stop reports whether the timer was stopped before firing
	Stop() bool
}
