package consts

import "errors"

// set by -ldflags at build time
var (
	Version   = "v0.0.1"
	BuildTime = "unknown"
	GitTag    = "unknown"
)

// RecordVersion is written into every session record
const RecordVersion = 1

var (
	ErrProtocol       = errors.New("malformed session record")
	ErrUnknownCodec   = errors.New("unknown codec")
	ErrAlreadyStarted = errors.New("replayer can only run once")
)
