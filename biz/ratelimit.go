package biz

import (
	"golang.org/x/time/rate"

	slog "github.com/vearne/simplelog"
)

// NewRateLimit caps recorded inbound chunks at qps per second with a burst of
// one second worth of chunks. qps <= 0 disables the cap and returns nil.
func NewRateLimit(qps int) Limiter {
	if qps <= 0 {
		return nil
	}
	slog.Debug("[EMITTER] inbound records limited to %v/s", qps)
	return rate.NewLimiter(rate.Limit(qps), qps)
}
