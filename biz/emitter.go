// Package biz 包含 framereplay 的核心业务逻辑：Replayer 负责连接与按序回放帧，
// Emitter 负责把会话记录分发给各个输出插件。
package biz

import (
	"io"

	"github.com/vearne/framereplay/protocol"
	slog "github.com/vearne/simplelog"
)

// Emitter 把每条会话记录写入所有输出插件。
// 入站记录受限流器约束，出站帧记录总是写入。
type Emitter struct {
	plugins *InOutPlugins
	limiter Limiter
	dropped int
	closed  bool
}

// NewEmitter 创建 Emitter，lim 可以为 nil，表示不限流。
func NewEmitter(plugins *InOutPlugins, lim Limiter) *Emitter {
	var e Emitter
	e.plugins = plugins
	e.limiter = lim
	return &e
}

// Record implements Recorder. Output errors are logged and never reach the Replayer.
func (e *Emitter) Record(msg *protocol.Message) {
	if e.closed || e.plugins == nil || len(e.plugins.Outputs) == 0 {
		return
	}
	if msg.Direction == protocol.DirectionIn && e.limiter != nil && !e.limiter.Allow() {
		e.dropped++
		slog.Debug("[EMITTER] rate limited, chunk:%v, dropped:%v", msg.Index, e.dropped)
		return
	}
	for _, dst := range e.plugins.Outputs {
		if err := dst.Write(msg); err != nil {
			slog.Error("[EMITTER] %v write:%v", dst, err)
		}
	}
}

// Dropped returns how many inbound records the limiter discarded.
func (e *Emitter) Dropped() int {
	return e.dropped
}

// Close closes every plugin implementing io.Closer. Records arriving
// afterwards are discarded.
func (e *Emitter) Close() {
	if e.closed {
		return
	}
	e.closed = true
	if e.plugins == nil {
		return
	}
	for _, p := range e.plugins.All {
		if cp, ok := p.(io.Closer); ok {
			if err := cp.Close(); err != nil {
				slog.Error("[EMITTER] close %v:%v", p, err)
			}
		}
	}
	e.plugins.Outputs = nil
	e.plugins.All = nil
}
