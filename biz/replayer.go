package biz

import (
	"context"
	"encoding/hex"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vearne/framereplay/config"
	"github.com/vearne/framereplay/consts"
	"github.com/vearne/framereplay/frame"
	"github.com/vearne/framereplay/protocol"
	slog "github.com/vearne/simplelog"
)

const readBufferSize = 32 * 1024

type eventKind int

const (
	eventData eventKind = iota
	eventTick
	eventError
	eventClose
)

type event struct {
	kind eventKind
	data []byte
	err  error
}

type Option func(*Replayer)

func WithDialer(d Dialer) Option {
	return func(r *Replayer) {
		r.dialer = d
	}
}

func WithClock(c Clock) Option {
	return func(r *Replayer) {
		r.clock = c
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Replayer) {
		r.recorder = rec
	}
}

// WithFrames replaces the captured frames, mostly for tests.
func WithFrames(frames [][]byte) Option {
	return func(r *Replayer) {
		r.frames = frames
	}
}

// WithStateHook is called on the Run goroutine for every state transition.
func WithStateHook(hook func(from, to State)) Option {
	return func(r *Replayer) {
		r.stateHook = hook
	}
}

// Replayer opens one connection to the target and writes the captured frames
// in order, one per timer tick.
//
// Everything below "owned by Run" is only touched by the goroutine executing
// Run: socket reads and timer expirations are turned into events and handled
// there one at a time, so there is never more than one write in flight and
// never more than one timer armed.
type Replayer struct {
	addr          string
	frames        [][]byte
	frameDelay    time.Duration
	writeTimeout  time.Duration
	sendOnConnect bool

	dialer    Dialer
	clock     Clock
	recorder  Recorder
	stateHook func(from, to State)
	sessionID string

	// owned by Run
	ctx        context.Context
	conn       net.Conn
	localAddr  string
	remoteAddr string
	state      State
	frameIndex int
	kickedOff  bool
	timer      Timer
	chunkCount int
	err        error

	started int32
	events  chan event
	done    chan struct{}
}

func NewReplayer(settings *config.AppSettings, opts ...Option) *Replayer {
	r := &Replayer{
		addr:          settings.Addr(),
		frames:        frame.Captured(),
		frameDelay:    settings.FrameDelay(),
		writeTimeout:  settings.WriteTimeout,
		sendOnConnect: bool(settings.SendOnConnect),
		dialer:        &net.Dialer{KeepAlive: settings.KeepAlivePeriod},
		clock:         realClock{},
		sessionID:     uuid.NewString(),
		state:         StateIdle,
		events:        make(chan event),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run connects and drives the replay until the connection is closed or ctx is done.
// It returns nil after a peer close or cancellation and the socket error otherwise.
// A Replayer can only run once.
func (r *Replayer) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return consts.ErrAlreadyStarted
	}
	defer close(r.done)

	if err := r.connect(ctx); err != nil {
		r.onError(err)
		return r.err
	}
	// the handle dies with the loop, whatever ended it
	defer r.conn.Close()
	r.ctx = ctx
	r.onConnect()
	go r.readLoop(r.conn)
	go r.watchCancel(ctx, r.conn)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("replay stopped:%v", ctx.Err())
			r.conn.Close()
			r.onClose()
			return r.err
		case ev := <-r.events:
			switch ev.kind {
			case eventData:
				r.onData(ev.data)
			case eventTick:
				r.sendFrame()
			case eventError:
				r.onError(ev.err)
			case eventClose:
				r.onClose()
				return r.err
			}
		}
	}
}

func (r *Replayer) connect(ctx context.Context) error {
	conn, err := r.dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return errors.Wrapf(err, "connect %v", r.addr)
	}
	// detect half-open peers
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err = tcpConn.SetKeepAlive(true); err != nil {
			slog.Warn("SetKeepAlive:%v", err)
		}
	}

	r.conn = conn
	r.localAddr = conn.LocalAddr().String()
	r.remoteAddr = conn.RemoteAddr().String()
	slog.Info("Connected to %v", r.addr)
	r.setState(StateConnected)
	return nil
}

func (r *Replayer) onConnect() {
	if r.sendOnConnect {
		r.kickOff()
		return
	}
	slog.Info("Waiting for first server packet before sending frames...")
	r.setState(StateWaitingForData)
}

func (r *Replayer) onData(data []byte) {
	r.chunkCount++
	slog.Info("Received %d bytes: %s", len(data), hex.EncodeToString(data))
	r.record(protocol.DirectionIn, r.chunkCount, data)
	r.kickOff()
}

// kickOff starts the frame sequence at most once.
func (r *Replayer) kickOff() {
	if r.kickedOff || r.state.Terminal() {
		return
	}
	r.kickedOff = true
	r.setState(StateSending)
	r.scheduleNext()
}

func (r *Replayer) scheduleNext() {
	if r.frameIndex >= len(r.frames) {
		slog.Info("All captured frames sent.")
		r.timer = nil
		r.setState(StateDone)
		return
	}
	r.timer = r.clock.AfterFunc(r.frameDelay, func() {
		r.post(event{kind: eventTick})
	})
}

func (r *Replayer) sendFrame() {
	r.timer = nil
	if r.state != StateSending {
		slog.Debug("drop tick, state:%v", r.state)
		return
	}

	buf := r.frames[r.frameIndex]
	if r.writeTimeout > 0 {
		if err := r.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout)); err != nil {
			slog.Warn("SetWriteDeadline:%v", err)
		}
	}
	if _, err := r.conn.Write(buf); err != nil {
		if r.ctx.Err() != nil {
			// write interrupted by cancellation, Run reports the close
			slog.Debug("write frame %d interrupted:%v", r.frameIndex+1, err)
			return
		}
		r.onError(errors.Wrapf(err, "write frame %d", r.frameIndex+1))
		// the read loop reports the close
		r.conn.Close()
		return
	}
	slog.Info("Sent frame %d/%d (%d bytes)", r.frameIndex+1, len(r.frames), len(buf))
	r.frameIndex++
	r.record(protocol.DirectionOut, r.frameIndex, buf)
	r.scheduleNext()
}

func (r *Replayer) onClose() {
	slog.Info("Connection closed")
	r.stopTimer()
	if r.state != StateErrored {
		r.setState(StateClosed)
	}
}

func (r *Replayer) onError(err error) {
	slog.Error("Socket error: %v", err)
	if r.err == nil {
		r.err = err
	}
	r.stopTimer()
	r.setState(StateErrored)
}

// pending frames are abandoned on close or error
func (r *Replayer) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Replayer) setState(to State) {
	from := r.state
	if from == to {
		return
	}
	slog.Debug("state %v -> %v", from, to)
	r.state = to
	if r.stateHook != nil {
		r.stateHook(from, to)
	}
}

func (r *Replayer) record(dir protocol.Direction, index int, payload []byte) {
	if r.recorder == nil {
		return
	}
	r.recorder.Record(protocol.NewMessage(r.sessionID, r.localAddr, r.remoteAddr, dir, index, payload))
}

// watchCancel unblocks a Write stuck on a peer that stopped reading.
func (r *Replayer) watchCancel(ctx context.Context, conn net.Conn) {
	select {
	case <-ctx.Done():
		conn.Close()
	case <-r.done:
	}
}

// post hands an event to Run, it reports false once Run has returned.
func (r *Replayer) post(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// readLoop delivers inbound chunks as the transport hands them over, no reassembly.
func (r *Replayer) readLoop(conn net.Conn) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !r.post(event{kind: eventData, data: chunk}) {
				return
			}
		}
		if err != nil {
			if !isClosed(err) {
				if !r.post(event{kind: eventError, err: errors.Wrap(err, "read")}) {
					return
				}
			}
			r.post(event{kind: eventClose})
			return
		}
	}
}

func isClosed(err error) bool {
	return err == io.EOF || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// The accessors below are only meaningful once Run has returned.

func (r *Replayer) State() State {
	return r.state
}

func (r *Replayer) FrameIndex() int {
	return r.frameIndex
}

func (r *Replayer) KickedOff() bool {
	return r.kickedOff
}

func (r *Replayer) SessionID() string {
	return r.sessionID
}
