package biz

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vearne/framereplay/config"
	"github.com/vearne/framereplay/consts"
	"github.com/vearne/framereplay/frame"
	"github.com/vearne/framereplay/protocol"
)

const waitTimeout = 3 * time.Second

// ---------- fakes ----------

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback even if the timer was stopped, like a timer racing its Stop.
func (t *fakeTimer) Fire() {
	t.f()
}

type fakeClock struct {
	armed chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{armed: make(chan *fakeTimer, 16)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	c.armed <- t
	return t
}

func (c *fakeClock) waitArmed(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case tm := <-c.armed:
		return tm
	case <-time.After(waitTimeout):
		t.Fatal("no timer armed")
		return nil
	}
}

func (c *fakeClock) assertNotArmed(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case tm := <-c.armed:
		t.Fatalf("unexpected timer armed, delay:%v", tm.d)
	case <-time.After(wait):
	}
}

type recordingDialer struct {
	net.Dialer
	mu     sync.Mutex
	writes [][]byte
}

func (d *recordingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &recordingConn{Conn: conn, d: d}, nil
}

func (d *recordingDialer) Writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.writes...)
}

type recordingConn struct {
	net.Conn
	d *recordingDialer
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.d.mu.Lock()
	c.d.writes = append(c.d.writes, append([]byte(nil), p...))
	c.d.mu.Unlock()
	return c.Conn.Write(p)
}

type memRecorder struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (m *memRecorder) Record(msg *protocol.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func (m *memRecorder) byDirection(dir protocol.Direction) []*protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*protocol.Message
	for _, msg := range m.msgs {
		if msg.Direction == dir {
			res = append(res, msg)
		}
	}
	return res
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (s *stateLog) hook(_, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, to)
}

func (s *stateLog) get() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.states...)
}

// ---------- helpers ----------

func startServer(t *testing.T, handle func(conn net.Conn)) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return ln.Addr().(*net.TCPAddr)
}

func testSettings(addr *net.TCPAddr, delayMS int, sendOnConnect bool) *config.AppSettings {
	return &config.AppSettings{
		ServerHost:      addr.IP.String(),
		ServerPort:      uint16(addr.Port),
		FrameDelayMS:    delayMS,
		SendOnConnect:   config.OneFlag(sendOnConnect),
		KeepAlivePeriod: 15 * time.Second,
	}
}

func runAsync(ctx context.Context, r *Replayer) chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- r.Run(ctx)
	}()
	return ch
}

func waitRun(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return")
		return nil
	}
}

func capturedBytes() []byte {
	return bytes.Join(frame.Captured(), nil)
}

// ---------- tests ----------

func TestReplaySendOnConnect(t *testing.T) {
	received := make(chan []byte, 1)
	addr := startServer(t, func(conn net.Conn) {
		buf := make([]byte, frame.TotalSize())
		_, err := io.ReadFull(conn, buf)
		if err != nil {
			received <- nil
			return
		}
		received <- buf
	})

	dialer := &recordingDialer{}
	states := &stateLog{}
	rec := &memRecorder{}
	r := NewReplayer(testSettings(addr, 0, true),
		WithDialer(dialer), WithRecorder(rec), WithStateHook(states.hook))

	err := waitRun(t, runAsync(context.Background(), r))
	assert.NoError(t, err)

	got := <-received
	assert.Equal(t, capturedBytes(), got)
	assert.Len(t, got, 529)

	writes := dialer.Writes()
	require.Len(t, writes, 4)
	for i, f := range frame.Captured() {
		assert.Equal(t, f, writes[i], "frame %d", i+1)
	}

	out := rec.byDirection(protocol.DirectionOut)
	require.Len(t, out, 4)
	for i, msg := range out {
		assert.Equal(t, i+1, msg.Index)
		assert.Equal(t, r.SessionID(), msg.Meta.UUID)
		assert.Equal(t, addr.String(), msg.Meta.RemoteAddr)
	}

	assert.Equal(t, 4, r.FrameIndex())
	assert.True(t, r.KickedOff())
	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, []State{StateConnected, StateSending, StateDone, StateClosed}, states.get())
}

func TestReplayWaitsForFirstChunk(t *testing.T) {
	accepted := make(chan struct{})
	goAhead := make(chan struct{})
	finish := make(chan struct{})
	received := make(chan []byte, 1)

	addr := startServer(t, func(conn net.Conn) {
		close(accepted)
		<-goAhead
		// the first chunk kicks off the replay, later ones must not
		for _, b := range []byte{0x01, 0x02, 0x03} {
			if _, err := conn.Write([]byte{b}); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		buf := make([]byte, frame.TotalSize())
		if _, err := io.ReadFull(conn, buf); err != nil {
			received <- nil
			return
		}
		received <- buf
		<-finish
	})

	clock := newFakeClock()
	dialer := &recordingDialer{}
	rec := &memRecorder{}
	r := NewReplayer(testSettings(addr, 100, false),
		WithDialer(dialer), WithClock(clock), WithRecorder(rec))
	ch := runAsync(context.Background(), r)

	<-accepted
	clock.assertNotArmed(t, 100*time.Millisecond)
	assert.Empty(t, dialer.Writes())
	close(goAhead)

	first := clock.waitArmed(t)
	assert.Equal(t, 100*time.Millisecond, first.d)

	// all inbound bytes observed before the first tick
	require.Eventually(t, func() bool {
		n := 0
		for _, msg := range rec.byDirection(protocol.DirectionIn) {
			n += len(msg.Payload)
		}
		return n == 3
	}, waitTimeout, 5*time.Millisecond)
	clock.assertNotArmed(t, 50*time.Millisecond)
	assert.Empty(t, dialer.Writes())

	first.Fire()
	for i := 1; i < 4; i++ {
		tm := clock.waitArmed(t)
		assert.Equal(t, 100*time.Millisecond, tm.d)
		tm.Fire()
	}

	select {
	case got := <-received:
		assert.Equal(t, capturedBytes(), got)
	case <-time.After(waitTimeout):
		t.Fatal("server did not receive the frames")
	}
	clock.assertNotArmed(t, 50*time.Millisecond)
	assert.Len(t, dialer.Writes(), 4)

	close(finish)
	assert.NoError(t, waitRun(t, ch))

	in := rec.byDirection(protocol.DirectionIn)
	for i, msg := range in {
		assert.Equal(t, i+1, msg.Index)
	}
	assert.Equal(t, 4, r.FrameIndex())
	assert.Equal(t, StateClosed, r.State())
}

func TestReplayFrameDelay(t *testing.T) {
	cases := []struct {
		delayMS  int
		expected time.Duration
	}{
		{0, 0},
		{25, 25 * time.Millisecond},
		{100, 100 * time.Millisecond},
		{-1, 0},
	}

	for _, c := range cases {
		t.Run(strconv.Itoa(c.delayMS), func(t *testing.T) {
			addr := startServer(t, func(conn net.Conn) {
				io.Copy(io.Discard, conn)
			})
			clock := newFakeClock()
			rec := &memRecorder{}
			r := NewReplayer(testSettings(addr, c.delayMS, true), WithClock(clock), WithRecorder(rec))
			ctx, cancel := context.WithCancel(context.Background())
			ch := runAsync(ctx, r)

			for i := 0; i < 4; i++ {
				tm := clock.waitArmed(t)
				assert.Equal(t, c.expected, tm.d)
				tm.Fire()
			}
			require.Eventually(t, func() bool {
				return len(rec.byDirection(protocol.DirectionOut)) == 4
			}, waitTimeout, 5*time.Millisecond)
			clock.assertNotArmed(t, 50*time.Millisecond)

			cancel()
			assert.NoError(t, waitRun(t, ch))
			assert.Equal(t, 4, r.FrameIndex())
		})
	}
}

func TestReplayCancelsTimerOnClose(t *testing.T) {
	// the server hangs up right away, frames are still pending
	addr := startServer(t, func(conn net.Conn) {})

	clock := newFakeClock()
	dialer := &recordingDialer{}
	r := NewReplayer(testSettings(addr, 25, true), WithDialer(dialer), WithClock(clock))
	ch := runAsync(context.Background(), r)

	tm := clock.waitArmed(t)
	assert.NoError(t, waitRun(t, ch))
	assert.True(t, tm.Stopped())

	// a tick racing the close is dropped
	tm.Fire()
	clock.assertNotArmed(t, 50*time.Millisecond)
	assert.Empty(t, dialer.Writes())
	assert.Equal(t, 0, r.FrameIndex())
	assert.Equal(t, StateClosed, r.State())
}

func TestReplayConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	states := &stateLog{}
	r := NewReplayer(testSettings(addr, 0, true), WithStateHook(states.hook))
	err = waitRun(t, runAsync(context.Background(), r))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect "+addr.String())
	assert.Equal(t, StateErrored, r.State())
	assert.False(t, r.KickedOff())
	assert.Equal(t, []State{StateErrored}, states.get())
}

func TestReplayContextCancel(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		io.Copy(io.Discard, conn)
	})

	clock := newFakeClock()
	dialer := &recordingDialer{}
	states := &stateLog{}
	r := NewReplayer(testSettings(addr, 0, false),
		WithDialer(dialer), WithClock(clock), WithStateHook(states.hook))
	ctx, cancel := context.WithCancel(context.Background())
	ch := runAsync(ctx, r)

	require.Eventually(t, func() bool {
		s := states.get()
		return len(s) > 0 && s[len(s)-1] == StateWaitingForData
	}, waitTimeout, 5*time.Millisecond)
	cancel()

	assert.NoError(t, waitRun(t, ch))
	clock.assertNotArmed(t, 20*time.Millisecond)
	assert.Empty(t, dialer.Writes())
	assert.False(t, r.KickedOff())
	assert.Equal(t, []State{StateConnected, StateWaitingForData, StateClosed}, states.get())
}

type pipeDialer struct {
	conn net.Conn
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.conn, nil
}

type brokenConn struct {
	net.Conn
}

func (c *brokenConn) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestReplayWriteError(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	clock := newFakeClock()
	states := &stateLog{}
	r := NewReplayer(&config.AppSettings{ServerHost: "127.0.0.1", ServerPort: 4000, SendOnConnect: true},
		WithDialer(&pipeDialer{conn: &brokenConn{Conn: client}}), WithClock(clock),
		WithStateHook(states.hook))
	ch := runAsync(context.Background(), r)

	clock.waitArmed(t).Fire()

	err := waitRun(t, ch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write frame 1")
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, StateErrored, r.State())
	assert.Equal(t, 0, r.FrameIndex())
	clock.assertNotArmed(t, 20*time.Millisecond)
	assert.Equal(t, []State{StateConnected, StateSending, StateErrored}, states.get())
}

func TestReplayNoFrames(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {})

	clock := newFakeClock()
	states := &stateLog{}
	r := NewReplayer(testSettings(addr, 25, true),
		WithClock(clock), WithFrames(nil), WithStateHook(states.hook))

	assert.NoError(t, waitRun(t, runAsync(context.Background(), r)))
	clock.assertNotArmed(t, 20*time.Millisecond)
	assert.Equal(t, []State{StateConnected, StateSending, StateDone, StateClosed}, states.get())
}

func TestReplayRunOnce(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {})

	r := NewReplayer(testSettings(addr, 0, false))
	assert.NoError(t, waitRun(t, runAsync(context.Background(), r)))
	assert.Equal(t, consts.ErrAlreadyStarted, r.Run(context.Background()))
}

func TestReplayIndependentInstances(t *testing.T) {
	a := NewReplayer(&config.AppSettings{ServerHost: "127.0.0.1", ServerPort: 1})
	b := NewReplayer(&config.AppSettings{ServerHost: "127.0.0.1", ServerPort: 2})
	assert.NotEqual(t, a.SessionID(), b.SessionID())

	a.frames[0][0] = 0xff
	assert.Equal(t, byte(0x81), b.frames[0][0])
	assert.Equal(t, StateIdle, a.State())
}

func TestReplayClosesConnOnPeerClose(t *testing.T) {
	peerRead := make(chan error, 1)
	addr := startServer(t, func(conn net.Conn) {
		// half-close: the client sees EOF, the server can still read
		if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
			peerRead <- err
			return
		}
		conn.SetReadDeadline(time.Now().Add(waitTimeout))
		_, err := conn.Read(make([]byte, 1))
		peerRead <- err
	})

	r := NewReplayer(testSettings(addr, 0, false))
	assert.NoError(t, waitRun(t, runAsync(context.Background(), r)))
	assert.Equal(t, StateClosed, r.State())

	select {
	case err := <-peerRead:
		assert.Equal(t, io.EOF, err)
	case <-time.After(2 * waitTimeout):
		t.Fatal("server read did not return")
	}
}

type blockingConn struct {
	net.Conn
	once    sync.Once
	writing chan struct{}
}

func (c *blockingConn) Write(p []byte) (int, error) {
	c.once.Do(func() { close(c.writing) })
	return c.Conn.Write(p)
}

func TestReplayBlockedWrite(t *testing.T) {
	cases := []struct {
		name         string
		writeTimeout time.Duration
		cancel       bool
		state        State
		errContains  string
	}{
		{"cancel", 0, true, StateClosed, ""},
		{"timeout", 50 * time.Millisecond, false, StateErrored, "write frame 1"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			// nobody reads the server end, so every write blocks
			client, server := net.Pipe()
			defer server.Close()
			conn := &blockingConn{Conn: client, writing: make(chan struct{})}

			clock := newFakeClock()
			settings := &config.AppSettings{ServerHost: "127.0.0.1", ServerPort: 4000,
				SendOnConnect: true, WriteTimeout: c.writeTimeout}
			r := NewReplayer(settings, WithDialer(&pipeDialer{conn: conn}), WithClock(clock))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			ch := runAsync(ctx, r)

			clock.waitArmed(t).Fire()
			select {
			case <-conn.writing:
			case <-time.After(waitTimeout):
				t.Fatal("write not started")
			}
			if c.cancel {
				cancel()
			}

			err := waitRun(t, ch)
			if c.errContains == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.errContains)
			}
			assert.Equal(t, c.state, r.State())
			assert.Equal(t, 0, r.FrameIndex())
			clock.assertNotArmed(t, 20*time.Millisecond)
		})
	}
}
