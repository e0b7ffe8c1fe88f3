package transport_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/motionpad/frame"
	"github.com/Alia5/motionpad/internal/log"
	"github.com/Alia5/motionpad/transport"
)

type pipeStream struct {
	net.Conn
	name string
}

func (p *pipeStream) PeerName() string { return p.name }

type dialResult struct {
	stream transport.Stream
	err    error
}

type pendingDial struct {
	endpoint string
	ctx      context.Context
	result   chan dialResult
}

type fakeDialer struct {
	dials     chan *pendingDial
	ignoreCtx bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dials: make(chan *pendingDial, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (transport.Stream, error) {
	p := &pendingDial{endpoint: endpoint, ctx: ctx, result: make(chan dialResult, 1)}
	d.dials <- p
	if d.ignoreCtx {
		r := <-p.result
		return r.stream, r.err
	}
	select {
	case r := <-p.result:
		return r.stream, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) next(t *testing.T) *pendingDial {
	t.Helper()
	select {
	case p := <-d.dials:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no dial attempt")
		return nil
	}
}

type event struct {
	kind string
	arg  string
}

type recorder struct {
	mu     sync.Mutex
	events []event
	ch     chan event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan event, 32)}
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.ch <- e
}

func (r *recorder) OnConnected(peer string)    { r.add(event{"connected", peer}) }
func (r *recorder) OnDisconnected()            { r.add(event{"disconnected", ""}) }
func (r *recorder) OnDataReceived(data []byte) { r.add(event{"data", string(data)}) }
func (r *recorder) OnError(msg string)         { r.add(event{"error", msg}) }

func (r *recorder) wait(t *testing.T) event {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no observer event")
		return event{}
	}
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func newSession(d transport.Dialer, obs transport.Observer, cfg transport.Config) *transport.Session {
	return transport.NewSession(d, frame.Binary{}, obs, cfg, log.Discard(), log.NewRaw(nil))
}

// connect drives a session to Connected and returns the host end of the pipe.
func connect(t *testing.T, s *transport.Session, d *fakeDialer, rec *recorder, peer string) net.Conn {
	t.Helper()
	require.NoError(t, s.Connect("test://"+peer))
	p := d.next(t)
	local, remote := net.Pipe()
	p.result <- dialResult{stream: &pipeStream{Conn: local, name: peer}}
	assert.Equal(t, event{"connected", peer}, rec.wait(t))
	require.Equal(t, transport.Connected, s.State())
	t.Cleanup(func() { _ = remote.Close() })
	return remote
}

func readFrames(conn net.Conn, n int) <-chan []*frame.ControlFrame {
	out := make(chan []*frame.ControlFrame, 1)
	go func() {
		r := bufio.NewReader(conn)
		var frames []*frame.ControlFrame
		for i := 0; i < n; i++ {
			f, err := frame.Binary{}.Decode(r)
			if err != nil {
				break
			}
			frames = append(frames, f)
		}
		out <- frames
	}()
	return out
}

func TestSession_SendWhileIdle(t *testing.T) {
	s := newSession(newFakeDialer(), newRecorder(), transport.DefaultConfig())

	err := s.Send(&frame.ControlFrame{LeftX: 0.5})
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.Equal(t, transport.Idle, s.State())
}

func TestSession_ConnectSendDisconnect(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	s := newSession(d, rec, transport.DefaultConfig())

	host := connect(t, s, d, rec, "host")
	assert.Equal(t, "host", s.Peer())
	assert.Equal(t, "test://host", s.Endpoint())

	got := readFrames(host, 1)
	require.NoError(t, s.Send(&frame.ControlFrame{LeftX: 0.5, LeftY: -0.5, Timestamp: 16}))
	frames := <-got
	require.Len(t, frames, 1)
	assert.Equal(t, float32(0.5), frames[0].LeftX)
	assert.Equal(t, float32(-0.5), frames[0].LeftY)
	assert.Equal(t, uint64(16), frames[0].Timestamp)

	s.Disconnect()
	assert.Equal(t, event{"disconnected", ""}, rec.wait(t))
	assert.Equal(t, transport.Idle, s.State())

	_, err := host.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	// Idempotent.
	s.Disconnect()
	assert.Len(t, rec.snapshot(), 2)
	assert.ErrorIs(t, s.Send(&frame.ControlFrame{}), transport.ErrNotConnected)
}

func TestSession_ConnectTwiceCancelsFirst(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	s := newSession(d, rec, transport.DefaultConfig())

	require.NoError(t, s.Connect("test://first"))
	first := d.next(t)
	require.NoError(t, s.Connect("test://second"))
	second := d.next(t)

	select {
	case <-first.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("first attempt was not cancelled")
	}

	local, remote := net.Pipe()
	defer remote.Close()
	second.result <- dialResult{stream: &pipeStream{Conn: local, name: "second"}}

	assert.Equal(t, event{"connected", "second"}, rec.wait(t))
	assert.Equal(t, transport.Connected, s.State())
	assert.Equal(t, []event{{"connected", "second"}}, rec.snapshot())
}

func TestSession_SupersededSuccessIsDiscarded(t *testing.T) {
	d := newFakeDialer()
	d.ignoreCtx = true
	rec := newRecorder()
	s := newSession(d, rec, transport.DefaultConfig())

	require.NoError(t, s.Connect("test://first"))
	first := d.next(t)
	require.NoError(t, s.Connect("test://second"))
	second := d.next(t)

	// The stale attempt completes successfully after being superseded.
	staleLocal, staleRemote := net.Pipe()
	defer staleRemote.Close()
	first.result <- dialResult{stream: &pipeStream{Conn: staleLocal, name: "first"}}

	// Its stream is closed rather than adopted.
	_ = staleRemote.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := staleRemote.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, transport.Connecting, s.State())

	second.result <- dialResult{err: errors.New("host unreachable")}
	e := rec.wait(t)
	assert.Equal(t, "error", e.kind)
	assert.Contains(t, e.arg, "host unreachable")
	assert.Len(t, rec.snapshot(), 1)
}

func TestSession_ConnectFailureNeedsAcknowledge(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	s := newSession(d, rec, transport.DefaultConfig())

	require.NoError(t, s.Connect("test://host"))
	d.next(t).result <- dialResult{err: errors.New("service UUID mismatch")}

	e := rec.wait(t)
	assert.Equal(t, "error", e.kind)
	assert.Contains(t, e.arg, "connection attempt failed")
	assert.Contains(t, e.arg, "service UUID mismatch")
	assert.Equal(t, transport.Failed, s.State())
	assert.ErrorIs(t, s.Failure(), transport.ErrConnectionAttemptFailed)

	assert.ErrorIs(t, s.Connect("test://host"), transport.ErrNotAcknowledged)
	assert.ErrorIs(t, s.Send(&frame.ControlFrame{}), transport.ErrNotConnected)
	s.Disconnect()
	assert.Equal(t, transport.Failed, s.State())

	s.Acknowledge()
	assert.Equal(t, transport.Idle, s.State())
	assert.NoError(t, s.Failure())

	connect(t, s, d, rec, "host")
}

func TestSession_ConnectTimeout(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	cfg := transport.DefaultConfig()
	cfg.ConnectTimeout = 20 * time.Millisecond
	s := newSession(d, rec, cfg)

	require.NoError(t, s.Connect("test://slow"))
	d.next(t)

	e := rec.wait(t)
	assert.Equal(t, "error", e.kind)
	assert.ErrorIs(t, s.Failure(), context.DeadlineExceeded)
}

func TestSession_DisconnectWhileConnecting(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	s := newSession(d, rec, transport.DefaultConfig())

	require.NoError(t, s.Connect("test://host"))
	p := d.next(t)
	s.Disconnect()

	assert.Equal(t, event{"disconnected", ""}, rec.wait(t))
	<-p.ctx.Done()
	assert.Equal(t, transport.Idle, s.State())

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
}

func TestSession_SendTimeoutFails(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	cfg := transport.DefaultConfig()
	cfg.WriteTimeout = 20 * time.Millisecond
	s := newSession(d, rec, cfg)
	connect(t, s, d, rec, "host")

	// Nobody reads the host end, so the write cannot complete.
	start := time.Now()
	err := s.Send(&frame.ControlFrame{})
	assert.ErrorIs(t, err, transport.ErrSendFailed)
	assert.Less(t, time.Since(start), time.Second)

	e := rec.wait(t)
	assert.Equal(t, "error", e.kind)
	assert.Contains(t, e.arg, "send failed")
	assert.Equal(t, transport.Failed, s.State())
	assert.ErrorIs(t, s.Send(&frame.ControlFrame{}), transport.ErrNotConnected)
}

func TestSession_EncodeErrorKeepsLink(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	s := newSession(d, rec, transport.DefaultConfig())
	connect(t, s, d, rec, "host")

	err := s.Send(&frame.ControlFrame{LeftX: float32(math.NaN())})
	assert.ErrorIs(t, err, transport.ErrEncode)
	assert.ErrorIs(t, err, frame.ErrNonFinite)
	assert.Equal(t, transport.Connected, s.State())
}

func TestSession_TimestampsNeverDecrease(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	s := newSession(d, rec, transport.DefaultConfig())
	host := connect(t, s, d, rec, "host")

	got := readFrames(host, 3)
	for _, ts := range []uint64{10, 5, 20} {
		require.NoError(t, s.Send(&frame.ControlFrame{Timestamp: ts}))
	}
	frames := <-got
	require.Len(t, frames, 3)
	assert.Equal(t, uint64(10), frames[0].Timestamp)
	assert.Equal(t, uint64(10), frames[1].Timestamp)
	assert.Equal(t, uint64(20), frames[2].Timestamp)
}

func TestSession_InboundDataAndPeerClose(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	s := newSession(d, rec, transport.DefaultConfig())
	host := connect(t, s, d, rec, "host")

	_, err := host.Write([]byte("rumble"))
	require.NoError(t, err)
	assert.Equal(t, event{"data", "rumble"}, rec.wait(t))

	require.NoError(t, host.Close())
	e := rec.wait(t)
	assert.Equal(t, "error", e.kind)
	assert.Equal(t, transport.Failed, s.State())
	assert.ErrorIs(t, s.Failure(), transport.ErrConnectionLost)
}

func TestSession_ReconnectReplacesLink(t *testing.T) {
	d := newFakeDialer()
	rec := newRecorder()
	s := newSession(d, rec, transport.DefaultConfig())
	old := connect(t, s, d, rec, "old")

	require.NoError(t, s.Connect("test://new"))
	assert.Equal(t, event{"disconnected", ""}, rec.wait(t))
	_, err := old.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	p := d.next(t)
	local, remote := net.Pipe()
	defer remote.Close()
	p.result <- dialResult{stream: &pipeStream{Conn: local, name: "new"}}
	assert.Equal(t, event{"connected", "new"}, rec.wait(t))
}

func TestServiceUUID(t *testing.T) {
	assert.Equal(t, "00001101-0000-1000-8000-00805f9b34fb", transport.ServiceUUID.String())
}
