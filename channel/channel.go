// Package channel implements a single owned TCP connection and its
// per-connection state: identity, socket options, the last-read
// timestamp used for idle eviction, and the link to the outbound
// pipeline used by WriteAndFlush.
package channel

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pipenet/pipenet/bytebuf"
	"github.com/pipenet/pipenet/errkind"
	"github.com/rs/zerolog"
)

// Executor schedules work onto the single worker that owns a channel.
// Implemented by eventloop.Loop.
type Executor interface {
	// Execute submits task to the worker.
	Execute(task func())

	// ScheduleDelayed submits task to the worker after delay elapses.
	ScheduleDelayed(task func(), delay time.Duration)
}

// Outbound injects a message at the head of a channel's outbound
// pipeline. Implemented by pipeline.OutboundPipeline.
type Outbound interface {
	HeadWrite(msg any)
}

// Channel owns one live TCP connection from accept until close.
// A channel belongs to exactly one event loop; all its pipeline
// callbacks run on that loop's worker.
type Channel struct {
	*zerolog.Logger

	id   uint64
	conn net.Conn
	opts Options
	exec Executor

	closed   atomic.Bool  // monotonic; no I/O after true
	lastRead atomic.Int64 // ms epoch of the last socket read

	wmu sync.Mutex // serializes WriteBytes

	outbound Outbound // set once during pipeline binding
}

// New returns a channel owning conn, with opts applied to the socket.
func New(id uint64, opts Options, exec Executor, conn net.Conn) *Channel {
	ch := &Channel{
		id:   id,
		conn: conn,
		opts: opts,
		exec: exec,
	}

	if opts.Logger != nil {
		ch.Logger = opts.Logger
	} else {
		l := zerolog.Nop()
		ch.Logger = &l
	}

	ch.lastRead.Store(nowMs())
	ch.applySockOpts()

	return ch
}

// applySockOpts applies opts to the underlying TCP socket, continuing
// on per-option failures. Nodelay and keep-alive failures are logged;
// the others are ignored.
func (ch *Channel) applySockOpts() {
	tc, ok := ch.conn.(*net.TCPConn)
	if !ok {
		return // net.Pipe in tests, etc.
	}

	o := &ch.opts
	if err := tc.SetNoDelay(o.Nodelay); err != nil {
		ch.Warn().Err(err).Uint64("ch", ch.id).Msg("set nodelay")
	}
	if o.KeepAliveMs > 0 {
		if err := tc.SetKeepAlive(true); err == nil {
			tc.SetKeepAlivePeriod(time.Duration(o.KeepAliveMs) * time.Millisecond)
		} else {
			ch.Warn().Err(err).Uint64("ch", ch.id).Msg("set keep-alive")
		}
	}
	if o.LingerMs > 0 {
		tc.SetLinger(o.LingerMs / 1000)
	}
	if o.RecvBufSize > 0 {
		tc.SetReadBuffer(o.RecvBufSize)
	}
	if o.SendBufSize > 0 {
		tc.SetWriteBuffer(o.SendBufSize)
	}
}

// ID returns the connection id.
func (ch *Channel) ID() uint64 {
	return ch.id
}

// RemoteAddr returns the peer address.
func (ch *Channel) RemoteAddr() net.Addr {
	return ch.conn.RemoteAddr()
}

// LocalAddr returns the local address.
func (ch *Channel) LocalAddr() net.Addr {
	return ch.conn.LocalAddr()
}

// IsClosed returns true iff Close() has been called.
func (ch *Channel) IsClosed() bool {
	return ch.closed.Load()
}

// Executor returns the worker that owns this channel.
func (ch *Channel) Executor() Executor {
	return ch.exec
}

// LastReadTime returns the ms-epoch timestamp of the last read.
func (ch *Channel) LastReadTime() int64 {
	return ch.lastRead.Load()
}

// SetLastReadTime stamps the last-read time. The timestamp is kept
// monotonic non-decreasing.
func (ch *Channel) SetLastReadTime(ms int64) {
	for {
		old := ch.lastRead.Load()
		if ms <= old || ch.lastRead.CompareAndSwap(old, ms) {
			return
		}
	}
}

// ReadIdleTimeoutMs returns the configured read-idle threshold,
// 0 meaning the channel is never evicted.
func (ch *Channel) ReadIdleTimeoutMs() int64 {
	return ch.opts.ReadIdleTimeoutMs
}

// Read drains readable bytes into buf. Returns (0, nil) on peer
// close; an EAGAIN/EWOULDBLOCK error maps to KIND_WOULD_BLOCK, which
// the reactor does not surface.
func (ch *Channel) Read(buf []byte) (int, *errkind.Error) {
	if ch.closed.Load() {
		return 0, nil
	}
	n, err := ch.conn.Read(buf)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, nil
	}
	kerr := errkind.FromIO(err)
	if kerr.Kind == errkind.KIND_UNEXPECTED_EOF {
		return 0, nil // peer close
	}
	return 0, kerr
}

// WriteBytes puts the readable bytes of buf on the socket and
// flushes. A no-op once the channel is closed. net.Conn.Write
// already loops internally until the buffer is drained or a
// non-retryable error occurs.
func (ch *Channel) WriteBytes(buf *bytebuf.Buffer) error {
	if ch.closed.Load() {
		return nil
	}

	ch.wmu.Lock()
	defer ch.wmu.Unlock()

	b := buf.Bytes()
	for len(b) > 0 {
		n, err := ch.conn.Write(b)
		b = b[n:]
		if err != nil {
			return errkind.FromIO(err)
		}
	}
	return nil
}

// WriteAndFlush injects msg at the head of the outbound pipeline.
// Dropped once the channel is closed, or before a pipeline is bound.
func (ch *Channel) WriteAndFlush(msg any) {
	if ch.closed.Load() {
		return
	}
	if ch.outbound == nil {
		ch.Warn().Uint64("ch", ch.id).Msg("write with no outbound pipeline")
		return
	}
	ch.outbound.HeadWrite(msg)
}

// BindOutbound links the outbound pipeline used by WriteAndFlush.
// Called once during pipeline construction, before the channel is
// attached to its loop.
func (ch *Channel) BindOutbound(out Outbound) {
	ch.outbound = out
}

// Close marks the channel closed and closes the socket, waking any
// blocked read. Subsequent I/O is a no-op. The inactive event is
// fired by the owning loop, not here.
func (ch *Channel) Close() {
	if ch.closed.Swap(true) {
		return
	}
	ch.conn.Close()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
