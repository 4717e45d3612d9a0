// Package bootstrap wires the framework together: the builder DSL
// applications configure, the boss loops running the acceptor and
// the idle scanner, and the shared connection registry.
package bootstrap

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/pipenet/pipenet/channel"
	"github.com/pipenet/pipenet/eventloop"
	"github.com/pipenet/pipenet/pipeline"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// session is one live connection as seen by the acceptor and the
// idle scanner.
type session struct {
	ch   *channel.Channel
	pipe *pipeline.InboundPipeline
	loop *eventloop.Loop
}

// Bootstrap builds and runs a server: bind address, worker group,
// per-connection pipeline factories, channel options. Use
// NewServerBootstrap(), configure, then Start().
type Bootstrap struct {
	*zerolog.Logger

	Options Options // modify before Start()

	inFactory  pipeline.InboundFactory
	outFactory pipeline.OutboundFactory

	boss    *eventloop.Group // loop 0 accepts, loop 1 scans for idle
	workers *eventloop.Group

	ln      net.Listener
	chID    atomic.Uint64
	conns   *xsync.MapOf[uint64, *session] // shared with the scanner
	scanner *idleScanner

	started atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
}

// NewServerBootstrap returns a server builder with DefaultOptions.
func NewServerBootstrap() *Bootstrap {
	return &Bootstrap{
		Options: DefaultOptions,
		conns:   xsync.NewMapOf[uint64, *session](),
		done:    make(chan struct{}),
	}
}

// Bind sets the listener host and port.
func (b *Bootstrap) Bind(host string, port uint16) *Bootstrap {
	b.Options.Host = host
	b.Options.Port = port
	return b
}

// WorkerGroup sets the number of worker event loops.
func (b *Bootstrap) WorkerGroup(n int) *Bootstrap {
	b.Options.Workers = n
	return b
}

// InitInboundPipeline sets the per-connection inbound handler
// factory. Invoked once per connection; must be safe for concurrent
// invocation.
func (b *Bootstrap) InitInboundPipeline(f pipeline.InboundFactory) *Bootstrap {
	b.inFactory = f
	return b
}

// InitOutboundPipeline sets the per-connection outbound handler
// factory. Invoked once per connection; must be safe for concurrent
// invocation.
func (b *Bootstrap) InitOutboundPipeline(f pipeline.OutboundFactory) *Bootstrap {
	b.outFactory = f
	return b
}

// OptTTLMs sets the IP TTL channel option.
func (b *Bootstrap) OptTTLMs(ttl int) *Bootstrap {
	b.Options.Channel.TTLMs = ttl
	return b
}

// OptLingerMs sets the SO_LINGER channel option.
func (b *Bootstrap) OptLingerMs(linger int) *Bootstrap {
	b.Options.Channel.LingerMs = linger
	return b
}

// OptNodelay sets the TCP_NODELAY channel option.
func (b *Bootstrap) OptNodelay(nodelay bool) *Bootstrap {
	b.Options.Channel.Nodelay = nodelay
	return b
}

// OptKeepAliveMs sets the keep-alive period channel option.
func (b *Bootstrap) OptKeepAliveMs(ms int) *Bootstrap {
	b.Options.Channel.KeepAliveMs = ms
	return b
}

// OptRecvBufSize sets the SO_RCVBUF channel option.
func (b *Bootstrap) OptRecvBufSize(size int) *Bootstrap {
	b.Options.Channel.RecvBufSize = size
	return b
}

// OptSendBufSize sets the SO_SNDBUF channel option.
func (b *Bootstrap) OptSendBufSize(size int) *Bootstrap {
	b.Options.Channel.SendBufSize = size
	return b
}

// OptReadIdleTimeoutMs sets the idle-eviction threshold; 0 disables
// eviction.
func (b *Bootstrap) OptReadIdleTimeoutMs(ms int64) *Bootstrap {
	b.Options.Channel.ReadIdleTimeoutMs = ms
	return b
}

// Start binds the listener and starts the worker and boss loops.
// Returns once the listener is bound and accepting. Panics on a
// misconfigured server or a failed bind: fail-fast, by contract.
func (b *Bootstrap) Start() {
	if b.started.Swap(true) || b.stopped.Load() {
		return
	}

	opts := &b.Options
	if opts.Logger != nil {
		b.Logger = opts.Logger
	} else {
		nop := zerolog.Nop()
		b.Logger = &nop
	}
	if b.inFactory == nil || b.outFactory == nil {
		panic("bootstrap: pipeline factories not set")
	}
	if opts.Workers <= 0 {
		panic("bootstrap: worker group not set")
	}
	opts.Channel.Logger = b.Logger

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(int(opts.Port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		panic("bootstrap: bind " + addr + ": " + err.Error())
	}
	b.ln = ln
	b.Info().Str("host", opts.Host).Uint16("port", opts.Port).Msg("server listening")

	b.workers = eventloop.NewGroup(opts.Workers, b.Logger)
	for _, l := range b.workers.Loops() {
		l.OnDetach = func(id uint64) { b.conns.Delete(id) }
	}
	b.workers.Run()

	b.boss = eventloop.NewGroup(2, b.Logger)
	b.boss.Run()

	b.scanner = newIdleScanner(b.Logger, b.conns)
	b.boss.Get(1).Execute(b.scanner.run)
	b.boss.Get(0).Execute(b.acceptLoop)
}

// acceptLoop accepts connections until the listener closes, building
// the channel and its pipeline pair and handing both to a worker.
func (b *Bootstrap) acceptLoop() {
	for !b.stopped.Load() {
		if lim := b.Options.AcceptLimit; lim != nil {
			lim.Wait(context.Background())
		}

		conn, err := b.ln.Accept()
		if err != nil {
			if b.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			b.Warn().Err(err).Msg("accept")
			continue
		}

		// dense ids; collisions after uint64 wraparound are assumed
		// impossible at the intended concurrency scale
		id := b.chID.Add(1)
		w := b.workers.Get(id)

		ch := channel.New(id, b.Options.Channel, w, conn)
		out := pipeline.NewOutbound(b.outFactory(), ch, w)
		in := pipeline.NewInbound(b.inFactory(), ch, w, out)

		if err := w.Attach(id, ch, in); err != nil {
			ch.Close()
			continue
		}

		b.conns.Store(id, &session{ch: ch, pipe: in, loop: w})
		b.scanner.watch(id, ch)

		b.Debug().Uint64("ch", id).Stringer("remote", conn.RemoteAddr()).Msg("accepted")
	}
}

// Addr returns the bound listener address, or nil before Start().
func (b *Bootstrap) Addr() net.Addr {
	if b.ln == nil {
		return nil
	}
	return b.ln.Addr()
}

// Terminate closes the listener and shuts down the scanner and all
// loops. In-flight callbacks complete; accepted but un-attached
// sockets are dropped.
func (b *Bootstrap) Terminate() {
	if b.stopped.Swap(true) {
		return
	}
	if !b.started.Load() {
		close(b.done)
		return
	}
	b.ln.Close()
	b.scanner.stop()
	b.workers.ShutdownAll()
	b.boss.ShutdownAll()
	close(b.done)
	b.Info().Msg("server terminated")
}

// Wait blocks until Terminate() is called.
func (b *Bootstrap) Wait() {
	<-b.done
}
