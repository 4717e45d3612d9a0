// Package eventloop implements the single-threaded reactors that own
// channels and drive their pipelines, and the round-robin group that
// distributes connections across reactors.
//
// Go has no portable edge-triggered selector, so readiness is
// modeled the way the ecosystem does it: one blocking read pump
// goroutine per connection posts events to the loop's bounded
// readiness queue, and a single worker goroutine consumes that queue
// together with the task queue. Every callback for a connection runs
// on its loop's worker, so per-connection handler state needs no
// locking.
package eventloop

import (
	"sync/atomic"
	"time"

	"github.com/pipenet/pipenet/bytebuf"
	"github.com/pipenet/pipenet/channel"
	"github.com/pipenet/pipenet/errkind"
	"github.com/pipenet/pipenet/pipeline"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

const (
	// pollTimeout bounds shutdown latency: the worker re-checks the
	// stopped flag at least this often.
	pollTimeout = 200 * time.Millisecond

	// readBufSize is the scratch buffer for one socket read.
	readBufSize = 65535

	// queueSize bounds the readiness and task queues.
	queueSize = 1024
)

// event is one readiness notification from a read pump.
type event struct {
	id   uint64
	data []byte
	err  *errkind.Error
	eof  bool
}

// Loop is a single-threaded reactor: a worker goroutine, a readiness
// queue fed by per-channel read pumps, a task queue, and the
// registries of owned channels and their inbound pipelines.
type Loop struct {
	*zerolog.Logger

	idx    uint
	tasks  chan func()
	events chan event
	quit   chan struct{}

	started atomic.Bool
	stopped atomic.Bool

	channels  *xsync.MapOf[uint64, *channel.Channel]
	pipelines *xsync.MapOf[uint64, *pipeline.InboundPipeline]

	// OnDetach, if non-nil, is called on the worker after a
	// connection's inactive event has fired and its registry
	// entries are gone. Set before Run().
	OnDetach func(id uint64)
}

// New returns a new Loop. Call Run() to start the worker.
func New(idx uint, logger *zerolog.Logger) *Loop {
	l := &Loop{
		idx:       idx,
		tasks:     make(chan func(), queueSize),
		events:    make(chan event, queueSize),
		quit:      make(chan struct{}),
		channels:  xsync.NewMapOf[uint64, *channel.Channel](),
		pipelines: xsync.NewMapOf[uint64, *pipeline.InboundPipeline](),
	}

	if logger != nil {
		sub := logger.With().Uint("loop", idx).Logger()
		l.Logger = &sub
	} else {
		nop := zerolog.Nop()
		l.Logger = &nop
	}

	return l
}

// Run starts the worker goroutine. Safe to call once.
func (l *Loop) Run() {
	if l.started.Swap(true) || l.stopped.Load() {
		return
	}
	go l.work()
}

// Shutdown stops the loop. The worker exits within the poll bound;
// in-flight callbacks complete, nothing is unwound.
func (l *Loop) Shutdown() {
	if l.stopped.Swap(true) {
		return
	}
	close(l.quit)
}

// Stopped returns true iff Shutdown() has been called.
func (l *Loop) Stopped() bool {
	return l.stopped.Load()
}

// Execute submits task to the worker. Dropped after shutdown.
func (l *Loop) Execute(task func()) {
	if l.stopped.Load() {
		return
	}
	select {
	case l.tasks <- task:
	case <-l.quit:
	}
}

// ScheduleDelayed submits task to the worker after delay elapses.
// Runs off the runtime timer heap; the worker never sleeps.
func (l *Loop) ScheduleDelayed(task func(), delay time.Duration) {
	time.AfterFunc(delay, func() { l.Execute(task) })
}

// Attach registers ch and its inbound pipeline with this loop and
// fires channelActive on the worker. Reads start flowing once the
// active event has been processed. Returns ErrStopped after
// Shutdown().
func (l *Loop) Attach(id uint64, ch *channel.Channel, pipe *pipeline.InboundPipeline) error {
	if l.stopped.Load() {
		return ErrStopped
	}

	l.pipelines.Store(id, pipe)
	l.channels.Store(id, ch)

	l.Execute(func() {
		pipe.HeadActive()
		go l.readPump(ch)
	})

	return nil
}

// work is the reactor loop, serialized on one goroutine.
func (l *Loop) work() {
	ticker := time.NewTicker(pollTimeout)
	defer ticker.Stop()

	for {
		if l.stopped.Load() {
			l.Debug().Msg("loop worker exiting")
			return
		}
		select {
		case task := <-l.tasks:
			task()
		case ev := <-l.events:
			l.dispatch(ev)
		case <-l.quit:
		case <-ticker.C:
			// re-check stopped
		}
	}
}

// readPump blocks on socket reads for one channel, posting each
// outcome to the readiness queue. Exits on peer close, on error, or
// on loop shutdown.
func (l *Loop) readPump(ch *channel.Channel) {
	for {
		buf := make([]byte, readBufSize)
		n, kerr := ch.Read(buf)

		ev := event{id: ch.ID()}
		switch {
		case kerr != nil && kerr.Kind == errkind.KIND_WOULD_BLOCK:
			continue // never surfaced
		case kerr != nil:
			ev.err = kerr
		case n == 0:
			ev.eof = true // peer close
		default:
			ev.data = buf[:n]
		}

		select {
		case l.events <- ev:
		case <-l.quit:
			return
		}

		if ev.eof || ev.err != nil {
			return
		}
	}
}

// dispatch routes one readiness event into the connection's inbound
// pipeline. Per-connection order is active, any number of read or
// exception, then inactive exactly once.
func (l *Loop) dispatch(ev event) {
	ch, ok := l.channels.Load(ev.id)
	if !ok {
		return // already detached
	}

	if ev.eof {
		ch.Close()
	}

	if ch.IsClosed() {
		l.detach(ev.id)
		return
	}

	if ev.err != nil {
		if pipe, ok := l.pipelines.Load(ev.id); ok {
			pipe.HeadException(ev.err)
		}
		// the handler may have closed the channel; its pump is
		// gone, so the inactive event must come from here
		if ch.IsClosed() {
			l.detach(ev.id)
		}
		return
	}

	if len(ev.data) > 0 {
		if pipe, ok := l.pipelines.Load(ev.id); ok {
			pipe.HeadRead(bytebuf.From(ev.data))
		}
	}
}

// detach removes the channel entry, fires inactive, then removes the
// pipeline entry, in that order.
func (l *Loop) detach(id uint64) {
	if _, loaded := l.channels.LoadAndDelete(id); !loaded {
		return
	}
	if pipe, ok := l.pipelines.Load(id); ok {
		pipe.HeadInactive()
	}
	l.pipelines.Delete(id)
	if l.OnDetach != nil {
		l.OnDetach(id)
	}
}

// FireException injects err into the inbound pipeline of connection
// id, on the worker. Used by the idle scanner; a no-op if the
// connection is gone.
func (l *Loop) FireException(id uint64, err *errkind.Error) {
	l.Execute(func() {
		ch, ok := l.channels.Load(id)
		if !ok || ch.IsClosed() {
			return
		}
		if pipe, ok := l.pipelines.Load(id); ok {
			pipe.HeadException(err)
		}
		if ch.IsClosed() {
			l.detach(id)
		}
	})
}
