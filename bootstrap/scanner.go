package bootstrap

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pipenet/pipenet/channel"
	"github.com/pipenet/pipenet/errkind"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// idleReason is the message carried by the idle-eviction exception.
const idleReason = "ReadIdleTimeout"

// deadlineItem is one watched connection in the scanner heap.
type deadlineItem struct {
	id uint64
	at int64 // ms epoch when the connection becomes evictable
}

// deadlineHeap is a min-heap ordered by deadline.
type deadlineHeap []deadlineItem

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].at < h[j].at }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)         { *h = append(*h, x.(deadlineItem)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// idleScanner evicts connections whose last read is older than their
// read-idle timeout. Deadlines live in a min-heap; the scanner
// sleeps until the earliest one, re-checks the live last-read time
// (reads push deadlines back lazily), and on expiry removes the
// connection from the shared registry and fires a TimedOut exception
// into its inbound pipeline, on the owning loop. Closing is left to
// the user's exception handler: all lifecycle transitions flow
// through the pipeline.
type idleScanner struct {
	*zerolog.Logger

	conns *xsync.MapOf[uint64, *session]

	mu sync.Mutex
	h  deadlineHeap

	wake chan struct{} // nudged when an earlier deadline may exist
	quit chan struct{}
	once sync.Once
}

func newIdleScanner(logger *zerolog.Logger, conns *xsync.MapOf[uint64, *session]) *idleScanner {
	return &idleScanner{
		Logger: logger,
		conns:  conns,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
}

// watch starts tracking ch. A no-op for channels with eviction
// disabled.
func (s *idleScanner) watch(id uint64, ch *channel.Channel) {
	timeout := ch.ReadIdleTimeoutMs()
	if timeout <= 0 {
		return
	}

	s.mu.Lock()
	heap.Push(&s.h, deadlineItem{id: id, at: ch.LastReadTime() + timeout})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// stop ends the scanner loop.
func (s *idleScanner) stop() {
	s.once.Do(func() { close(s.quit) })
}

// run is the scanner loop; blocks until stop().
func (s *idleScanner) run() {
	for {
		delay := s.sweep()
		select {
		case <-s.quit:
			return
		case <-s.wake:
		case <-time.After(delay):
		}
	}
}

// sweep evicts every expired connection and returns the time until
// the next deadline, capped at one second and at least 10 ms.
func (s *idleScanner) sweep() time.Duration {
	now := time.Now().UnixMilli()
	var victims []*session
	var ids []uint64

	s.mu.Lock()
	for len(s.h) > 0 && s.h[0].at <= now {
		it := heap.Pop(&s.h).(deadlineItem)

		sess, ok := s.conns.Load(it.id)
		if !ok {
			continue // connection already gone
		}

		// reads move the live deadline; push back instead of evicting
		at := sess.ch.LastReadTime() + sess.ch.ReadIdleTimeoutMs()
		if at > now {
			heap.Push(&s.h, deadlineItem{id: it.id, at: at})
			continue
		}

		victims = append(victims, sess)
		ids = append(ids, it.id)
	}

	delay := time.Second
	if len(s.h) > 0 {
		if d := time.Duration(s.h[0].at-now) * time.Millisecond; d < delay {
			delay = max(d, 10*time.Millisecond)
		}
	}
	s.mu.Unlock()

	// fire outside the lock, on each connection's owning loop
	for i, sess := range victims {
		id := ids[i]
		s.conns.Delete(id)
		s.Debug().Uint64("ch", id).Msg("idle eviction")
		sess.loop.FireException(id, errkind.New(errkind.KIND_TIMED_OUT, idleReason))
	}

	return delay
}
