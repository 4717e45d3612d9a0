package eventloop

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Group is a fixed set of event loops with a round-robin picker.
type Group struct {
	loops []*Loop
	next  atomic.Uint64 // round-robin cursor
}

// NewGroup returns a group of n loops sharing logger.
func NewGroup(n int, logger *zerolog.Logger) *Group {
	g := &Group{}
	for i := 0; i < n; i++ {
		g.loops = append(g.loops, New(uint(i), logger))
	}
	return g
}

// Next returns the next loop, strict round-robin.
func (g *Group) Next() *Loop {
	i := g.next.Add(1) - 1
	return g.loops[i%uint64(len(g.loops))]
}

// Get returns the loop at index i modulo the group size.
func (g *Group) Get(i uint64) *Loop {
	return g.loops[i%uint64(len(g.loops))]
}

// Len returns the number of loops.
func (g *Group) Len() int {
	return len(g.loops)
}

// Loops returns the underlying loops.
func (g *Group) Loops() []*Loop {
	return g.loops
}

// Run starts every loop's worker.
func (g *Group) Run() {
	for _, l := range g.loops {
		l.Run()
	}
}

// Execute submits task to the next loop, round-robin.
func (g *Group) Execute(task func()) {
	g.Next().Execute(task)
}

// ShutdownAll stops every loop; each worker exits within the poll
// bound.
func (g *Group) ShutdownAll() {
	for _, l := range g.loops {
		l.Shutdown()
	}
}
