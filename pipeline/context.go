package pipeline

import (
	"net"
	"time"

	"github.com/pipenet/pipenet/bytebuf"
	"github.com/pipenet/pipenet/channel"
	"github.com/pipenet/pipenet/errkind"
)

// InboundContext is the per-handler, per-connection node of an
// inbound pipeline. Firing an event invokes the corresponding method
// of the next context's handler; with no next context the event is
// silently dropped (tail swallow).
type InboundContext struct {
	id      string
	handler InboundHandler

	ch   *channel.Channel
	exec channel.Executor

	next *InboundContext
	head *InboundContext

	out *OutboundPipeline // for WriteAndFlush
}

// ID returns the handler id this context wraps.
func (c *InboundContext) ID() string {
	return c.id
}

// FireActive invokes Active on the next handler.
func (c *InboundContext) FireActive() {
	if c.next != nil {
		c.next.handler.Active(c.next)
	}
}

// FireInactive invokes Inactive on the next handler.
func (c *InboundContext) FireInactive() {
	if c.next != nil {
		c.next.handler.Inactive(c.next)
	}
}

// FireRead invokes Read on the next handler. Re-entrant: a handler
// may fire several downstream reads from one Read call, each fully
// processed depth-first before control returns.
func (c *InboundContext) FireRead(msg any) {
	if c.next != nil {
		c.next.handler.Read(c.next, msg)
	}
}

// FireException invokes Exception on the next handler.
func (c *InboundContext) FireException(err *errkind.Error) {
	if c.next != nil {
		c.next.handler.Exception(c.next, err)
	}
}

// WriteAndFlush injects msg at the head of the paired outbound
// pipeline.
func (c *InboundContext) WriteAndFlush(msg any) {
	c.out.HeadWrite(msg)
}

// Channel returns a narrowed view of the connection.
func (c *InboundContext) Channel() *ChannelView {
	return &ChannelView{ch: c.ch}
}

// EventLoop returns the worker owning this connection, for
// scheduling tasks with connection affinity.
func (c *InboundContext) EventLoop() channel.Executor {
	return c.exec
}

// OutboundContext is the per-handler, per-connection node of an
// outbound pipeline. The outbound list is built in reverse of user
// registration order, so write events visit user handlers from
// last-registered to first-registered before the tail writer.
type OutboundContext struct {
	id      string
	handler OutboundHandler

	ch   *channel.Channel
	exec channel.Executor

	next *OutboundContext
	head *OutboundContext
}

// ID returns the handler id this context wraps.
func (c *OutboundContext) ID() string {
	return c.id
}

// FireWrite invokes Write on the next handler. The tail is the
// terminal writer; past it the event is dropped.
func (c *OutboundContext) FireWrite(msg any) {
	if c.next != nil {
		c.next.handler.Write(c.next, msg)
	}
}

// Channel returns a narrowed view of the connection.
func (c *OutboundContext) Channel() *ChannelView {
	return &ChannelView{ch: c.ch}
}

// EventLoop returns the worker owning this connection.
func (c *OutboundContext) EventLoop() channel.Executor {
	return c.exec
}

// ChannelView is the limited channel surface exposed to handlers.
type ChannelView struct {
	ch *channel.Channel
}

// RemoteAddr returns the peer address.
func (v *ChannelView) RemoteAddr() net.Addr {
	return v.ch.RemoteAddr()
}

// LocalAddr returns the local address.
func (v *ChannelView) LocalAddr() net.Addr {
	return v.ch.LocalAddr()
}

// IsClosed returns true iff the channel has been closed.
func (v *ChannelView) IsClosed() bool {
	return v.ch.IsClosed()
}

// Close closes the channel; the owning loop fires inactive.
func (v *ChannelView) Close() {
	v.ch.Close()
}

// WriteAndFlush injects msg at the head of the outbound pipeline.
func (v *ChannelView) WriteAndFlush(msg any) {
	v.ch.WriteAndFlush(msg)
}

// WriteBytes puts buf directly on the socket, bypassing the
// outbound pipeline.
func (v *ChannelView) WriteBytes(buf *bytebuf.Buffer) error {
	return v.ch.WriteBytes(buf)
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
