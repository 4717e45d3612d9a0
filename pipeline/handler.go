// Package pipeline implements the per-connection dual handler chain:
// an inbound pipeline carrying active/read/exception/inactive events
// from the socket down to user handlers, and an outbound pipeline
// carrying write events from user handlers up to the socket.
//
// A pipeline exclusively owns its contexts; contexts refer to their
// siblings by plain pointers and never outlive the connection. All
// traversal happens on the single worker of the owning event loop,
// so handlers keep per-connection state without locking.
package pipeline

import (
	"github.com/pipenet/pipenet/bytebuf"
	"github.com/pipenet/pipenet/errkind"
)

// InboundHandler is a user-supplied unit of protocol logic on the
// read path. Messages are opaque; the concrete type is a contract
// between adjacent handlers.
type InboundHandler interface {
	// ID names the handler for diagnostics.
	ID() string

	// Active is called once when the connection is attached.
	Active(ctx *InboundContext)

	// Inactive is called once when the connection goes away.
	Inactive(ctx *InboundContext)

	// Read is called with the message from the previous handler.
	Read(ctx *InboundContext, msg any)

	// Exception is called with an error from upstream. Recover,
	// forward via ctx.FireException, or close the channel.
	Exception(ctx *InboundContext, err *errkind.Error)
}

// OutboundHandler is a user-supplied unit of protocol logic on the
// write path.
type OutboundHandler interface {
	// ID names the handler for diagnostics.
	ID() string

	// Write is called with the message from the previous handler.
	Write(ctx *OutboundContext, msg any)
}

// InboundFactory builds a fresh inbound handler chain for one
// connection, in registration order. Must be safe for concurrent
// invocation.
type InboundFactory func() []InboundHandler

// OutboundFactory builds a fresh outbound handler chain for one
// connection, in registration order. Must be safe for concurrent
// invocation.
type OutboundFactory func() []OutboundHandler

// headHandler is the built-in inbound head: stamps the channel's
// last-read time on activation and on every read, forwards all
// events unchanged.
type headHandler struct{}

func (headHandler) ID() string { return "HEAD" }

func (headHandler) Active(ctx *InboundContext) {
	ctx.ch.SetLastReadTime(nowMs())
	ctx.FireActive()
}

func (headHandler) Inactive(ctx *InboundContext) {
	ctx.FireInactive()
}

func (headHandler) Read(ctx *InboundContext, msg any) {
	ctx.ch.SetLastReadTime(nowMs())
	ctx.FireRead(msg)
}

func (headHandler) Exception(ctx *InboundContext, err *errkind.Error) {
	ctx.FireException(err)
}

// tailHandler is the built-in outbound tail: the terminal writer,
// requiring a *bytebuf.Buffer to put on the socket.
type tailHandler struct{}

func (tailHandler) ID() string { return "TAIL" }

func (tailHandler) Write(ctx *OutboundContext, msg any) {
	buf, ok := msg.(*bytebuf.Buffer)
	if !ok {
		ctx.ch.Warn().Uint64("ch", ctx.ch.ID()).Str("handler", ctx.id).
			Msg("outbound tail dropped a non-buffer message")
		return
	}
	if err := ctx.ch.WriteBytes(buf); err != nil {
		ctx.ch.Warn().Err(err).Uint64("ch", ctx.ch.ID()).Msg("socket write")
	}
}
