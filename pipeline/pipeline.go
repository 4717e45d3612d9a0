package pipeline

import (
	"github.com/pipenet/pipenet/channel"
	"github.com/pipenet/pipenet/errkind"
)

// InboundPipeline is the ordered chain of inbound contexts for one
// connection: built-in head, then user handlers in registration
// order. The pipeline exclusively owns its contexts.
type InboundPipeline struct {
	ctxs []*InboundContext
}

// OutboundPipeline is the ordered chain of outbound contexts for one
// connection: user handlers in reverse registration order, then the
// built-in tail writer.
type OutboundPipeline struct {
	ctxs []*OutboundContext
}

// NewOutbound builds the outbound pipeline for ch from handlers in
// user registration order. Call before NewInbound: the two pipelines
// of a connection are created as a bound pair, outbound first.
func NewOutbound(handlers []OutboundHandler, ch *channel.Channel, exec channel.Executor) *OutboundPipeline {
	p := &OutboundPipeline{}

	// reverse the user list, then append the tail writer
	for i := len(handlers) - 1; i >= 0; i-- {
		p.add(handlers[i], ch, exec)
	}
	p.add(tailHandler{}, ch, exec)

	// forward links; nil next only at the tail
	for i := 0; i < len(p.ctxs)-1; i++ {
		p.ctxs[i].next = p.ctxs[i+1]
	}
	for _, c := range p.ctxs[1:] {
		c.head = p.ctxs[0]
	}

	ch.BindOutbound(p)
	return p
}

func (p *OutboundPipeline) add(h OutboundHandler, ch *channel.Channel, exec channel.Executor) {
	p.ctxs = append(p.ctxs, &OutboundContext{
		id:      h.ID(),
		handler: h,
		ch:      ch,
		exec:    exec,
	})
}

// HeadWrite fires a write event from the start of the outbound
// chain, i.e. the last-registered user handler.
func (p *OutboundPipeline) HeadWrite(msg any) {
	head := p.ctxs[0]
	head.handler.Write(head, msg)
}

// NewInbound builds the inbound pipeline for ch from handlers in
// user registration order, prepending the built-in head and binding
// out as the target of WriteAndFlush.
func NewInbound(handlers []InboundHandler, ch *channel.Channel, exec channel.Executor, out *OutboundPipeline) *InboundPipeline {
	p := &InboundPipeline{}

	p.add(headHandler{}, ch, exec, out)
	for _, h := range handlers {
		p.add(h, ch, exec, out)
	}

	for i := 0; i < len(p.ctxs)-1; i++ {
		p.ctxs[i].next = p.ctxs[i+1]
	}
	for _, c := range p.ctxs[1:] {
		c.head = p.ctxs[0]
	}

	return p
}

func (p *InboundPipeline) add(h InboundHandler, ch *channel.Channel, exec channel.Executor, out *OutboundPipeline) {
	p.ctxs = append(p.ctxs, &InboundContext{
		id:      h.ID(),
		handler: h,
		ch:      ch,
		exec:    exec,
		out:     out,
	})
}

// HeadActive fires channelActive from the head.
func (p *InboundPipeline) HeadActive() {
	head := p.ctxs[0]
	head.handler.Active(head)
}

// HeadInactive fires channelInactive from the head.
func (p *InboundPipeline) HeadInactive() {
	head := p.ctxs[0]
	head.handler.Inactive(head)
}

// HeadRead fires channelRead from the head.
func (p *InboundPipeline) HeadRead(msg any) {
	head := p.ctxs[0]
	head.handler.Read(head, msg)
}

// HeadException fires channelException from the head.
func (p *InboundPipeline) HeadException(err *errkind.Error) {
	head := p.ctxs[0]
	head.handler.Exception(head, err)
}
