// Package codec provides the reference wire codecs: a length-field
// frame decoder for the inbound path and its matching encoder for
// the outbound path. Frames are a 4-byte big-endian length prefix
// followed by that many payload bytes.
package codec

import (
	"github.com/pipenet/pipenet/bytebuf"
	"github.com/pipenet/pipenet/errkind"
	"github.com/pipenet/pipenet/pipeline"
)

// LengthFieldDecoder assembles length-prefixed frames from raw
// socket chunks. Each complete frame is fired downstream as a fresh
// *bytebuf.Buffer holding exactly the length prefix and payload
// (4+L bytes), which the downstream handler owns entirely. A zero
// length is a valid empty frame; several frames arriving in one
// chunk are all delivered, in order, within a single read event.
//
// Stateful: one instance per connection, via the pipeline factory.
type LengthFieldDecoder struct {
	acc bytebuf.Buffer // accumulated undecoded bytes
}

// NewLengthFieldDecoder returns a decoder for one connection.
func NewLengthFieldDecoder() *LengthFieldDecoder {
	return &LengthFieldDecoder{}
}

// ID implements pipeline.InboundHandler.
func (d *LengthFieldDecoder) ID() string { return "LengthFieldDecoder" }

// Active implements pipeline.InboundHandler.
func (d *LengthFieldDecoder) Active(ctx *pipeline.InboundContext) {
	ctx.FireActive()
}

// Inactive implements pipeline.InboundHandler.
func (d *LengthFieldDecoder) Inactive(ctx *pipeline.InboundContext) {
	ctx.FireInactive()
}

// Exception implements pipeline.InboundHandler.
func (d *LengthFieldDecoder) Exception(ctx *pipeline.InboundContext, err *errkind.Error) {
	ctx.FireException(err)
}

// Read implements pipeline.InboundHandler.
func (d *LengthFieldDecoder) Read(ctx *pipeline.InboundContext, msg any) {
	buf, ok := msg.(*bytebuf.Buffer)
	if !ok {
		ctx.FireException(errkind.New(errkind.KIND_OTHER, "decoding error"))
		return
	}

	d.acc.WriteBytes(buf.Bytes())

	for {
		if d.acc.ReadableBytes() < 4 {
			d.acc.Discard()
			return
		}

		d.acc.MarkReaderIndex()
		pktLen, _ := d.acc.ReadUint32()
		d.acc.ResetReaderIndex()

		if d.acc.ReadableBytes() < 4+int(pktLen) {
			d.acc.Discard()
			return
		}

		frame := bytebuf.From(d.acc.ReadBytes(4 + int(pktLen)))
		ctx.FireRead(frame)

		if d.acc.ReadableBytes() == 0 {
			d.acc.Reset()
			return
		}
	}
}

// LengthFieldEncoder prepends the 4-byte big-endian length prefix to
// outgoing payload buffers. A message that is not a *bytebuf.Buffer
// is forwarded unchanged for the tail to deal with.
type LengthFieldEncoder struct{}

// NewLengthFieldEncoder returns an encoder. Stateless; one instance
// may be shared, but the pipeline factory builds one per connection.
func NewLengthFieldEncoder() *LengthFieldEncoder {
	return &LengthFieldEncoder{}
}

// ID implements pipeline.OutboundHandler.
func (e *LengthFieldEncoder) ID() string { return "LengthFieldEncoder" }

// Write implements pipeline.OutboundHandler.
func (e *LengthFieldEncoder) Write(ctx *pipeline.OutboundContext, msg any) {
	payload, ok := msg.(*bytebuf.Buffer)
	if !ok {
		ctx.FireWrite(msg)
		return
	}

	out := bytebuf.New()
	out.WriteUint32(uint32(payload.ReadableBytes()))
	out.WriteBytes(payload.Bytes())
	ctx.FireWrite(out)
}
