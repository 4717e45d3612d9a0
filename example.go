/*
 * a basic echo server example for pipenet usage
 */
package main

import (
	"flag"

	"github.com/pipenet/pipenet/bootstrap"
	"github.com/pipenet/pipenet/bytebuf"
	"github.com/pipenet/pipenet/codec"
	"github.com/pipenet/pipenet/errkind"
	"github.com/pipenet/pipenet/pipeline"
)

var (
	opt_host    = flag.String("host", "0.0.0.0", "listener host")
	opt_port    = flag.Uint("port", 1511, "listener port")
	opt_workers = flag.Int("workers", 4, "worker event loops")
	opt_idle    = flag.Int64("idle", 30000, "read-idle timeout (ms)")
)

func main() {
	flag.Parse()

	b := bootstrap.NewServerBootstrap()
	b.Bind(*opt_host, uint16(*opt_port)).
		WorkerGroup(*opt_workers).
		OptNodelay(true).
		OptReadIdleTimeoutMs(*opt_idle).
		InitInboundPipeline(func() []pipeline.InboundHandler {
			return []pipeline.InboundHandler{
				codec.NewLengthFieldDecoder(),
				&echoHandler{},
			}
		}).
		InitOutboundPipeline(func() []pipeline.OutboundHandler {
			return []pipeline.OutboundHandler{
				codec.NewLengthFieldEncoder(),
			}
		})

	b.Start()
	b.Wait()
}

// echoHandler sends every decoded frame's payload back through the
// outbound pipeline, and closes the connection on any error.
type echoHandler struct{}

func (echoHandler) ID() string { return "Echo" }

func (echoHandler) Active(ctx *pipeline.InboundContext) {
	ctx.FireActive()
}

func (echoHandler) Inactive(ctx *pipeline.InboundContext) {
	ctx.FireInactive()
}

func (echoHandler) Read(ctx *pipeline.InboundContext, msg any) {
	frame, ok := msg.(*bytebuf.Buffer)
	if !ok {
		return
	}
	frame.ReadUint32() // drop the length prefix, the encoder re-adds it
	ctx.WriteAndFlush(bytebuf.From(frame.Bytes()))
}

func (echoHandler) Exception(ctx *pipeline.InboundContext, err *errkind.Error) {
	ctx.Channel().Close()
}
