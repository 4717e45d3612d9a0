package pipeline

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/pipenet/pipenet/bytebuf"
	"github.com/pipenet/pipenet/channel"
	"github.com/pipenet/pipenet/errkind"
	"github.com/stretchr/testify/require"
)

type inlineExec struct{}

func (inlineExec) Execute(task func())                          { task() }
func (inlineExec) ScheduleDelayed(task func(), _ time.Duration) { task() }

// logInbound records every event it sees, then forwards.
type logInbound struct {
	id     string
	log    *[]string
	onRead func(ctx *InboundContext, msg any) // overrides the default forward
}

func (h *logInbound) ID() string { return h.id }

func (h *logInbound) Active(ctx *InboundContext) {
	*h.log = append(*h.log, h.id+":active")
	ctx.FireActive()
}

func (h *logInbound) Inactive(ctx *InboundContext) {
	*h.log = append(*h.log, h.id+":inactive")
	ctx.FireInactive()
}

func (h *logInbound) Read(ctx *InboundContext, msg any) {
	*h.log = append(*h.log, h.id+":read")
	if h.onRead != nil {
		h.onRead(ctx, msg)
	} else {
		ctx.FireRead(msg)
	}
}

func (h *logInbound) Exception(ctx *InboundContext, err *errkind.Error) {
	*h.log = append(*h.log, h.id+":exception:"+err.Kind.String())
	ctx.FireException(err)
}

// logOutbound records every write it sees, then forwards.
type logOutbound struct {
	id  string
	log *[]string
}

func (h *logOutbound) ID() string { return h.id }

func (h *logOutbound) Write(ctx *OutboundContext, msg any) {
	*h.log = append(*h.log, h.id+":write")
	ctx.FireWrite(msg)
}

// build wires a bound pipeline pair over one end of a net.Pipe and
// drains the peer so tail writes never block.
func build(t *testing.T, in []InboundHandler, out []OutboundHandler) (*InboundPipeline, *OutboundPipeline, *channel.Channel) {
	t.Helper()

	local, peer := net.Pipe()
	t.Cleanup(func() { local.Close(); peer.Close() })
	go io.Copy(io.Discard, peer)

	opts := channel.DefaultOptions
	ch := channel.New(1, opts, inlineExec{}, local)
	op := NewOutbound(out, ch, inlineExec{})
	ip := NewInbound(in, ch, inlineExec{}, op)
	return ip, op, ch
}

func TestInbound_Order(t *testing.T) {
	var log []string
	ip, _, _ := build(t, []InboundHandler{
		&logInbound{id: "A", log: &log},
		&logInbound{id: "B", log: &log},
		&logInbound{id: "C", log: &log},
	}, nil)

	ip.HeadActive()
	ip.HeadRead(bytebuf.From([]byte("x")))
	ip.HeadException(errkind.New(errkind.KIND_CONN_RESET, "rst"))
	ip.HeadInactive()

	require.Equal(t, []string{
		"A:active", "B:active", "C:active",
		"A:read", "B:read", "C:read",
		"A:exception:ConnectionReset", "B:exception:ConnectionReset", "C:exception:ConnectionReset",
		"A:inactive", "B:inactive", "C:inactive",
	}, log)
}

func TestOutbound_Reversal(t *testing.T) {
	var log []string
	_, op, _ := build(t, nil, []OutboundHandler{
		&logOutbound{id: "X", log: &log},
		&logOutbound{id: "Y", log: &log},
		&logOutbound{id: "Z", log: &log},
	})

	op.HeadWrite(bytebuf.From([]byte("payload")))

	// registered X, Y, Z; writes visit last-registered first
	require.Equal(t, []string{"Z:write", "Y:write", "X:write"}, log)
}

func TestInbound_WriteAndFlush(t *testing.T) {
	var log []string
	ip, _, _ := build(t, []InboundHandler{
		&logInbound{id: "A", log: &log},
		&logInbound{id: "B", log: &log, onRead: func(ctx *InboundContext, msg any) {
			ctx.WriteAndFlush(bytebuf.From([]byte("reply")))
		}},
	}, []OutboundHandler{
		&logOutbound{id: "X", log: &log},
		&logOutbound{id: "Y", log: &log},
		&logOutbound{id: "Z", log: &log},
	})

	ip.HeadRead(bytebuf.From([]byte("ping")))

	require.Equal(t, []string{
		"A:read", "B:read",
		"Z:write", "Y:write", "X:write",
	}, log)
}

func TestTail_WritesSocket(t *testing.T) {
	local, peer := net.Pipe()
	t.Cleanup(func() { local.Close(); peer.Close() })

	ch := channel.New(1, channel.DefaultOptions, inlineExec{}, local)
	op := NewOutbound(nil, ch, inlineExec{})

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5)
		io.ReadFull(peer, buf)
		got <- buf
	}()

	// with no user outbound handlers the head is the tail writer
	op.HeadWrite(bytebuf.From([]byte("hello")))
	require.Equal(t, []byte("hello"), <-got)
}

func TestTail_Swallow(t *testing.T) {
	var log []string
	ip, op, _ := build(t, []InboundHandler{
		&logInbound{id: "A", log: &log},
	}, nil)

	// events past the last handler are dropped silently
	ip.HeadRead(bytebuf.From([]byte("x")))
	ip.HeadException(errkind.New(errkind.KIND_OTHER, "boom"))

	// non-buffer writes are logged and dropped by the tail
	op.HeadWrite("not a buffer")

	require.Equal(t, []string{"A:read", "A:exception:Other"}, log)
}

func TestInbound_ReentrantForwarding(t *testing.T) {
	var log []string
	ip, _, _ := build(t, []InboundHandler{
		&logInbound{id: "A", log: &log, onRead: func(ctx *InboundContext, msg any) {
			// one chunk becomes two frames; both must be fully
			// processed downstream before Read returns
			ctx.FireRead(bytebuf.From([]byte("f1")))
			ctx.FireRead(bytebuf.From([]byte("f2")))
			log = append(log, "A:done")
		}},
		&logInbound{id: "B", log: &log},
	}, nil)

	ip.HeadRead(bytebuf.From([]byte("chunk")))

	require.Equal(t, []string{"A:read", "B:read", "B:read", "A:done"}, log)
}

func TestChannelView_Surface(t *testing.T) {
	var log []string
	ip, _, ch := build(t, []InboundHandler{
		&logInbound{id: "A", log: &log, onRead: func(ctx *InboundContext, msg any) {
			require.NotNil(t, ctx.Channel().LocalAddr())
			require.NotNil(t, ctx.Channel().RemoteAddr())
			require.NotNil(t, ctx.EventLoop())
			ctx.Channel().Close()
		}},
	}, nil)

	ip.HeadRead(bytebuf.From([]byte("x")))
	require.True(t, ch.IsClosed())
}
