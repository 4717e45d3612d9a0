package codec

import (
	"encoding/binary"
	"io"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/pipenet/pipenet/bytebuf"
	"github.com/pipenet/pipenet/channel"
	"github.com/pipenet/pipenet/errkind"
	"github.com/pipenet/pipenet/pipeline"
	"github.com/stretchr/testify/require"
)

type inlineExec struct{}

func (inlineExec) Execute(task func())                          { task() }
func (inlineExec) ScheduleDelayed(task func(), _ time.Duration) { task() }

// frameSink collects decoded frames.
type frameSink struct {
	frames [][]byte
	errs   []*errkind.Error
}

func (s *frameSink) ID() string                                 { return "sink" }
func (s *frameSink) Active(ctx *pipeline.InboundContext)        { ctx.FireActive() }
func (s *frameSink) Inactive(ctx *pipeline.InboundContext)      { ctx.FireInactive() }
func (s *frameSink) Read(ctx *pipeline.InboundContext, msg any) {
	buf := msg.(*bytebuf.Buffer)
	s.frames = append(s.frames, append([]byte(nil), buf.Bytes()...))
}
func (s *frameSink) Exception(ctx *pipeline.InboundContext, err *errkind.Error) {
	s.errs = append(s.errs, err)
}

// decoderPipe builds head -> decoder -> sink over a throwaway conn.
func decoderPipe(t *testing.T) (*pipeline.InboundPipeline, *frameSink) {
	t.Helper()

	local, peer := net.Pipe()
	t.Cleanup(func() { local.Close(); peer.Close() })
	go io.Copy(io.Discard, peer)

	sink := &frameSink{}
	ch := channel.New(1, channel.DefaultOptions, inlineExec{}, local)
	op := pipeline.NewOutbound(nil, ch, inlineExec{})
	ip := pipeline.NewInbound([]pipeline.InboundHandler{
		NewLengthFieldDecoder(),
		sink,
	}, ch, inlineExec{}, op)
	return ip, sink
}

// frame returns len32(payload) || payload.
func frame(payload []byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(payload)))
	return append(out, payload...)
}

func TestDecoder_SingleFrame(t *testing.T) {
	ip, sink := decoderPipe(t)

	ip.HeadRead(bytebuf.From(frame([]byte("hello"))))

	require.Len(t, sink.frames, 1)
	require.Equal(t, frame([]byte("hello")), sink.frames[0])
}

func TestDecoder_TwoFramesOneChunk(t *testing.T) {
	ip, sink := decoderPipe(t)

	chunk := append(frame([]byte("abc")), frame([]byte("xy"))...)
	ip.HeadRead(bytebuf.From(chunk))

	require.Len(t, sink.frames, 2)
	require.Equal(t, frame([]byte("abc")), sink.frames[0])
	require.Equal(t, frame([]byte("xy")), sink.frames[1])
}

func TestDecoder_SplitFrame(t *testing.T) {
	ip, sink := decoderPipe(t)

	full := frame([]byte("hello"))
	ip.HeadRead(bytebuf.From(full[:5])) // length plus one payload byte
	require.Empty(t, sink.frames)

	ip.HeadRead(bytebuf.From(full[5:]))
	require.Len(t, sink.frames, 1)
	require.Equal(t, full, sink.frames[0])
}

func TestDecoder_EmptyFrame(t *testing.T) {
	ip, sink := decoderPipe(t)

	ip.HeadRead(bytebuf.From(frame(nil)))

	require.Len(t, sink.frames, 1)
	require.Equal(t, frame(nil), sink.frames[0])
}

func TestDecoder_NonBuffer(t *testing.T) {
	ip, sink := decoderPipe(t)

	ip.HeadRead("not a buffer")

	require.Empty(t, sink.frames)
	require.Len(t, sink.errs, 1)
	require.Equal(t, errkind.KIND_OTHER, sink.errs[0].Kind)
	require.Equal(t, "decoding error", sink.errs[0].Message)
}

func TestDecoder_RandomSplits(t *testing.T) {
	rng := rand.New(rand.NewSource(1511))

	for round := 0; round < 25; round++ {
		ip, sink := decoderPipe(t)

		// a stream of random frames, including empty ones
		var want [][]byte
		var stream []byte
		for i := 0; i < 20; i++ {
			payload := make([]byte, rng.Intn(300))
			rng.Read(payload)
			f := frame(payload)
			want = append(want, f)
			stream = append(stream, f...)
		}

		// delivered in chunks split at random points
		for len(stream) > 0 {
			n := 1 + rng.Intn(len(stream))
			ip.HeadRead(bytebuf.From(stream[:n]))
			stream = stream[n:]
		}

		require.Equal(t, want, sink.frames)
		require.Empty(t, sink.errs)
	}
}

func TestEncoder_Prefix(t *testing.T) {
	local, peer := net.Pipe()
	t.Cleanup(func() { local.Close(); peer.Close() })

	ch := channel.New(1, channel.DefaultOptions, inlineExec{}, local)
	op := pipeline.NewOutbound([]pipeline.OutboundHandler{
		NewLengthFieldEncoder(),
	}, ch, inlineExec{})

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 9)
		io.ReadFull(peer, buf)
		got <- buf
	}()

	op.HeadWrite(bytebuf.From([]byte("hello")))
	require.Equal(t, frame([]byte("hello")), <-got)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	ip, sink := decoderPipe(t)

	// what the encoder emits, the decoder reassembles
	local, peer := net.Pipe()
	t.Cleanup(func() { local.Close(); peer.Close() })

	ch := channel.New(2, channel.DefaultOptions, inlineExec{}, local)
	op := pipeline.NewOutbound([]pipeline.OutboundHandler{
		NewLengthFieldEncoder(),
	}, ch, inlineExec{})

	go op.HeadWrite(bytebuf.From([]byte("ping")))

	buf := make([]byte, 64)
	n, err := io.ReadFull(peer, buf[:8])
	require.NoError(t, err)
	ip.HeadRead(bytebuf.From(buf[:n]))

	require.Len(t, sink.frames, 1)
	require.Equal(t, frame([]byte("ping")), sink.frames[0])
}
