package bytebuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuffer_Indexes(t *testing.T) {
	b := From([]byte{1, 2, 3, 4, 5})
	require.Equal(t, 5, b.ReadableBytes())
	require.Equal(t, 0, b.ReaderIndex())
	require.Equal(t, 5, b.WriterIndex())

	require.Equal(t, []byte{1, 2}, b.ReadBytes(2))
	require.Equal(t, 3, b.ReadableBytes())

	// short reads return nil and consume nothing
	require.Nil(t, b.ReadBytes(4))
	require.Equal(t, 3, b.ReadableBytes())

	b.WriteBytes([]byte{6})
	require.Equal(t, []byte{3, 4, 5, 6}, b.Bytes())
}

func TestBuffer_MarkReset(t *testing.T) {
	b := From([]byte{0, 0, 0, 7, 'x'})

	b.MarkReaderIndex()
	v, err := b.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(7), v)
	require.Equal(t, 1, b.ReadableBytes())

	b.ResetReaderIndex()
	require.Equal(t, 5, b.ReadableBytes())
}

func TestBuffer_Uint32(t *testing.T) {
	b := New()
	b.WriteUint32(0xdeadbeef)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b.Bytes())

	v, err := b.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)

	_, err = b.ReadUint32()
	require.ErrorIs(t, err, ErrShort)
}

func TestBuffer_Discard(t *testing.T) {
	b := From([]byte{1, 2, 3, 4})
	b.ReadBytes(2)
	b.Discard()
	require.Equal(t, 0, b.ReaderIndex())
	require.Equal(t, []byte{3, 4}, b.Bytes())

	b.Reset()
	require.Equal(t, 0, b.ReadableBytes())
}
