// Package bytebuf provides a byte buffer with independent reader and
// writer indexes, the unit of exchange on the wire boundary of a
// pipeline: the reactor wraps raw socket chunks in a Buffer, and the
// outbound tail expects a Buffer to put on the socket.
package bytebuf

import "encoding/binary"

// Buffer holds bytes between a reader index and a writer index.
// The readable region is buf[r:w]. Not safe for concurrent use;
// the owning event loop serializes all access.
type Buffer struct {
	buf  []byte
	r    int // reader index
	w    int // writer index
	mark int // marked reader index
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// From returns a Buffer owning a copy of b, ready for reading.
func From(b []byte) *Buffer {
	buf := &Buffer{buf: append([]byte(nil), b...)}
	buf.w = len(buf.buf)
	return buf
}

// ReadableBytes returns the number of bytes between the reader
// and writer indexes.
func (b *Buffer) ReadableBytes() int {
	return b.w - b.r
}

// Bytes returns the readable region. The slice aliases the buffer
// and is valid until the next write or discard.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.r:b.w]
}

// ReaderIndex returns the current reader index.
func (b *Buffer) ReaderIndex() int {
	return b.r
}

// WriterIndex returns the current writer index.
func (b *Buffer) WriterIndex() int {
	return b.w
}

// MarkReaderIndex remembers the current reader index for ResetReaderIndex.
func (b *Buffer) MarkReaderIndex() {
	b.mark = b.r
}

// ResetReaderIndex rewinds the reader index to the last mark.
func (b *Buffer) ResetReaderIndex() {
	b.r = b.mark
}

// WriteBytes appends p after the writer index.
func (b *Buffer) WriteBytes(p []byte) {
	b.buf = append(b.buf[:b.w], p...)
	b.w = len(b.buf)
}

// WriteUint32 appends v in big-endian order.
func (b *Buffer) WriteUint32(v uint32) {
	b.buf = binary.BigEndian.AppendUint32(b.buf[:b.w], v)
	b.w = len(b.buf)
}

// ReadBytes consumes and returns the next n readable bytes.
// Returns nil if fewer than n bytes are readable.
func (b *Buffer) ReadBytes(n int) []byte {
	if n < 0 || b.ReadableBytes() < n {
		return nil
	}
	p := b.buf[b.r : b.r+n]
	b.r += n
	return p
}

// ReadUint32 consumes 4 bytes and returns them as a big-endian uint32.
func (b *Buffer) ReadUint32() (uint32, error) {
	if b.ReadableBytes() < 4 {
		return 0, ErrShort
	}
	v := binary.BigEndian.Uint32(b.buf[b.r:])
	b.r += 4
	return v, nil
}

// Discard drops the already-read region, moving the readable bytes
// to the start of the buffer. Invalidates slices from Bytes().
func (b *Buffer) Discard() {
	if b.r == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.r:b.w])
	b.r, b.w, b.mark = 0, n, 0
	b.buf = b.buf[:n]
}

// Reset empties the buffer for re-use.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.r, b.w, b.mark = 0, 0, 0
}
