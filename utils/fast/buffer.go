// Package fast provides byte cursors for the packed extra-data wire format.
//
// Reader and Writer do not allocate beyond the slice they wrap and do not
// return errors: Read panics when asked for more bytes than remain. Decoders
// check Remaining before every read and turn a short buffer into a typed
// error themselves.
package fast

import "errors"

var errShortBuffer = errors.New("fast: read past end of buffer")

// Reader consumes a byte slice front to back.
type Reader struct {
	buf    []byte
	offset int
}

// Writer appends to a byte slice.
type Writer struct {
	buf []byte
}

func NewReader(bb []byte) *Reader {
	return &Reader{buf: bb}
}

// NewWriter appends to bb. Pass make([]byte, 0, n) to preallocate.
func NewWriter(bb []byte) *Writer {
	return &Writer{buf: bb}
}

func (b *Writer) WriteByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *Writer) Write(v []byte) {
	b.buf = append(b.buf, v...)
}

// Read returns the next n bytes. The result shares memory with the
// underlying buffer. Panics if fewer than n bytes remain.
func (b *Reader) Read(n int) []byte {
	b.need(n)
	res := b.buf[b.offset : b.offset+n]
	b.offset += n
	return res
}

// ReadByte panics on an empty reader.
func (b *Reader) ReadByte() byte {
	res := b.buf[b.offset]
	b.offset++
	return res
}

// Skip advances the cursor by n bytes without returning them.
func (b *Reader) Skip(n int) {
	b.need(n)
	b.offset += n
}

// need panics unless n bytes remain. Slicing alone would read into spare
// capacity past len.
func (b *Reader) need(n int) {
	if n < 0 || n > b.Remaining() {
		panic(errShortBuffer)
	}
}

func (b *Reader) Position() int {
	return b.offset
}

// Remaining is the number of unread bytes.
func (b *Reader) Remaining() int {
	return len(b.buf) - b.offset
}

func (b *Reader) Bytes() []byte {
	return b.buf
}

func (b *Writer) Bytes() []byte {
	return b.buf
}

func (b *Writer) Len() int {
	return len(b.buf)
}

func (b *Reader) Empty() bool {
	return len(b.buf) == b.offset
}
