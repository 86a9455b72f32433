// Package wire implements the byte-level reader and writer used by every
// node and codec.
//
// Encoding rules:
//   - integers are fixed width, little-endian
//   - strings and byte slices are prefixed with an int32 length
//   - string arrays are prefixed with an int32 element count
//   - booleans are a single byte (0 or 1)
//
// Both Writer and Reader use a sticky error: after the first failure every
// subsequent call is a no-op, and Err reports the original cause. This keeps
// codec bodies linear instead of checking after every field.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/assetsync/internal/checksum"
)

// MaxLength bounds any single length prefix read from a stream.
const MaxLength = 1 << 30

// maxPrealloc caps capacity hints taken from length prefixes. Longer
// sequences grow as their elements arrive, so a forged prefix costs at most
// this many slots up front.
const maxPrealloc = 1024

// readChunk is the largest byte slice allocated before its bytes arrive.
const readChunk = 64 << 10

// CapHint bounds a decoded length for use as a capacity hint.
func CapHint(n int) int {
	return min(n, maxPrealloc)
}

// ErrLengthOutOfRange is returned when a length prefix is negative or too large.
var ErrLengthOutOfRange = errors.New("wire: length out of range")

// Writer writes primitive values to an io.Writer.
type Writer struct {
	w   io.Writer
	err error
	buf [8]byte
	n   int64
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first write error, if any.
func (w *Writer) Err() error { return w.err }

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 { return w.n }

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	if err != nil {
		w.err = err
	}
}

// WriteByte writes a single byte. It always returns nil; check Err.
func (w *Writer) WriteByte(b byte) error {
	w.buf[0] = b
	w.write(w.buf[:1])
	return nil
}

// WriteBool writes 1 or 0.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteByte(1)
		return
	}
	w.WriteByte(0)
}

// WriteInt32 writes a little-endian int32.
func (w *Writer) WriteInt32(v int32) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(v))
	w.write(w.buf[:4])
}

// WriteInt64 writes a little-endian int64.
func (w *Writer) WriteInt64(v int64) {
	binary.LittleEndian.PutUint64(w.buf[:8], uint64(v))
	w.write(w.buf[:8])
}

// WriteLength writes a non-negative length prefix.
func (w *Writer) WriteLength(n int) {
	if n < 0 || n > MaxLength {
		if w.err == nil {
			w.err = fmt.Errorf("%w: %d", ErrLengthOutOfRange, n)
		}
		return
	}
	w.WriteInt32(int32(n))
}

// WriteBytes writes a length-prefixed byte slice.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteLength(len(b))
	w.write(b)
}

// WriteString writes a length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteLength(len(s))
	if w.err != nil || len(s) == 0 {
		return
	}
	if sw, ok := w.w.(io.StringWriter); ok {
		n, err := sw.WriteString(s)
		w.n += int64(n)
		if err != nil {
			w.err = err
		}
		return
	}
	w.write([]byte(s))
}

// WriteStrings writes a count followed by each string.
func (w *Writer) WriteStrings(ss []string) {
	w.WriteLength(len(ss))
	for _, s := range ss {
		w.WriteString(s)
	}
}

// WriteChecksum writes the raw checksum bytes without a prefix.
func (w *Writer) WriteChecksum(c checksum.Checksum) {
	w.write(c.Bytes())
}

// Reader reads primitive values written by Writer.
type Reader struct {
	r   io.Reader
	err error
	buf [8]byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first read error, if any.
func (r *Reader) Err() error { return r.err }

// Fail records err as the sticky error if none is set yet.
// Codecs use it to report semantic decode failures.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) read(p []byte) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = err
		return false
	}
	return true
}

// ReadByte reads one byte.
func (r *Reader) ReadByte() (byte, error) {
	if !r.read(r.buf[:1]) {
		return 0, r.err
	}
	return r.buf[0], nil
}

// ReadBool reads a byte written by WriteBool.
func (r *Reader) ReadBool() bool {
	b, _ := r.ReadByte()
	return b != 0
}

// ReadInt32 reads a little-endian int32.
func (r *Reader) ReadInt32() int32 {
	if !r.read(r.buf[:4]) {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(r.buf[:4]))
}

// ReadInt64 reads a little-endian int64.
func (r *Reader) ReadInt64() int64 {
	if !r.read(r.buf[:8]) {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(r.buf[:8]))
}

// ReadLength reads and validates a length prefix.
func (r *Reader) ReadLength() int {
	n := r.ReadInt32()
	if r.err != nil {
		return 0
	}
	if n < 0 || int(n) > MaxLength {
		r.Fail(fmt.Errorf("%w: %d", ErrLengthOutOfRange, n))
		return 0
	}
	return int(n)
}

// ReadBytes reads a length-prefixed byte slice.
func (r *Reader) ReadBytes() []byte {
	n := r.ReadLength()
	if r.err != nil {
		return nil
	}
	if n <= readChunk {
		b := make([]byte, n)
		if !r.read(b) {
			return nil
		}
		return b
	}
	var buf bytes.Buffer
	buf.Grow(readChunk)
	if _, err := io.CopyN(&buf, r.r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.Fail(err)
		return nil
	}
	return buf.Bytes()
}

// ReadString reads a length-prefixed string.
func (r *Reader) ReadString() string {
	return string(r.ReadBytes())
}

// ReadStrings reads a string array. An empty array decodes as nil.
func (r *Reader) ReadStrings() []string {
	n := r.ReadLength()
	if r.err != nil || n == 0 {
		return nil
	}
	out := make([]string, 0, CapHint(n))
	for i := 0; i < n; i++ {
		out = append(out, r.ReadString())
		if r.err != nil {
			return nil
		}
	}
	return out
}

// ReadChecksum reads checksum.Size raw bytes.
func (r *Reader) ReadChecksum() checksum.Checksum {
	b := make([]byte, checksum.Size)
	if !r.read(b) {
		return checksum.Null
	}
	c, err := checksum.FromBytes(b)
	if err != nil {
		r.Fail(err)
	}
	return c
}
