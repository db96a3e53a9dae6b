package packet

import (
	"encoding/binary"
	"math"
)

// Reader reads packet fields from a payload. Byte 0 is always the tag.
// The first out-of-bounds read latches ErrTruncated; later reads return
// zero values and Err reports the failure.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 1} // skip tag byte
}

func (r *Reader) Tag() Tag {
	if len(r.data) == 0 {
		return 0
	}
	return Tag(r.data[0])
}

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = ErrTruncated
		r.off = len(r.data)
		return false
	}
	return true
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadBool reads 1 byte; any non-zero value is true.
func (r *Reader) ReadBool() bool {
	return r.ReadC() != 0
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

// ReadQ reads 8 bytes as little-endian int64.
func (r *Reader) ReadQ() int64 {
	if !r.need(8) {
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}

// ReadF reads 4 bytes as a little-endian IEEE-754 float32.
func (r *Reader) ReadF() float32 {
	if !r.need(4) {
		return 0
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

// ReadS reads a uvarint length-prefixed UTF-8 string.
func (r *Reader) ReadS() string {
	if r.err != nil {
		return ""
	}
	n, size := binary.Uvarint(r.data[r.off:])
	if size <= 0 {
		r.err = ErrTruncated
		r.off = len(r.data)
		return ""
	}
	r.off += size
	if n > uint64(len(r.data)-r.off) {
		r.err = ErrTruncated
		r.off = len(r.data)
		return ""
	}
	s := string(r.data[r.off : r.off+int(n)])
	r.off += int(n)
	return s
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns the first read failure, if any.
func (r *Reader) Err() error {
	return r.err
}
