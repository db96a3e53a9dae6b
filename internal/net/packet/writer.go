package packet

import (
	"encoding/binary"
	"math"
)

// Writer builds a packet. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithTag(tag Tag) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteC(byte(tag))
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteBool writes 1 byte, 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteC(1)
		return
	}
	w.WriteC(0)
}

// WriteD writes 4 bytes little-endian.
func (w *Writer) WriteD(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// WriteQ writes 8 bytes little-endian.
func (w *Writer) WriteQ(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

// WriteF writes a float32 as 4 bytes little-endian.
func (w *Writer) WriteF(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

// WriteS writes a uvarint length prefix followed by the string bytes.
func (w *Writer) WriteS(s string) {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Bytes returns the packet content.
func (w *Writer) Bytes() []byte {
	return w.buf
}
