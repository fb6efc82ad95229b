package protocol

import (
	"encoding/binary"
	"math"
)

// Frame is an appendable buffer of opcode-tagged records exchanged over the
// link. Several records may be packed into one frame.
// Layout of a record: Opcode(2) | payload (per opcode layout)
// Numeric fields are big-endian; strings carry a u32 length prefix and no
// terminator.
type Frame struct {
	buf []byte
}

// NewFrame returns an empty frame, optionally seeded with a leading opcode.
func NewFrame(ops ...Opcode) *Frame {
	f := &Frame{buf: make([]byte, 0, 64)}
	for _, op := range ops {
		f.WriteOpcode(op)
	}
	return f
}

func (f *Frame) Len() int { return len(f.buf) }

// Bytes returns the encoded frame. The slice aliases the frame buffer.
func (f *Frame) Bytes() []byte { return f.buf }

func (f *Frame) Reset() { f.buf = f.buf[:0] }

func (f *Frame) WriteOpcode(op Opcode) { f.WriteU16(uint16(op)) }

func (f *Frame) WriteU8(v uint8) { f.buf = append(f.buf, v) }

func (f *Frame) WriteU16(v uint16) { f.buf = binary.BigEndian.AppendUint16(f.buf, v) }

func (f *Frame) WriteU32(v uint32) { f.buf = binary.BigEndian.AppendUint32(f.buf, v) }

func (f *Frame) WriteI32(v int32) { f.WriteU32(uint32(v)) }

func (f *Frame) WriteF32(v float32) { f.WriteU32(math.Float32bits(v)) }

func (f *Frame) WriteBool(v bool) {
	if v {
		f.WriteU32(1)
	} else {
		f.WriteU32(0)
	}
}

func (f *Frame) WriteString(s string) {
	f.WriteU32(uint32(len(s)))
	f.buf = append(f.buf, s...)
}

// WriteBytes appends raw bytes without a length prefix.
func (f *Frame) WriteBytes(b []byte) { f.buf = append(f.buf, b...) }

// Reader consumes a payload sequentially. Reads past the end fail with
// ErrShortPayload and leave the reader positioned where it was.
type Reader struct {
	data []byte
	off  int
}

func NewReader(data []byte) *Reader { return &Reader{data: data} }

func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrShortPayload
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU32()
	return v != 0, err
}

// ReadString reads a u32 length prefix followed by that many bytes. A prefix
// larger than the remaining buffer fails without consuming anything.
func (r *Reader) ReadString() (string, error) {
	start := r.off
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(r.Remaining()) {
		r.off = start
		return "", ErrShortPayload
	}
	b, _ := r.take(int(n))
	return string(b), nil
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
