package binlog

import (
	"bytes"
	"io"
)

// reader decodes little-endian fields from a complete payload.
// The first failure sticks in err and turns later reads into no-ops.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) buffer() []byte {
	return r.buf[r.off:]
}

func (r *reader) ensure(n int) error {
	if r.err == nil && n > len(r.buf)-r.off {
		r.err = io.ErrUnexpectedEOF
	}
	return r.err
}

func (r *reader) more() bool {
	return r.err == nil && r.off < len(r.buf)
}

func (r *reader) peek() (byte, error) {
	if err := r.ensure(1); err != nil {
		return 0, err
	}
	return r.buf[r.off], nil
}

func (r *reader) skip(n int) error {
	if err := r.ensure(n); err != nil {
		return err
	}
	r.off += n
	return nil
}

// int ---

func (r *reader) int1() byte {
	if r.ensure(1) != nil {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) int2() uint16 {
	return uint16(r.intFixed(2))
}

func (r *reader) int3() uint32 {
	return uint32(r.intFixed(3))
}

func (r *reader) int4() uint32 {
	return uint32(r.intFixed(4))
}

func (r *reader) int6() uint64 {
	return r.intFixed(6)
}

func (r *reader) int8() uint64 {
	return r.intFixed(8)
}

func (r *reader) intFixed(n int) uint64 {
	if r.ensure(n) != nil {
		return 0
	}
	var v uint64
	for i, b := range r.buf[r.off : r.off+n] {
		v |= uint64(b) << (uint(i) * 8)
	}
	r.off += n
	return v
}

// https://dev.mysql.com/doc/internals/en/integer.html#length-encoded-integer
func (r *reader) intN() uint64 {
	b := r.int1()
	if r.err != nil {
		return 0
	}
	switch b {
	case 0xfc:
		return uint64(r.int2())
	case 0xfd:
		return uint64(r.int3())
	case 0xfe:
		return r.int8()
	default:
		return uint64(b)
	}
}

// bytes, strings ---

func (r *reader) bytesInternal(n int) []byte {
	if n < 0 {
		r.err = ErrMalformedPacket
		return nil
	}
	if r.ensure(n) != nil {
		return nil
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v
}

func (r *reader) bytes(n int) []byte {
	v := r.bytesInternal(n)
	if v == nil {
		return nil
	}
	return append([]byte(nil), v...)
}

func (r *reader) string(n int) string {
	return string(r.bytesInternal(n))
}

func (r *reader) bytesNullInternal() []byte {
	if r.err != nil {
		return nil
	}
	i := bytes.IndexByte(r.buf[r.off:], 0)
	if i == -1 {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	v := r.buf[r.off : r.off+i]
	r.off += i + 1
	return v
}

func (r *reader) bytesNull() []byte {
	return append([]byte(nil), r.bytesNullInternal()...)
}

func (r *reader) stringNull() string {
	return string(r.bytesNullInternal())
}

func (r *reader) bytesEOFInternal() []byte {
	if r.err != nil {
		return nil
	}
	v := r.buf[r.off:]
	r.off = len(r.buf)
	return v
}

func (r *reader) bytesEOF() []byte {
	return append([]byte(nil), r.bytesEOFInternal()...)
}

func (r *reader) stringEOF() string {
	return string(r.bytesEOFInternal())
}

func (r *reader) stringN() string {
	l := r.intN()
	if r.err != nil {
		return ""
	}
	return r.string(int(l))
}

func (r *reader) bytesN() []byte {
	l := r.intN()
	if r.err != nil {
		return nil
	}
	return r.bytes(int(l))
}
