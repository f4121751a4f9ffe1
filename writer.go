package binlog

// writer builds a command payload. Framing into packets is done by packetConn.
type writer struct {
	buf []byte
}

func (w *writer) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	return len(b), nil
}

func (w *writer) int1(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) int2(v uint16) {
	w.buf = append(w.buf, byte(v), byte(v>>8))
}

func (w *writer) int4(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// https://dev.mysql.com/doc/internals/en/integer.html#length-encoded-integer
func (w *writer) intN(v uint64) {
	switch {
	case v < 251:
		w.buf = append(w.buf, byte(v))
	case v < 1<<16:
		w.buf = append(w.buf, 0xfc, byte(v), byte(v>>8))
	case v < 1<<24:
		w.buf = append(w.buf, 0xfd, byte(v), byte(v>>8), byte(v>>16))
	default:
		w.buf = append(w.buf, 0xfe, byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
			byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	}
}

func (w *writer) string(v string) {
	w.buf = append(w.buf, v...)
}

func (w *writer) stringNull(v string) {
	w.buf = append(w.buf, v...)
	w.buf = append(w.buf, 0)
}

func (w *writer) stringN(v string) {
	w.intN(uint64(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *writer) bytesNull(v []byte) {
	w.buf = append(w.buf, v...)
	w.buf = append(w.buf, 0)
}

func (w *writer) bytes1(v []byte) {
	w.int1(uint8(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *writer) bytesN(v []byte) {
	w.intN(uint64(len(v)))
	w.buf = append(w.buf, v...)
}
