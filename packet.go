package binlog

import (
	"io"
	"net"
	"time"
)

const (
	headerSize    = 4
	maxPacketSize = 1<<24 - 1
)

// packetConn frames payloads as mysql packets.
//
// https://dev.mysql.com/doc/internals/en/mysql-packet.html
type packetConn struct {
	conn    net.Conn
	seq     uint8
	timeout time.Duration // read timeout, zero means none
	header  [headerSize]byte
}

// readPacket reads one logical payload into buf, joining the
// packets of maxPacketSize that make it up. buf is grown as
// needed and returned.
func (c *packetConn) readPacket(buf *eventBuffer) ([]byte, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}
	n := 0
	for {
		if _, err := io.ReadFull(c.conn, c.header[:]); err != nil {
			if err == io.EOF && n > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		size := int(uint32(c.header[0]) | uint32(c.header[1])<<8 | uint32(c.header[2])<<16)
		c.seq = c.header[3] + 1

		if n+size > buf.Cap() {
			// keep what is read so far
			old := append([]byte(nil), buf.buf[:n]...)
			copy(buf.reserve(n+size), old)
		} else {
			buf.reserve(n + size)
		}
		if _, err := io.ReadFull(c.conn, buf.buf[n:n+size]); err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		n += size
		if size < maxPacketSize {
			return buf.buf[:n], nil
		}
	}
}

// writePacket writes payload splitting it into packets of maxPacketSize.
func (c *packetConn) writePacket(payload []byte) error {
	for {
		size := len(payload)
		if size > maxPacketSize {
			size = maxPacketSize
		}
		c.header[0], c.header[1], c.header[2], c.header[3] = byte(size), byte(size>>8), byte(size>>16), c.seq
		c.seq++
		if _, err := c.conn.Write(c.header[:]); err != nil {
			return err
		}
		if _, err := c.conn.Write(payload[:size]); err != nil {
			return err
		}
		payload = payload[size:]
		if size < maxPacketSize {
			return nil
		}
	}
}

// write encodes cmd and sends it.
func (c *packetConn) write(cmd interface{ encode(w *writer) }) error {
	w := &writer{}
	cmd.encode(w)
	return c.writePacket(w.buf)
}

// command sends cmd as the first packet of a new command phase.
func (c *packetConn) command(cmd interface{ encode(w *writer) }) error {
	c.seq = 0
	return c.write(cmd)
}

func (c *packetConn) close() error {
	return c.conn.Close()
}
