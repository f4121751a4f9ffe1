package binlog

import (
	"errors"
	"fmt"
)

const (
	okMarker  = 0x00
	eofMarker = 0xfe
	errMarker = 0xff
)

const (
	COM_QUERY       = 0x03
	COM_BINLOG_DUMP = 0x12
)

// https://dev.mysql.com/doc/internals/en/packet-ERR_Packet.html

type errPacket struct {
	errorCode      uint16
	sqlStateMarker string
	sqlState       string
	errorMessage   string
}

func (e *errPacket) decode(r *reader, capabilities uint32) error {
	header := r.int1()
	if r.err != nil {
		return r.err
	}
	if header != errMarker {
		return fmt.Errorf("errPacket.decode: got header %0x", header)
	}
	e.errorCode = r.int2()
	if capabilities&CLIENT_PROTOCOL_41 != 0 {
		e.sqlStateMarker = r.string(1)
		e.sqlState = r.string(5)
	}
	e.errorMessage = r.stringEOF()
	return r.err
}

func (e *errPacket) Error() string {
	if e.sqlState == "" {
		return fmt.Sprintf("mysql error %d: %s", e.errorCode, e.errorMessage)
	}
	return fmt.Sprintf("mysql error %d (%s): %s", e.errorCode, e.sqlState, e.errorMessage)
}

// https://dev.mysql.com/doc/internals/en/packet-OK_Packet.html

type okPacket struct {
	affectedRows uint64
	lastInsertID uint64
	statusFlags  uint16
	warnings     uint16
	info         string
}

func (e *okPacket) decode(r *reader, capabilities uint32) error {
	header := r.int1()
	if r.err != nil {
		return r.err
	}
	if header != okMarker && header != eofMarker {
		return fmt.Errorf("okPacket.decode: got header %0x", header)
	}
	e.affectedRows = r.intN()
	e.lastInsertID = r.intN()
	if capabilities&CLIENT_PROTOCOL_41 != 0 {
		e.statusFlags = r.int2()
		e.warnings = r.int2()
	}
	e.info = r.stringEOF()
	return r.err
}

// https://dev.mysql.com/doc/internals/en/packet-EOF_Packet.html

type eofPacket struct {
	warnings    uint16
	statusFlags uint16
}

func (e *eofPacket) decode(r *reader, capabilities uint32) error {
	header := r.int1()
	if r.err != nil {
		return r.err
	}
	if header != eofMarker {
		return fmt.Errorf("eofPacket.decode: got header %0x", header)
	}
	if capabilities&CLIENT_PROTOCOL_41 != 0 {
		e.warnings = r.int2()
		e.statusFlags = r.int2()
	}
	return r.err
}

// isEOF tells whether payload is an eofPacket rather than a row
// that happens to start with 0xfe.
func isEOF(payload []byte) bool {
	return len(payload) > 0 && payload[0] == eofMarker && len(payload) < 9
}

// readOkErr reads a packet and expects it to be okPacket.
func (c *packetConn) readOkErr(buf *eventBuffer, capabilities uint32) error {
	payload, err := c.readPacket(buf)
	if err != nil {
		return err
	}
	r := newReader(payload)
	marker, err := r.peek()
	if err != nil {
		return err
	}
	switch marker {
	case okMarker:
		return (&okPacket{}).decode(r, capabilities)
	case errMarker:
		ep := &errPacket{}
		if err := ep.decode(r, capabilities); err != nil {
			return err
		}
		return ep
	}
	return ErrMalformedPacket
}

// comQuery ---

type comQuery struct {
	query string
}

func (e comQuery) encode(w *writer) {
	w.int1(COM_QUERY)
	w.string(e.query)
}

// comBinlogDump ---

// https://dev.mysql.com/doc/internals/en/com-binlog-dump.html

const BINLOG_DUMP_NON_BLOCK = 0x01

type comBinlogDump struct {
	binlogPos      uint32
	flags          uint16
	serverID       uint32
	binlogFilename string
}

func (e comBinlogDump) encode(w *writer) {
	w.int1(COM_BINLOG_DUMP)
	w.int4(e.binlogPos)
	w.int2(e.flags)
	w.int4(e.serverID)
	w.string(e.binlogFilename)
}

var errAuthSwitchTwice = errors.New("binlog: AuthSwitch more than once")
