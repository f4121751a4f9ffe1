package binlog

import (
	"crypto/rsa"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// session is an authenticated connection to a mysql server.
type session struct {
	packetConn
	hs      handshake
	pubKey  *rsa.PublicKey
	scratch eventBuffer
}

// dial connects to address and reads the initial handshake.
func dial(network, address string, timeout time.Duration) (*session, error) {
	conn, err := net.DialTimeout(network, address, timeout)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetKeepAlive(true); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	s := &session{packetConn: packetConn{conn: conn}}
	payload, err := s.readPacket(&s.scratch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if len(payload) > 0 && payload[0] == errMarker {
		ep := &errPacket{}
		if err := ep.decode(newReader(payload), 0); err != nil {
			_ = conn.Close()
			return nil, err
		}
		_ = conn.Close()
		return nil, ep
	}
	if err := s.hs.decode(newReader(payload)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	// unset the features we dont support
	s.hs.capabilityFlags &^= CLIENT_SESSION_TRACK | CLIENT_DEPRECATE_EOF
	return s, nil
}

func (s *session) clientFlags() uint32 {
	return CLIENT_LONG_PASSWORD | CLIENT_LONG_FLAG | CLIENT_TRANSACTIONS | CLIENT_SECURE_CONNECTION
}

func (s *session) isSSLSupported() bool {
	return s.hs.capabilityFlags&CLIENT_SSL != 0
}

// upgradeSSL switches the connection to tls. It must be done
// before authenticate. nil config skips verification.
func (s *session) upgradeSSL(config *tls.Config) error {
	err := s.write(sslRequest{
		capabilityFlags: s.clientFlags(),
		maxPacketSize:   maxPacketSize,
		characterSet:    s.hs.characterSet,
	})
	if err != nil {
		return err
	}
	if config == nil {
		config = &tls.Config{InsecureSkipVerify: true}
	}
	s.conn = tls.Client(s.conn, config)
	return nil
}

// query runs q and returns rows of text resultSet. Statements
// which do not produce resultSet return nil rows.
//
// https://dev.mysql.com/doc/internals/en/com-query-response.html
func (s *session) query(q string) ([][]interface{}, error) {
	if err := s.command(comQuery{q}); err != nil {
		return nil, err
	}
	payload, err := s.readPacket(&s.scratch)
	if err != nil {
		return nil, err
	}
	r := newReader(payload)
	marker, err := r.peek()
	if err != nil {
		return nil, err
	}
	switch marker {
	case okMarker:
		return nil, (&okPacket{}).decode(r, s.hs.capabilityFlags)
	case errMarker:
		ep := &errPacket{}
		if err := ep.decode(r, s.hs.capabilityFlags); err != nil {
			return nil, err
		}
		return nil, ep
	}
	rs := resultSet{}
	if err := rs.decode(s, r); err != nil {
		return nil, err
	}
	return rs.rows(s)
}

// columnDef is column definition for resultSet.
//
// https://dev.mysql.com/doc/internals/en/com-query-response.html#column-definition
type columnDef struct {
	schema       string
	table        string
	orgTable     string
	name         string
	orgName      string
	charset      uint16
	columnLength uint32
	typ          uint8
	flags        uint16
	decimals     uint8
}

func (cd *columnDef) decode(r *reader) error {
	_ = r.stringN() // catalog, always "def"
	cd.schema = r.stringN()
	cd.table = r.stringN()
	cd.orgTable = r.stringN()
	cd.name = r.stringN()
	cd.orgName = r.stringN()
	_ = r.intN() // length of fixed fields, always 0x0c
	cd.charset = r.int2()
	cd.columnLength = r.int4()
	cd.typ = r.int1()
	cd.flags = r.int2()
	cd.decimals = r.int1()
	return r.err
}

// resultSet made up of two parts.
//  1. column definitions
//     - starts with a packet containing the column-count
//     - followed by as many columnDef packets as there are columns
//     - terminated by eofPacket
//  2. rows
//     - each row is a packet
//     - terminated by eofPacket or errPacket
type resultSet struct {
	columnDefs []columnDef
}

func (rs *resultSet) decode(s *session, r *reader) error {
	ncol := r.intN()
	if r.err != nil {
		return r.err
	}
	if r.more() {
		return ErrMalformedPacket
	}
	for i := uint64(0); i < ncol; i++ {
		payload, err := s.readPacket(&s.scratch)
		if err != nil {
			return err
		}
		cd := columnDef{}
		if err := cd.decode(newReader(payload)); err != nil {
			return err
		}
		rs.columnDefs = append(rs.columnDefs, cd)
	}
	payload, err := s.readPacket(&s.scratch)
	if err != nil {
		return err
	}
	return (&eofPacket{}).decode(newReader(payload), s.hs.capabilityFlags)
}

// rows reads remaining rows. NULL is returned as nil, others as string.
func (rs *resultSet) rows(s *session) ([][]interface{}, error) {
	var rows [][]interface{}
	for {
		payload, err := s.readPacket(&s.scratch)
		if err != nil {
			return nil, err
		}
		if isEOF(payload) {
			return rows, nil
		}
		r := newReader(payload)
		if payload[0] == errMarker {
			ep := &errPacket{}
			if err := ep.decode(r, s.hs.capabilityFlags); err != nil {
				return nil, err
			}
			return nil, ep
		}
		row := make([]interface{}, len(rs.columnDefs))
		for i := range row {
			b, err := r.peek()
			if err != nil {
				return nil, err
			}
			if b == 0xfb {
				r.skip(1)
				continue
			}
			row[i] = r.stringN()
		}
		if r.err != nil {
			return nil, r.err
		}
		rows = append(rows, row)
	}
}

// fetchBinlogChecksum returns value of binlog_checksum sys-var.
// Servers older than 5.6 do not have it and return "".
func (s *session) fetchBinlogChecksum() (string, error) {
	rows, err := s.query(`SHOW GLOBAL VARIABLES LIKE 'binlog_checksum'`)
	if err != nil {
		return "", err
	}
	if len(rows) > 0 {
		if v, ok := rows[0][1].(string); ok {
			return v, nil
		}
	}
	return "", nil
}

func (s *session) setHeartbeatPeriod(d time.Duration) error {
	_, err := s.query(fmt.Sprintf("SET @master_heartbeat_period=%d", d))
	return err
}
