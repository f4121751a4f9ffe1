package binlog

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FormatDescriptionEvent is written to the beginning of the each binary log file.
// This event is used as of MySQL 5.0; it supersedes START_EVENT_V3.
//
// https://dev.mysql.com/doc/internals/en/format-description-event.html
type FormatDescriptionEvent struct {
	BinlogVersion          uint16
	ServerVersion          string
	CreateTimestamp        uint32
	EventHeaderLength      uint8
	EventTypeHeaderLengths []byte
	ChecksumAlg            uint8
}

const (
	BINLOG_CHECKSUM_ALG_OFF   = 0
	BINLOG_CHECKSUM_ALG_CRC32 = 1
	BINLOG_CHECKSUM_ALG_UNDEF = 255
)

func (e *FormatDescriptionEvent) decode(r *reader) error {
	e.BinlogVersion = r.int2()
	e.ServerVersion = r.string(50)
	if i := strings.IndexByte(e.ServerVersion, 0); i != -1 {
		e.ServerVersion = e.ServerVersion[:i]
	}
	e.CreateTimestamp = r.int4()
	e.EventHeaderLength = r.int1()
	if err := r.ensure(int(FORMAT_DESCRIPTION_EVENT)); err != nil {
		return err
	}
	// post-header length of this event tells where the array ends
	fdeLen := int(r.buffer()[FORMAT_DESCRIPTION_EVENT-1])
	n := fdeLen - r.off
	if n <= 0 || n > len(r.buffer()) {
		n = len(r.buffer())
	}
	e.EventTypeHeaderLengths = r.bytes(n)
	e.ChecksumAlg = BINLOG_CHECKSUM_ALG_UNDEF
	if r.more() {
		e.ChecksumAlg = r.int1()
	}
	return r.err
}

// postHeaderLength returns the post-header length for typ, or def if unknown.
func (e *FormatDescriptionEvent) postHeaderLength(typ EventType, def int) int {
	if e != nil && typ > 0 && len(e.EventTypeHeaderLengths) >= int(typ) {
		return int(e.EventTypeHeaderLengths[typ-1])
	}
	return def
}

// RotateEvent is written when mysqld switches to a new binary log file.
// This occurs when someone issues a FLUSH LOGS statement or
// the current binary log file becomes too large.
// The maximum size is determined by max_binlog_size.
//
// https://dev.mysql.com/doc/internals/en/rotate-event.html
type RotateEvent struct {
	Position   uint64
	NextBinlog string
}

func (e *RotateEvent) decode(r *reader) error {
	e.Position = r.int8()
	e.NextBinlog = r.stringEOF()
	return r.err
}

// QueryEvent is written when an updating statement is done.
// The query event is used to send text query right the binlog.
//
// https://dev.mysql.com/doc/internals/en/query-event.html
type QueryEvent struct {
	SlaveProxyID  uint32
	ExecutionTime uint32
	ErrorCode     uint16
	StatusVars    []byte
	Schema        string
	Query         string
}

func (e *QueryEvent) decode(r *reader) error {
	e.SlaveProxyID = r.int4()
	e.ExecutionTime = r.int4()
	schemaLen := r.int1()
	e.ErrorCode = r.int2()
	statusVarsLen := r.int2()
	if r.err != nil {
		return r.err
	}
	e.StatusVars = r.bytes(int(statusVarsLen))
	e.Schema = r.string(int(schemaLen))
	r.skip(1)
	e.Query = r.stringEOF()
	return r.err
}

// XidEvent is generated for a commit of a transaction that modifies
// one or more tables of an XA-capable storage engine.
//
// https://dev.mysql.com/doc/internals/en/xid-event.html
type XidEvent struct {
	XID uint64
}

func (e *XidEvent) decode(r *reader) error {
	e.XID = r.int8()
	return r.err
}

// IncidentEvent used to log an out of the ordinary event that
// occurred on the master. It notifies the slave that something
// happened on the master that might cause data to be in an
// inconsistent state.
//
// https://dev.mysql.com/doc/internals/en/incident-event.html
type IncidentEvent struct {
	Type    uint16
	Message string
}

func (e *IncidentEvent) decode(r *reader) error {
	e.Type = r.int2()
	size := r.int1()
	e.Message = r.string(int(size))
	return r.err
}

// RandEvent is written every time a statement uses the RAND() function.
// It precedes other events for the statement. Indicates the seed values
// to use for generating a random number with RAND() in the next statement.
// This is written only before a QUERY_EVENT and is not used with row-based logging.
//
// https://dev.mysql.com/doc/internals/en/rand-event.html
type RandEvent struct {
	Seed1 uint64
	Seed2 uint64
}

func (e *RandEvent) decode(r *reader) error {
	e.Seed1 = r.int8()
	e.Seed2 = r.int8()
	return r.err
}

// StopEvent signals last event in the file.
//
// https://dev.mysql.com/doc/internals/en/stop-event.html
type StopEvent struct{}

// IntVarEvent written every time a statement uses an AUTO_INCREMENT column
// or the LAST_INSERT_ID() function. It precedes other events for the statement.
// This is written only before a QUERY_EVENT and is not used with row-based logging.
//
// https://dev.mysql.com/doc/internals/en/intvar-event.html
type IntVarEvent struct {
	// Type indicates subtype.
	//
	// INSERT_ID_EVENT(0x02) indicates the value to use for an AUTO_INCREMENT column in the next statement.
	//
	// LAST_INSERT_ID_EVENT(0x01) indicates the value to use for the LAST_INSERT_ID() function in the next statement.
	Type  uint8
	Value uint64
}

func (e *IntVarEvent) decode(r *reader) error {
	e.Type = r.int1()
	e.Value = r.int8()
	return r.err
}

// UserVarEvent is written every time a statement uses a user variable.
// It precedes other events for the statement. Indicates the value to
// use for the user variable in the next statement. This is written only
// before a QUERY_EVENT and is not used with row-based logging.
//
// https://dev.mysql.com/doc/internals/en/user-var-event.html
type UserVarEvent struct {
	Name     string
	Null     bool
	Type     uint8
	Charset  uint32
	Value    []byte
	Unsigned bool
}

func (e *UserVarEvent) decode(r *reader) error {
	nameLen := r.int4()
	if r.err != nil {
		return r.err
	}
	e.Name = r.string(int(nameLen))
	e.Null = r.int1() != 0
	if r.err != nil || e.Null {
		return r.err
	}
	e.Type = r.int1()
	e.Charset = r.int4()
	valueLen := r.int4()
	if r.err != nil {
		return r.err
	}
	e.Value = r.bytes(int(valueLen))
	if r.more() {
		e.Unsigned = r.int1()&0x01 != 0
	}
	return r.err
}

// HeartbeatEvent sent by a master to a slave to let the slave
// know that the master is still alive. Not written to log files.
//
// https://dev.mysql.com/doc/internals/en/heartbeat-event.html
type HeartbeatEvent struct {
	LogFile string
}

func (e *HeartbeatEvent) decode(r *reader) error {
	e.LogFile = r.stringEOF()
	return r.err
}

// RowsQueryEvent carries the statement that produced the following
// rows events. Server variable binlog_rows_query_log_events must be ON.
//
// https://dev.mysql.com/doc/internals/en/rows-query-event.html
type RowsQueryEvent struct {
	Query string
}

func (e *RowsQueryEvent) decode(r *reader) error {
	r.int1() // length ignored
	e.Query = r.stringEOF()
	return r.err
}

// GTIDEvent precedes each transaction when gtid mode is on. It is used
// for ANONYMOUS_GTID_EVENT too, with zero SID and GNO.
type GTIDEvent struct {
	CommitFlag     bool
	SID            [16]byte
	GNO            uint64
	LastCommitted  int64
	SequenceNumber int64
}

// GTID returns the gtid in uuid:gno notation.
func (e *GTIDEvent) GTID() string {
	return fmt.Sprintf("%s:%d", formatUUID(e.SID[:]), e.GNO)
}

func (e *GTIDEvent) decode(r *reader) error {
	e.CommitFlag = r.int1() != 0
	copy(e.SID[:], r.bytesInternal(16))
	e.GNO = r.int8()
	if r.more() && r.int1() == 2 { // logical timestamps
		e.LastCommitted = int64(r.int8())
		e.SequenceNumber = int64(r.int8())
	}
	return r.err
}

// PreviousGTIDsEvent is written at start of each binary log
// and lists gtids of all previous binary logs.
type PreviousGTIDsEvent struct {
	Sets []GTIDSet
}

type GTIDSet struct {
	SID       [16]byte
	Intervals [][2]uint64 // [start, end)
}

func (e *PreviousGTIDsEvent) decode(r *reader) error {
	n := r.int8()
	for i := uint64(0); i < n && r.err == nil; i++ {
		var set GTIDSet
		copy(set.SID[:], r.bytesInternal(16))
		m := r.int8()
		for j := uint64(0); j < m && r.err == nil; j++ {
			set.Intervals = append(set.Intervals, [2]uint64{r.int8(), r.int8()})
		}
		e.Sets = append(e.Sets, set)
	}
	return r.err
}

func (e *PreviousGTIDsEvent) String() string {
	var b strings.Builder
	for i, set := range e.Sets {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatUUID(set.SID[:]))
		for _, in := range set.Intervals {
			if in[1]-in[0] == 1 {
				fmt.Fprintf(&b, ":%d", in[0])
			} else {
				fmt.Fprintf(&b, ":%d-%d", in[0], in[1]-1)
			}
		}
	}
	return b.String()
}

func formatUUID(b []byte) string {
	s := hex.EncodeToString(b)
	return s[:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
}

// UnknownEvent holds body of events this package does not decode.
type UnknownEvent struct {
	Body []byte
}
