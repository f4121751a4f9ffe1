package binlog

import (
	"fmt"
	"hash/crc32"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTableCacheSize is the number of table maps a Decoder remembers.
const DefaultTableCacheSize = 1024

// Decoder turns raw event buffers into Events. It tracks the latest
// FormatDescriptionEvent and the table maps seen so far, so buffers
// must be fed in stream order.
type Decoder struct {
	// VerifyChecksum enables CRC32 verification when the
	// binary log has checksums.
	VerifyChecksum bool

	fde      *FormatDescriptionEvent
	checksum bool
	logFile  string
	tables   *lru.Cache[uint64, *TableMapEvent]
}

// NewDecoder creates a Decoder remembering up to tableCacheSize table
// maps. Non-positive size uses DefaultTableCacheSize.
func NewDecoder(tableCacheSize int) *Decoder {
	if tableCacheSize <= 0 {
		tableCacheSize = DefaultTableCacheSize
	}
	tables, err := lru.New[uint64, *TableMapEvent](tableCacheSize)
	if err != nil {
		panic(err) // only fails for non-positive size
	}
	return &Decoder{VerifyChecksum: true, tables: tables}
}

// SetLogFile sets the file name reported in event headers. It is
// updated by rotate events.
func (d *Decoder) SetLogFile(name string) {
	d.logFile = name
}

// SetChecksum tells whether events carry checksum before the first
// FormatDescriptionEvent is seen. Network sources know it from server.
func (d *Decoder) SetChecksum(on bool) {
	d.checksum = on
}

// FormatDescription returns the latest FormatDescriptionEvent, or nil.
func (d *Decoder) FormatDescription() *FormatDescriptionEvent {
	return d.fde
}

// Reset forgets table maps. It is called when the log is repositioned.
func (d *Decoder) Reset() {
	d.tables.Purge()
}

// Decode decodes buf, which must hold exactly one event. The returned
// event does not reference buf.
func (d *Decoder) Decode(buf []byte) (*Event, error) {
	if len(buf) < eventHeaderSize {
		return nil, newError(ErrPacketLength, "Decode", fmt.Errorf("event of %d bytes is shorter than header", len(buf)))
	}
	e := &Event{}
	if err := e.Header.decode(newReader(buf[:eventHeaderSize])); err != nil {
		return nil, err
	}
	if int(e.Header.EventSize) != len(buf) {
		return nil, newError(ErrPacketLength, "Decode", fmt.Errorf("header says %d bytes, got %d", e.Header.EventSize, len(buf)))
	}
	e.Header.LogFile = d.logFile

	body := buf[eventHeaderSize:]
	if e.Header.EventType == FORMAT_DESCRIPTION_EVENT {
		fde := &FormatDescriptionEvent{}
		var crc []byte
		body, crc = splitFDEChecksum(body)
		if err := fde.decode(newReader(body)); err != nil {
			return nil, fmt.Errorf("binlog.Decode: formatDescription: %w", err)
		}
		if crc != nil && fde.ChecksumAlg == BINLOG_CHECKSUM_ALG_CRC32 && d.VerifyChecksum {
			if err := verifyChecksum(buf[:len(buf)-4], crc); err != nil {
				return nil, err
			}
		}
		d.fde = fde
		d.checksum = fde.ChecksumAlg == BINLOG_CHECKSUM_ALG_CRC32
		e.Data = fde
		return e, nil
	}
	if d.checksum {
		if len(body) < 4 {
			return nil, newError(ErrPacketLength, "Decode", fmt.Errorf("%s event too short for checksum", e.Header.EventType))
		}
		crc := body[len(body)-4:]
		body = body[:len(body)-4]
		if d.VerifyChecksum {
			if err := verifyChecksum(buf[:len(buf)-4], crc); err != nil {
				return nil, err
			}
		}
	}

	r := newReader(body)
	var err error
	switch typ := e.Header.EventType; {
	case typ == QUERY_EVENT:
		ev := &QueryEvent{}
		err, e.Data = ev.decode(r), ev
	case typ == XID_EVENT:
		ev := &XidEvent{}
		err, e.Data = ev.decode(r), ev
	case typ == TABLE_MAP_EVENT:
		ev := &TableMapEvent{}
		if err = ev.decode(r, d.fde); err == nil {
			d.tables.Add(ev.TableID, ev)
		}
		e.Data = ev
	case typ.IsRows():
		ev := &RowsEvent{}
		if err = ev.decode(r, d.fde, typ); err == nil {
			ev.TableMap, _ = d.tables.Get(ev.TableID)
		}
		e.Data = ev
	case typ == ROTATE_EVENT:
		ev := &RotateEvent{}
		if err = ev.decode(r); err == nil {
			d.logFile = ev.NextBinlog
			// server sends artificial rotate when a dump is resumed,
			// table ids stay valid then
			if e.Header.Flags&LOG_EVENT_ARTIFICIAL_F == 0 {
				d.tables.Purge()
			}
		}
		e.Data = ev
	case typ == INTVAR_EVENT:
		ev := &IntVarEvent{}
		err, e.Data = ev.decode(r), ev
	case typ == RAND_EVENT:
		ev := &RandEvent{}
		err, e.Data = ev.decode(r), ev
	case typ == USER_VAR_EVENT:
		ev := &UserVarEvent{}
		err, e.Data = ev.decode(r), ev
	case typ == INCIDENT_EVENT:
		ev := &IncidentEvent{}
		err, e.Data = ev.decode(r), ev
	case typ == STOP_EVENT:
		e.Data = &StopEvent{}
	case typ == HEARTBEAT_EVENT:
		ev := &HeartbeatEvent{}
		err, e.Data = ev.decode(r), ev
	case typ == ROWS_QUERY_EVENT:
		ev := &RowsQueryEvent{}
		err, e.Data = ev.decode(r), ev
	case typ == GTID_EVENT || typ == ANONYMOUS_GTID_EVENT:
		ev := &GTIDEvent{}
		err, e.Data = ev.decode(r), ev
	case typ == PREVIOUS_GTIDS_EVENT:
		ev := &PreviousGTIDsEvent{}
		err, e.Data = ev.decode(r), ev
	default:
		e.Data = &UnknownEvent{Body: append([]byte(nil), body...)}
	}
	if err != nil {
		return nil, fmt.Errorf("binlog.Decode: %s: %w", e.Header.EventType, err)
	}
	return e, nil
}

// splitFDEChecksum strips the trailing checksum of FormatDescriptionEvent.
// Servers supporting checksums always append alg byte and 4 bytes of
// checksum, which is zero if checksums are off.
func splitFDEChecksum(body []byte) ([]byte, []byte) {
	const fdeLenOffset = 2 + 50 + 4 + 1 + int(FORMAT_DESCRIPTION_EVENT) - 1
	if len(body) <= fdeLenOffset {
		return body, nil
	}
	fdeLen := int(body[fdeLenOffset])
	if len(body) >= fdeLen+1+4 {
		return body[:len(body)-4], body[len(body)-4:]
	}
	return body, nil
}

func verifyChecksum(data, crc []byte) error {
	want := uint32(crc[0]) | uint32(crc[1])<<8 | uint32(crc[2])<<16 | uint32(crc[3])<<24
	if got := crc32.ChecksumIEEE(data); got != want {
		return newError(ErrFail, "Decode", fmt.Errorf("checksum failed got=%08x want=%08x", got, want))
	}
	return nil
}
