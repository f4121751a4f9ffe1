package binlog

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// numEventTypes is the length of post-header lengths array in
// generated format description events.
const numEventTypes = 40

// eventBuilder generates raw events as a v4 server writes them.
type eventBuilder struct {
	serverID  uint32
	timestamp uint32
	pos       uint32
	checksum  bool
}

func newEventBuilder() *eventBuilder {
	return &eventBuilder{serverID: 1, timestamp: 1600000000, pos: MagicSize}
}

func (b *eventBuilder) event(typ EventType, body []byte) []byte {
	return b.eventCRC(typ, body, b.checksum)
}

func (b *eventBuilder) eventCRC(typ EventType, body []byte, crc bool) []byte {
	size := eventHeaderSize + len(body)
	if crc {
		size += 4
	}
	b.pos += uint32(size)
	w := &writer{}
	w.int4(b.timestamp)
	w.int1(uint8(typ))
	w.int4(b.serverID)
	w.int4(uint32(size))
	w.int4(b.pos)
	w.int2(0)
	w.Write(body)
	if crc {
		w.int4(crc32.ChecksumIEEE(w.buf))
	}
	return w.buf
}

func postHeaderLengths() []byte {
	lengths := make([]byte, numEventTypes)
	set := func(typ EventType, n int) { lengths[typ-1] = byte(n) }
	set(QUERY_EVENT, 13)
	set(ROTATE_EVENT, 8)
	set(FORMAT_DESCRIPTION_EVENT, 2+50+4+1+numEventTypes)
	set(TABLE_MAP_EVENT, 8)
	for _, t := range []EventType{WRITE_ROWS_EVENTv1, UPDATE_ROWS_EVENTv1, DELETE_ROWS_EVENTv1} {
		set(t, 8)
	}
	for _, t := range []EventType{WRITE_ROWS_EVENTv2, UPDATE_ROWS_EVENTv2, DELETE_ROWS_EVENTv2} {
		set(t, 10)
	}
	set(INCIDENT_EVENT, 2)
	set(GTID_EVENT, 42)
	set(ANONYMOUS_GTID_EVENT, 42)
	return lengths
}

// fde returns format description event with given checksum algorithm.
// Following events carry checksum if alg is CRC32.
func (b *eventBuilder) fde(alg byte) []byte {
	w := &writer{}
	w.int2(4)
	version := make([]byte, 50)
	copy(version, "8.0.26-log")
	w.Write(version)
	w.int4(b.timestamp)
	w.int1(eventHeaderSize)
	w.Write(postHeaderLengths())
	w.int1(alg)
	buf := b.eventCRC(FORMAT_DESCRIPTION_EVENT, w.buf, true)
	b.checksum = alg == BINLOG_CHECKSUM_ALG_CRC32
	return buf
}

func (b *eventBuilder) query(schema, q string) []byte {
	w := &writer{}
	w.int4(7) // slave proxy id
	w.int4(0) // execution time
	w.int1(uint8(len(schema)))
	w.int2(0) // error code
	w.int2(0) // status vars length
	w.stringNull(schema)
	w.string(q)
	return b.event(QUERY_EVENT, w.buf)
}

func (b *eventBuilder) xid(id uint64) []byte {
	w := &writer{}
	w.int4(uint32(id))
	w.int4(uint32(id >> 32))
	return b.event(XID_EVENT, w.buf)
}

func (b *eventBuilder) intVar(typ uint8, value uint64) []byte {
	w := &writer{}
	w.int1(typ)
	w.int4(uint32(value))
	w.int4(uint32(value >> 32))
	return b.event(INTVAR_EVENT, w.buf)
}

func (b *eventBuilder) rotate(pos uint64, next string) []byte {
	w := &writer{}
	w.int4(uint32(pos))
	w.int4(uint32(pos >> 32))
	w.string(next)
	return b.event(ROTATE_EVENT, w.buf)
}

// fakeRotate returns rotate event as server sends it at start of a
// dump. It does not advance the position.
func (b *eventBuilder) fakeRotate(pos uint64, file string) []byte {
	w := &writer{}
	w.int4(0) // timestamp
	w.int1(uint8(ROTATE_EVENT))
	w.int4(b.serverID)
	size := eventHeaderSize + 8 + len(file)
	if b.checksum {
		size += 4
	}
	w.int4(uint32(size))
	w.int4(0) // next pos
	w.int2(LOG_EVENT_ARTIFICIAL_F)
	w.int4(uint32(pos))
	w.int4(uint32(pos >> 32))
	w.string(file)
	if b.checksum {
		w.int4(crc32.ChecksumIEEE(w.buf))
	}
	return w.buf
}

// withNextPos returns copy of ev with next position replaced. The
// checksum is recomputed if ev has one.
func withNextPos(ev []byte, nextPos uint32, hasChecksum bool) []byte {
	ev = append([]byte(nil), ev...)
	ev[13], ev[14], ev[15], ev[16] = byte(nextPos), byte(nextPos>>8), byte(nextPos>>16), byte(nextPos>>24)
	if hasChecksum {
		crc := crc32.ChecksumIEEE(ev[:len(ev)-4])
		n := len(ev) - 4
		ev[n], ev[n+1], ev[n+2], ev[n+3] = byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24)
	}
	return ev
}

func (b *eventBuilder) heartbeat(file string) []byte {
	return b.event(HEARTBEAT_EVENT, []byte(file))
}

func writeTableID(w *writer, id uint64) {
	w.int4(uint32(id))
	w.int2(uint16(id >> 32))
}

// tableDef describes a table for table map events.
type tableDef struct {
	id       uint64
	schema   string
	table    string
	types    []byte
	meta     []byte // encoded metadata block
	nullable []byte // bitmap
	names    []string
	pk       []int
}

// testTable is (id INT UNSIGNED PK, name VARCHAR(20) NULL).
func testTable(id uint64) tableDef {
	return tableDef{
		id:       id,
		schema:   "shop",
		table:    "items",
		types:    []byte{MYSQL_TYPE_LONG, MYSQL_TYPE_VARCHAR},
		meta:     []byte{20 * 4, 0}, // varchar meta is max bytes, 2 bytes
		nullable: []byte{0x02},
		names:    []string{"id", "name"},
		pk:       []int{0},
	}
}

func (b *eventBuilder) tableMap(t tableDef) []byte {
	w := &writer{}
	writeTableID(w, t.id)
	w.int2(1)
	w.bytes1([]byte(t.schema))
	w.int1(0)
	w.bytes1([]byte(t.table))
	w.int1(0)
	w.intN(uint64(len(t.types)))
	w.Write(t.types)
	w.bytesN(t.meta)
	w.Write(t.nullable)
	if t.names != nil {
		// signedness, all numeric columns unsigned
		w.int1(metaSignedness)
		w.bytesN([]byte{0x80})
		names := &writer{}
		for _, n := range t.names {
			names.stringN(n)
		}
		w.int1(metaColumnName)
		w.bytesN(names.buf)
	}
	if t.pk != nil {
		pk := &writer{}
		for _, i := range t.pk {
			pk.intN(uint64(i))
		}
		w.int1(metaSimplePrimaryKey)
		w.bytesN(pk.buf)
	}
	return b.event(TABLE_MAP_EVENT, w.buf)
}

// rowImage encodes (id, name) row of testTable. Empty name is NULL.
func rowImage(id uint32, name string) []byte {
	w := &writer{}
	if name == "" {
		w.int1(0x02)
		w.int4(id)
		return w.buf
	}
	w.int1(0x00)
	w.int4(id)
	w.bytes1([]byte(name))
	return w.buf
}

func (b *eventBuilder) rows(typ EventType, tableID uint64, numCol int, images ...[]byte) []byte {
	w := &writer{}
	writeTableID(w, tableID)
	w.int2(STMT_END_F)
	switch typ {
	case WRITE_ROWS_EVENTv2, UPDATE_ROWS_EVENTv2, DELETE_ROWS_EVENTv2:
		w.int2(2)
	}
	w.intN(uint64(numCol))
	all := make([]byte, bitmapSize(uint64(numCol)))
	for i := 0; i < numCol; i++ {
		all[i/8] |= 1 << uint(i%8)
	}
	w.Write(all)
	if typ.IsUpdateRows() {
		w.Write(all)
	}
	for _, img := range images {
		w.Write(img)
	}
	return b.event(typ, w.buf)
}

// writeBinlog writes magic number followed by events into dir/name.
func writeBinlog(t *testing.T, dir, name string, events ...[]byte) string {
	t.Helper()
	data := append([]byte(nil), fileHeader...)
	for _, e := range events {
		data = append(data, e...)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func writeIndex(t *testing.T, dir string, files ...string) {
	t.Helper()
	for _, f := range files {
		require.NoError(t, appendLine(filepath.Join(dir, indexFile), f))
	}
}
