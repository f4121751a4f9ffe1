package binlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, d *Decoder, events ...[]byte) []*Event {
	t.Helper()
	var decoded []*Event
	for _, buf := range events {
		e, err := d.Decode(buf)
		require.NoError(t, err)
		decoded = append(decoded, e)
	}
	return decoded
}

func TestDecoder_Decode(t *testing.T) {
	for _, alg := range []byte{BINLOG_CHECKSUM_ALG_OFF, BINLOG_CHECKSUM_ALG_CRC32} {
		b := newEventBuilder()
		d := NewDecoder(0)
		d.SetLogFile("mysql-bin.000001")
		events := decodeAll(t, d,
			b.fde(alg),
			b.query("shop", "BEGIN"),
			b.tableMap(testTable(7)),
			b.rows(WRITE_ROWS_EVENTv2, 7, 2, rowImage(1, "apple"), rowImage(2, "")),
			b.xid(42),
		)

		fde := events[0].Data.(*FormatDescriptionEvent)
		assert.EqualValues(t, 4, fde.BinlogVersion)
		assert.Equal(t, "8.0.26-log", fde.ServerVersion)
		assert.EqualValues(t, eventHeaderSize, fde.EventHeaderLength)
		assert.Len(t, fde.EventTypeHeaderLengths, numEventTypes)
		assert.Equal(t, alg, fde.ChecksumAlg)
		assert.Same(t, fde, d.FormatDescription())

		q := events[1].Data.(*QueryEvent)
		assert.Equal(t, "shop", q.Schema)
		assert.Equal(t, "BEGIN", q.Query)
		assert.Equal(t, "mysql-bin.000001", events[1].Header.LogFile)
		assert.EqualValues(t, 1, events[1].Header.ServerID)

		tm := events[2].Data.(*TableMapEvent)
		assert.EqualValues(t, 7, tm.TableID)
		assert.Equal(t, "shop", tm.SchemaName)
		assert.Equal(t, "items", tm.TableName)
		require.Len(t, tm.Columns, 2)
		assert.Equal(t, Column{Ordinal: 0, Type: MYSQL_TYPE_LONG, Unsigned: true, Name: "id"}, tm.Columns[0])
		assert.Equal(t, Column{Ordinal: 1, Type: MYSQL_TYPE_VARCHAR, Meta: 80, Nullable: true, Name: "name"}, tm.Columns[1])
		assert.Equal(t, []int{0}, tm.PrimaryKey)

		re := events[3].Data.(*RowsEvent)
		assert.EqualValues(t, 7, re.TableID)
		assert.Same(t, tm, re.TableMap)
		rows, err := re.Rows()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(1), rows[0].Values[0].Interface())
		assert.Equal(t, "apple", rows[0].Values[1].Interface())
		assert.Equal(t, int64(2), rows[1].Values[0].Interface())
		assert.True(t, rows[1].Values[1].Null)
		assert.Nil(t, rows[1].Values[1].Interface())

		assert.EqualValues(t, 42, events[4].Data.(*XidEvent).XID)
		assert.Equal(t, b.pos, events[4].Header.NextPos)
	}
}

func TestDecoder_checksumMismatch(t *testing.T) {
	b := newEventBuilder()
	d := NewDecoder(0)
	_, err := d.Decode(b.fde(BINLOG_CHECKSUM_ALG_CRC32))
	require.NoError(t, err)

	buf := b.query("shop", "BEGIN")
	buf[len(buf)-1] ^= 0xff
	_, err = d.Decode(buf)
	assert.Equal(t, ErrFail, CodeOf(err))
	assert.Contains(t, err.Error(), "checksum")

	d.VerifyChecksum = false
	e, err := d.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, "BEGIN", e.Data.(*QueryEvent).Query)
}

func TestDecoder_SetChecksum(t *testing.T) {
	b := newEventBuilder()
	b.checksum = true
	d := NewDecoder(0)
	d.SetChecksum(true)
	e, err := d.Decode(b.query("", "COMMIT"))
	require.NoError(t, err)
	assert.Equal(t, "COMMIT", e.Data.(*QueryEvent).Query)
}

func TestDecoder_invalidSize(t *testing.T) {
	d := NewDecoder(0)
	_, err := d.Decode(make([]byte, 10))
	assert.Equal(t, ErrPacketLength, CodeOf(err))

	b := newEventBuilder()
	buf := b.xid(1)
	_, err = d.Decode(buf[:len(buf)-1])
	assert.Equal(t, ErrPacketLength, CodeOf(err))
}

func TestDecoder_rotate(t *testing.T) {
	b := newEventBuilder()
	d := NewDecoder(0)
	d.SetLogFile("mysql-bin.000001")
	events := decodeAll(t, d,
		b.fde(BINLOG_CHECKSUM_ALG_OFF),
		b.tableMap(testTable(7)),
		b.rotate(MagicSize, "mysql-bin.000002"),
		b.rows(WRITE_ROWS_EVENTv1, 7, 2, rowImage(1, "apple")),
	)
	r := events[2].Data.(*RotateEvent)
	assert.EqualValues(t, MagicSize, r.Position)
	assert.Equal(t, "mysql-bin.000002", r.NextBinlog)
	assert.Equal(t, "mysql-bin.000001", events[2].Header.LogFile)
	assert.Equal(t, "mysql-bin.000002", events[3].Header.LogFile)

	// table maps do not survive rotation
	re := events[3].Data.(*RowsEvent)
	assert.Nil(t, re.TableMap)
	_, err := re.Rows()
	assert.ErrorIs(t, err, errNoTableMap)
}

func TestDecoder_tableCache(t *testing.T) {
	b := newEventBuilder()
	d := NewDecoder(2)
	decodeAll(t, d,
		b.fde(BINLOG_CHECKSUM_ALG_OFF),
		b.tableMap(testTable(1)),
		b.tableMap(testTable(2)),
		b.tableMap(testTable(3)),
	)
	e, err := d.Decode(b.rows(DELETE_ROWS_EVENTv2, 1, 2, rowImage(1, "x")))
	require.NoError(t, err)
	assert.Nil(t, e.Data.(*RowsEvent).TableMap, "least recently used table must be evicted")

	e, err = d.Decode(b.rows(DELETE_ROWS_EVENTv2, 3, 2, rowImage(1, "x")))
	require.NoError(t, err)
	assert.NotNil(t, e.Data.(*RowsEvent).TableMap)

	d.Reset()
	e, err = d.Decode(b.rows(DELETE_ROWS_EVENTv2, 3, 2, rowImage(1, "x")))
	require.NoError(t, err)
	assert.Nil(t, e.Data.(*RowsEvent).TableMap)
}

func TestDecoder_updateRows(t *testing.T) {
	b := newEventBuilder()
	d := NewDecoder(0)
	events := decodeAll(t, d,
		b.fde(BINLOG_CHECKSUM_ALG_CRC32),
		b.tableMap(testTable(9)),
		b.rows(UPDATE_ROWS_EVENTv2, 9, 2, rowImage(1, "old"), rowImage(1, "new")),
	)
	re := events[2].Data.(*RowsEvent)
	assert.Len(t, re.Columns(), 2)
	assert.Len(t, re.ColumnsBeforeUpdate(), 2)
	rows, err := re.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "old", rows[0].Before[1].String())
	assert.Equal(t, "new", rows[0].Values[1].String())
}

func TestDecoder_unknownEvent(t *testing.T) {
	b := newEventBuilder()
	d := NewDecoder(0)
	decodeAll(t, d, b.fde(BINLOG_CHECKSUM_ALG_OFF))
	e, err := d.Decode(b.event(IGNORABLE_EVENT, []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, &UnknownEvent{Body: []byte{1, 2, 3}}, e.Data)
}

func TestDecoder_heartbeat(t *testing.T) {
	b := newEventBuilder()
	d := NewDecoder(0)
	e, err := d.Decode(b.heartbeat("mysql-bin.000003"))
	require.NoError(t, err)
	assert.Equal(t, "mysql-bin.000003", e.Data.(*HeartbeatEvent).LogFile)
}
