package binlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replayer injects a copy of every query event once.
type replayer struct {
	Passthrough
	inj      Injector
	replayed map[*Event]bool
}

func (r *replayer) SetInjector(inj Injector) {
	r.inj = inj
}

func (r *replayer) HandleQuery(e *Event, q *QueryEvent) *Event {
	if !r.replayed[e] {
		c := *e
		r.replayed[&c] = true
		r.inj.Inject(&c)
	}
	return e
}

type resetCounter struct {
	Passthrough
	resets int
}

func (r *resetCounter) Reset() {
	r.resets++
}

func sampleLog(t *testing.T) (string, [][]byte) {
	t.Helper()
	dir := t.TempDir()
	b := newEventBuilder()
	events := [][]byte{
		b.fde(BINLOG_CHECKSUM_ALG_CRC32),
		b.query("shop", "BEGIN"),
		b.tableMap(testTable(7)),
		b.rows(WRITE_ROWS_EVENTv2, 7, 2, rowImage(1, "apple")),
		b.query("shop", "COMMIT"),
	}
	return writeBinlog(t, dir, "mysql-bin.000001", events...), events
}

func TestLog_NextEvent(t *testing.T) {
	path, events := sampleLog(t)
	l := NewLog(NewFileDriver(path, MagicSize))
	p := NewTransactionParser()
	l.AddHandler(p)
	require.NoError(t, l.Connect())
	defer l.Disconnect()

	e, err := l.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, FORMAT_DESCRIPTION_EVENT, e.Header.EventType)
	assert.Equal(t, "mysql-bin.000001", e.Header.LogFile)

	e, err = l.NextEvent()
	require.NoError(t, err)
	require.Equal(t, TRANSACTION_EVENT, e.Header.EventType)
	tx := e.Data.(*TransactionEvent)
	assert.Len(t, tx.Events, 2)
	assert.Contains(t, tx.TableMaps, uint64(7))

	_, err = l.NextEvent()
	assert.Equal(t, ErrEOF, CodeOf(err))

	size := int64(MagicSize)
	for _, e := range events {
		size += int64(len(e))
	}
	assert.Equal(t, size, l.FileSize())
	pos, err := l.Position()
	require.NoError(t, err)
	assert.Equal(t, Position{File: path, Offset: uint32(size)}, pos)
	assert.Equal(t, uint32(size), l.Offset())
}

func TestLog_SetPosition(t *testing.T) {
	path, events := sampleLog(t)
	// transaction not yet committed
	path = writeBinlog(t, filepath.Dir(path), "mysql-bin.000002", events[:4]...)

	l := NewLog(NewFileDriver(path, MagicSize))
	p := NewTransactionParser()
	rc := &resetCounter{}
	l.AddHandler(p)
	l.AddHandler(rc)
	require.NoError(t, l.Connect())
	defer l.Disconnect()

	e, err := l.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, FORMAT_DESCRIPTION_EVENT, e.Header.EventType)
	_, err = l.NextEvent()
	assert.Equal(t, ErrEOF, CodeOf(err))
	assert.Equal(t, IN_PROGRESS, p.State())
	assert.Equal(t, 2, p.Pending())

	require.Error(t, l.SetOffset(2))
	assert.Equal(t, IN_PROGRESS, p.State(), "failed SetPosition must not reset handlers")

	require.NoError(t, l.SetOffset(MagicSize))
	assert.Equal(t, NOT_IN_PROGRESS, p.State())
	assert.Zero(t, p.Pending())
	assert.Equal(t, 1, rc.resets)
	assert.EqualValues(t, MagicSize, l.Offset())

	appendFile(t, path, events[4])
	var types []EventType
	for {
		e, err := l.NextEvent()
		if CodeOf(err) == ErrEOF {
			break
		}
		require.NoError(t, err)
		types = append(types, e.Header.EventType)
	}
	assert.Equal(t, []EventType{FORMAT_DESCRIPTION_EVENT, TRANSACTION_EVENT}, types)

	require.NoError(t, l.Disconnect())
	assert.Equal(t, 2, rc.resets)
}

func TestLog_ConnectAtMiddle(t *testing.T) {
	path, events := sampleLog(t)
	l := NewLog(NewFileDriver(filepath.Join(filepath.Dir(path), "missing"), MagicSize))
	require.Error(t, l.Connect())

	start := uint32(MagicSize + len(events[0]) + len(events[1]))
	require.NoError(t, l.ConnectAt(path, start))
	defer l.Disconnect()

	// format description is delivered first, so checksums are known
	e, err := l.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, FORMAT_DESCRIPTION_EVENT, e.Header.EventType)
	e, err = l.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, TABLE_MAP_EVENT, e.Header.EventType)
	assert.Equal(t, "mysql-bin.000001", e.Header.LogFile)
}

func TestLog_SetOffsetBeforeFirstEvent(t *testing.T) {
	path, events := sampleLog(t)
	l := NewLog(NewFileDriver(path, MagicSize))
	afterFDE := uint32(MagicSize + len(events[0]))
	require.NoError(t, l.ConnectAt(path, afterFDE))
	defer l.Disconnect()

	commit := afterFDE + uint32(len(events[1])+len(events[2])+len(events[3]))
	require.NoError(t, l.SetOffset(commit))

	e, err := l.NextEvent()
	require.NoError(t, err)
	require.Equal(t, FORMAT_DESCRIPTION_EVENT, e.Header.EventType)
	assert.Equal(t, commit, l.Offset(), "format description does not move the position")

	e, err = l.NextEvent()
	require.NoError(t, err)
	require.Equal(t, QUERY_EVENT, e.Header.EventType)
	assert.Equal(t, "COMMIT", e.Data.(*QueryEvent).Query)

	_, err = l.NextEvent()
	assert.Equal(t, ErrEOF, CodeOf(err))
}

func TestLog_Inject(t *testing.T) {
	path, _ := sampleLog(t)
	l := NewLog(NewFileDriver(path, MagicSize))
	l.AddHandler(&replayer{replayed: map[*Event]bool{}})
	require.NoError(t, l.Connect())
	defer l.Disconnect()

	var queries []string
	for {
		e, err := l.NextEvent()
		if CodeOf(err) == ErrEOF {
			break
		}
		require.NoError(t, err)
		if q, ok := e.Data.(*QueryEvent); ok {
			queries = append(queries, q.Query)
		}
	}
	assert.Equal(t, []string{"BEGIN", "BEGIN", "COMMIT", "COMMIT"}, queries)
}

func TestLog_Decoder(t *testing.T) {
	path, events := sampleLog(t)
	// corrupt checksum of table map event
	events[2][len(events[2])-1] ^= 0xff
	dir := filepath.Dir(path)
	path = writeBinlog(t, dir, "mysql-bin.000002", events...)

	l := NewLog(NewFileDriver(path, MagicSize))
	require.NoError(t, l.Connect())
	defer l.Disconnect()
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		_, err = l.NextEvent()
	}
	assert.Error(t, err)

	l.Decoder().VerifyChecksum = false
	require.NoError(t, l.SetOffset(MagicSize))
	for i := 0; i < 3; i++ {
		_, err = l.NextEvent()
		require.NoError(t, err)
	}
}
