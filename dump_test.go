package binlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func appendFile(t *testing.T, path string, data ...[]byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	for _, d := range data {
		_, err = f.Write(d)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
}

func TestDump(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()

	b := newEventBuilder()
	writeBinlog(t, src, "mysql-bin.000001",
		b.fde(BINLOG_CHECKSUM_ALG_CRC32),
		b.query("shop", "BEGIN"),
		b.xid(1),
		b.rotate(MagicSize, "mysql-bin.000002"),
	)
	b2 := newEventBuilder()
	writeBinlog(t, src, "mysql-bin.000002",
		b2.fde(BINLOG_CHECKSUM_ALG_CRC32),
		b2.query("shop", "BEGIN"),
		b2.tableMap(testTable(3)),
	)
	writeIndex(t, src, "mysql-bin.000001", "mysql-bin.000002")

	d := NewFileDriver(filepath.Join(src, "mysql-bin.000001"), MagicSize)
	d.FollowIndex = true
	require.NoError(t, d.Connect())
	require.NoError(t, Dump(d, out))
	require.NoError(t, d.Disconnect())

	for _, name := range []string{"mysql-bin.000001", "mysql-bin.000002"} {
		assert.Equal(t, readFile(t, filepath.Join(src, name)), readFile(t, filepath.Join(out, name)), name)
	}
	files, err := readIndex(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"mysql-bin.000001", "mysql-bin.000002"}, files)

	// the dump is itself readable
	copied := NewFileDriver(filepath.Join(out, "mysql-bin.000001"), MagicSize)
	copied.FollowIndex = true
	require.NoError(t, copied.Connect())
	defer copied.Disconnect()
	assert.Len(t, readAll(t, copied), 7)

	// resume after a partial write and more events at source
	last, err := LastPosition(out)
	require.NoError(t, err)
	assert.Equal(t, Position{File: "mysql-bin.000002", Offset: b2.pos}, last)

	rows := b2.rows(WRITE_ROWS_EVENTv2, 3, 2, rowImage(1, "a"))
	xid := b2.xid(2)
	appendFile(t, filepath.Join(out, "mysql-bin.000002"), rows[:10])
	last, err = LastPosition(out)
	require.NoError(t, err)
	assert.Equal(t, Position{File: "mysql-bin.000002", Offset: b2.pos - uint32(len(rows)+len(xid))}, last)

	appendFile(t, filepath.Join(src, "mysql-bin.000002"), rows, xid)
	d = NewFileDriver(filepath.Join(src, last.File), last.Offset)
	require.NoError(t, d.Connect())
	require.NoError(t, Dump(d, out))
	require.NoError(t, d.Disconnect())

	assert.Equal(t, readFile(t, filepath.Join(src, "mysql-bin.000002")), readFile(t, filepath.Join(out, "mysql-bin.000002")))
	files, err = readIndex(out)
	require.NoError(t, err)
	assert.Len(t, files, 2, "resumed file must not be indexed twice")
}

func TestDump_skipsHeartbeats(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	b := newEventBuilder()
	fde := b.fde(BINLOG_CHECKSUM_ALG_OFF)
	begin := b.query("shop", "BEGIN")
	writeBinlog(t, src, "mysql-bin.000001", fde, begin, b.heartbeat("mysql-bin.000001"))

	d := NewFileDriver(filepath.Join(src, "mysql-bin.000001"), MagicSize)
	require.NoError(t, d.Connect())
	defer d.Disconnect()
	require.NoError(t, Dump(d, out))

	want := append(append(append([]byte(nil), fileHeader...), fde...), begin...)
	assert.Equal(t, want, readFile(t, filepath.Join(out, "mysql-bin.000001")))
}

func TestLastPosition_errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LastPosition(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, indexFile), nil, 0644))
	_, err = LastPosition(dir)
	assert.Error(t, err)

	writeIndex(t, dir, "mysql-bin.000001")
	_, err = LastPosition(dir)
	assert.Error(t, err)

	writeBinlog(t, dir, "mysql-bin.000001")
	pos, err := LastPosition(dir)
	require.NoError(t, err)
	assert.Equal(t, Position{File: "mysql-bin.000001", Offset: MagicSize}, pos)
}
