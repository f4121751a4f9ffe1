package binlog

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPDriver_dsn(t *testing.T) {
	d := NewTCPDriver("repl", "p@ss", "db.local", 3307, TCPOptions{SSL: true, DialTimeout: 3 * time.Second})
	dsn, err := d.dsn()
	require.NoError(t, err)
	c, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "repl", c.User)
	assert.Equal(t, "p@ss", c.Passwd)
	assert.Equal(t, "tcp", c.Net)
	assert.Equal(t, "db.local:3307", c.Addr)
	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.Equal(t, "skip-verify", c.TLSConfig)
}

func TestTCPDriver_dsnCustomTLS(t *testing.T) {
	cfg := &tls.Config{ServerName: "db.internal", MinVersion: tls.VersionTLS12}
	d := NewTCPDriver("repl", "", "db.local", 3306, TCPOptions{SSL: true, TLS: cfg})
	dsn, err := d.dsn()
	require.NoError(t, err)
	c, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.NotContains(t, []string{"", "false", "true", "skip-verify", "preferred"}, c.TLSConfig)
	defer mysql.DeregisterTLSConfig(c.TLSConfig)

	// the registered config is used, not certificate skipping
	again, err := d.dsn()
	require.NoError(t, err)
	assert.Equal(t, dsn, again)
	assert.Contains(t, dsn, "tls="+c.TLSConfig)
}

func TestParseMasterStatus(t *testing.T) {
	file, pos, err := parseMasterStatus("binlog.000004", "1570")
	require.NoError(t, err)
	assert.Equal(t, "binlog.000004", file)
	assert.EqualValues(t, 1570, pos)

	_, _, err = parseMasterStatus("binlog.000004", "")
	assert.Equal(t, ErrMySQLQueryFail, CodeOf(err))
}
