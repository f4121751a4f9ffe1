package binlog

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// BinaryLog is a row of SHOW BINARY LOGS.
type BinaryLog struct {
	Name string
	Size int64
}

// newer servers renamed SHOW MASTER STATUS
var masterStatusQueries = []string{"SHOW MASTER STATUS", "SHOW BINARY LOG STATUS"}

// sessionMasterStatus asks the server of s for its current position.
func sessionMasterStatus(s *session) (string, uint32, error) {
	var err error
	for _, q := range masterStatusQueries {
		var rows [][]interface{}
		if rows, err = s.query(q); err != nil {
			continue
		}
		if len(rows) == 0 || len(rows[0]) < 2 {
			return "", 0, newError(ErrMySQLQueryFail, "Connect", errors.New("binary logging is not enabled"))
		}
		file, _ := rows[0][0].(string)
		pos, _ := rows[0][1].(string)
		return parseMasterStatus(file, pos)
	}
	return "", 0, newError(ErrMySQLQueryFail, "Connect", err)
}

func parseMasterStatus(file, pos string) (string, uint32, error) {
	v, err := strconv.ParseUint(pos, 10, 32)
	if err != nil {
		return "", 0, newError(ErrMySQLQueryFail, "MasterStatus", fmt.Errorf("invalid position %q", pos))
	}
	return file, uint32(v), nil
}

// dsn returns data source name for database/sql. A custom tls config
// is registered with the mysql driver under a name derived from it.
func (d *TCPDriver) dsn() (string, error) {
	c := mysql.NewConfig()
	c.User = d.user
	c.Passwd = d.passwd
	c.Net = "tcp"
	c.Addr = d.address()
	c.Timeout = d.opts.DialTimeout
	switch {
	case d.opts.TLS != nil:
		name := fmt.Sprintf("binlog-%p", d.opts.TLS)
		if err := mysql.RegisterTLSConfig(name, d.opts.TLS); err != nil {
			return "", err
		}
		c.TLSConfig = name
	case d.opts.SSL:
		c.TLSConfig = "skip-verify"
	}
	return c.FormatDSN(), nil
}

func (d *TCPDriver) openDB() (*sql.DB, error) {
	dsn, err := d.dsn()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// MasterStatus returns the position the server is currently writing to.
func (d *TCPDriver) MasterStatus() (Position, error) {
	db, err := d.openDB()
	if err != nil {
		return Position{}, newError(ErrMySQLQueryFail, "MasterStatus", err)
	}
	defer db.Close()
	for _, q := range masterStatusQueries {
		var rows [][]sql.RawBytes
		if rows, err = queryRaw(db, q); err != nil {
			continue
		}
		if len(rows) == 0 || len(rows[0]) < 2 {
			return Position{}, newError(ErrMySQLQueryFail, "MasterStatus", errors.New("binary logging is not enabled"))
		}
		file, pos, err := parseMasterStatus(string(rows[0][0]), string(rows[0][1]))
		if err != nil {
			return Position{}, err
		}
		return Position{File: file, Offset: pos}, nil
	}
	return Position{}, newError(ErrMySQLQueryFail, "MasterStatus", err)
}

// ListFiles returns binary log files present on the server, oldest first.
func (d *TCPDriver) ListFiles() ([]BinaryLog, error) {
	db, err := d.openDB()
	if err != nil {
		return nil, newError(ErrMySQLQueryFail, "ListFiles", err)
	}
	defer db.Close()
	rows, err := queryRaw(db, "SHOW BINARY LOGS")
	if err != nil {
		return nil, newError(ErrMySQLQueryFail, "ListFiles", err)
	}
	var files []BinaryLog
	for _, row := range rows {
		if len(row) < 2 {
			return nil, newError(ErrMySQLQueryFail, "ListFiles", fmt.Errorf("got %d columns", len(row)))
		}
		size, err := strconv.ParseInt(string(row[1]), 10, 64)
		if err != nil {
			return nil, newError(ErrMySQLQueryFail, "ListFiles", err)
		}
		files = append(files, BinaryLog{Name: string(row[0]), Size: size})
	}
	return files, nil
}

// queryRaw runs q and returns all rows. Column count varies across
// server versions, so values are scanned as raw bytes.
func queryRaw(db *sql.DB, q string) ([][]sql.RawBytes, error) {
	rows, err := db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var result [][]sql.RawBytes
	for rows.Next() {
		raw := make([]sql.RawBytes, len(cols))
		dest := make([]interface{}, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make([]sql.RawBytes, len(cols))
		for i, b := range raw {
			row[i] = append(sql.RawBytes(nil), b...)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
