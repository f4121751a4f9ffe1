package binlog

import (
	"fmt"
	"strconv"
	"strings"
)

type serverVersion [3]int

// parseServerVersion parses versions like "8.0.26", "5.7.30-log"
// and "10.5.9-MariaDB+maria~focal".
func parseServerVersion(s string) (serverVersion, error) {
	var sv serverVersion
	v := s
	if i := strings.IndexAny(v, "-+"); i != -1 {
		v = v[:i]
	}
	tok := strings.Split(v, ".")
	if len(tok) < 3 {
		return sv, fmt.Errorf("binlog: invalid server version %q", s)
	}
	for i := range sv {
		n, err := strconv.Atoi(tok[i])
		if err != nil {
			return sv, fmt.Errorf("binlog: invalid server version %q", s)
		}
		sv[i] = n
	}
	return sv, nil
}

func (sv serverVersion) lt(v serverVersion) bool {
	for i := range sv {
		if sv[i] != v[i] {
			return sv[i] < v[i]
		}
	}
	return false
}

// https://dev.mysql.com/doc/internals/en/binlog-version.html

func (sv serverVersion) binlogVersion() uint16 {
	switch {
	case sv.lt(serverVersion{4, 0, 0}):
		return 1
	case sv.lt(serverVersion{4, 0, 2}):
		return 2
	case sv.lt(serverVersion{5, 0, 0}):
		return 3
	default:
		return 4
	}
}
