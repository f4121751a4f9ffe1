package binlog

import "fmt"

// MagicSize is the length of the magic number every binary log file starts with.
const MagicSize = 4

var fileHeader = []byte{0xfe, 'b', 'i', 'n'}

// Position is a read point in the binary logs.
type Position struct {
	File   string
	Offset uint32
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Offset)
}

// IsZero tells whether p has no file.
func (p Position) IsZero() bool {
	return p.File == ""
}
