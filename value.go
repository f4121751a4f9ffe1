package binlog

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	MYSQL_TYPE_DECIMAL     = 0x00
	MYSQL_TYPE_TINY        = 0x01
	MYSQL_TYPE_SHORT       = 0x02
	MYSQL_TYPE_LONG        = 0x03
	MYSQL_TYPE_FLOAT       = 0x04
	MYSQL_TYPE_DOUBLE      = 0x05
	MYSQL_TYPE_NULL        = 0x06
	MYSQL_TYPE_TIMESTAMP   = 0x07
	MYSQL_TYPE_LONGLONG    = 0x08
	MYSQL_TYPE_INT24       = 0x09
	MYSQL_TYPE_DATE        = 0x0a
	MYSQL_TYPE_TIME        = 0x0b
	MYSQL_TYPE_DATETIME    = 0x0c
	MYSQL_TYPE_YEAR        = 0x0d
	MYSQL_TYPE_NEWDATE     = 0x0e
	MYSQL_TYPE_VARCHAR     = 0x0f
	MYSQL_TYPE_BIT         = 0x10
	MYSQL_TYPE_TIMESTAMP2  = 0x11
	MYSQL_TYPE_DATETIME2   = 0x12
	MYSQL_TYPE_TIME2       = 0x13
	MYSQL_TYPE_JSON        = 0xf5
	MYSQL_TYPE_NEWDECIMAL  = 0xf6
	MYSQL_TYPE_ENUM        = 0xf7
	MYSQL_TYPE_SET         = 0xf8
	MYSQL_TYPE_TINY_BLOB   = 0xf9
	MYSQL_TYPE_MEDIUM_BLOB = 0xfa
	MYSQL_TYPE_LONG_BLOB   = 0xfb
	MYSQL_TYPE_BLOB        = 0xfc
	MYSQL_TYPE_VAR_STRING  = 0xfd
	MYSQL_TYPE_STRING      = 0xfe
	MYSQL_TYPE_GEOMETRY    = 0xff
)

// Value is a cell of a row image. Data holds the bytes of the cell
// as stored in the rows event, length prefix included.
//
// Numeric and string like types have accessors. Decimal, temporal
// and json types are available only as raw Data.
type Value struct {
	Type     byte
	Meta     uint16
	Unsigned bool
	Null     bool
	Data     []byte
}

// dig2bytes gives bytes needed for leftover decimal digits.
var dig2bytes = [10]int{0, 1, 1, 2, 2, 3, 3, 4, 4, 4}

func decimalSize(precision, scale int) int {
	intg := precision - scale
	return intg/9*4 + dig2bytes[intg%9] + scale/9*4 + dig2bytes[scale%9]
}

// fieldSize returns the number of bytes the field occupies at the start of b.
//
// https://dev.mysql.com/doc/internals/en/rows-event.html
func fieldSize(typ byte, meta uint16, b []byte) (int, error) {
	lenPrefix := func(n int) (int, error) {
		if len(b) < n {
			return 0, ErrMalformedPacket
		}
		var l int
		for i := 0; i < n; i++ {
			l |= int(b[i]) << (8 * uint(i))
		}
		return n + l, nil
	}
	switch typ {
	case MYSQL_TYPE_NULL:
		return 0, nil
	case MYSQL_TYPE_TINY, MYSQL_TYPE_YEAR:
		return 1, nil
	case MYSQL_TYPE_SHORT:
		return 2, nil
	case MYSQL_TYPE_INT24, MYSQL_TYPE_DATE, MYSQL_TYPE_NEWDATE, MYSQL_TYPE_TIME:
		return 3, nil
	case MYSQL_TYPE_LONG, MYSQL_TYPE_FLOAT, MYSQL_TYPE_TIMESTAMP:
		return 4, nil
	case MYSQL_TYPE_LONGLONG, MYSQL_TYPE_DOUBLE, MYSQL_TYPE_DATETIME:
		return 8, nil
	case MYSQL_TYPE_NEWDECIMAL:
		return decimalSize(int(meta>>8), int(meta&0xff)), nil
	case MYSQL_TYPE_TIMESTAMP2:
		return 4 + (int(meta)+1)/2, nil
	case MYSQL_TYPE_DATETIME2:
		return 5 + (int(meta)+1)/2, nil
	case MYSQL_TYPE_TIME2:
		return 3 + (int(meta)+1)/2, nil
	case MYSQL_TYPE_BIT:
		nbits := int(meta>>8)*8 + int(meta&0xff)
		return (nbits + 7) / 8, nil
	case MYSQL_TYPE_ENUM, MYSQL_TYPE_SET:
		return int(meta & 0xff), nil
	case MYSQL_TYPE_VARCHAR, MYSQL_TYPE_VAR_STRING:
		if meta < 256 {
			return lenPrefix(1)
		}
		return lenPrefix(2)
	case MYSQL_TYPE_STRING:
		if stringMaxLength(meta) < 256 {
			return lenPrefix(1)
		}
		return lenPrefix(2)
	case MYSQL_TYPE_BLOB, MYSQL_TYPE_TINY_BLOB, MYSQL_TYPE_MEDIUM_BLOB, MYSQL_TYPE_LONG_BLOB,
		MYSQL_TYPE_GEOMETRY, MYSQL_TYPE_JSON:
		if meta < 1 || meta > 4 {
			return 0, fmt.Errorf("binlog: invalid blob pack length %d", meta)
		}
		return lenPrefix(int(meta))
	}
	return 0, fmt.Errorf("binlog: unsupported column type 0x%02x", typ)
}

// realType resolves the type hidden in the metadata of MYSQL_TYPE_STRING
// columns. ENUM and SET columns are logged as MYSQL_TYPE_STRING.
func realType(typ byte, meta uint16) byte {
	if typ == MYSQL_TYPE_STRING && meta >= 256 {
		switch rt := byte(meta >> 8); rt {
		case MYSQL_TYPE_ENUM, MYSQL_TYPE_SET:
			return rt
		}
	}
	return typ
}

// stringMaxLength decodes the max length of a MYSQL_TYPE_STRING column,
// which spills into the real-type byte for lengths above 255.
func stringMaxLength(meta uint16) int {
	b0, b1 := int(meta>>8), int(meta&0xff)
	if b0&0x30 != 0x30 {
		return b1 | ((b0&0x30)^0x30)<<4
	}
	return b1
}

// Int64 returns integer value. Unsigned values that overflow int64
// wrap, use Uint64 for them.
func (v Value) Int64() (int64, error) {
	switch v.Type {
	case MYSQL_TYPE_TINY:
		if v.Unsigned {
			return int64(v.Data[0]), nil
		}
		return int64(int8(v.Data[0])), nil
	case MYSQL_TYPE_SHORT:
		u := binary.LittleEndian.Uint16(v.Data)
		if v.Unsigned {
			return int64(u), nil
		}
		return int64(int16(u)), nil
	case MYSQL_TYPE_INT24:
		u := uint32(v.Data[0]) | uint32(v.Data[1])<<8 | uint32(v.Data[2])<<16
		if !v.Unsigned && u&0x800000 != 0 {
			u |= 0xff000000
			return int64(int32(u)), nil
		}
		return int64(u), nil
	case MYSQL_TYPE_LONG:
		u := binary.LittleEndian.Uint32(v.Data)
		if v.Unsigned {
			return int64(u), nil
		}
		return int64(int32(u)), nil
	case MYSQL_TYPE_LONGLONG:
		return int64(binary.LittleEndian.Uint64(v.Data)), nil
	case MYSQL_TYPE_YEAR:
		if v.Data[0] == 0 {
			return 0, nil
		}
		return 1900 + int64(v.Data[0]), nil
	case MYSQL_TYPE_ENUM, MYSQL_TYPE_SET, MYSQL_TYPE_BIT:
		u, err := v.Uint64()
		return int64(u), err
	}
	return 0, fmt.Errorf("binlog: Value.Int64 not supported for type 0x%02x", v.Type)
}

// Uint64 returns the value as unsigned integer.
func (v Value) Uint64() (uint64, error) {
	switch v.Type {
	case MYSQL_TYPE_ENUM, MYSQL_TYPE_SET:
		var u uint64
		for i, b := range v.Data {
			u |= uint64(b) << (8 * uint(i))
		}
		return u, nil
	case MYSQL_TYPE_BIT:
		// big endian
		var u uint64
		for _, b := range v.Data {
			u = u<<8 | uint64(b)
		}
		return u, nil
	case MYSQL_TYPE_LONGLONG:
		return binary.LittleEndian.Uint64(v.Data), nil
	}
	i, err := v.Int64()
	return uint64(i), err
}

func (v Value) Float64() (float64, error) {
	switch v.Type {
	case MYSQL_TYPE_FLOAT:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(v.Data))), nil
	case MYSQL_TYPE_DOUBLE:
		return math.Float64frombits(binary.LittleEndian.Uint64(v.Data)), nil
	}
	return 0, fmt.Errorf("binlog: Value.Float64 not supported for type 0x%02x", v.Type)
}

// Bytes returns contents of string and blob like values without
// the length prefix. Other types return Data as is.
func (v Value) Bytes() []byte {
	n := 0
	switch v.Type {
	case MYSQL_TYPE_VARCHAR, MYSQL_TYPE_VAR_STRING:
		n = 1
		if v.Meta >= 256 {
			n = 2
		}
	case MYSQL_TYPE_STRING:
		n = 1
		if stringMaxLength(v.Meta) >= 256 {
			n = 2
		}
	case MYSQL_TYPE_BLOB, MYSQL_TYPE_TINY_BLOB, MYSQL_TYPE_MEDIUM_BLOB, MYSQL_TYPE_LONG_BLOB,
		MYSQL_TYPE_GEOMETRY, MYSQL_TYPE_JSON:
		n = int(v.Meta)
	}
	if n > len(v.Data) {
		return nil
	}
	return v.Data[n:]
}

func (v Value) String() string {
	return string(v.Bytes())
}

// Interface returns a Go value. Types without accessor return Data.
func (v Value) Interface() interface{} {
	if v.Null {
		return nil
	}
	switch v.Type {
	case MYSQL_TYPE_LONGLONG:
		if v.Unsigned {
			u, _ := v.Uint64()
			return u
		}
		i, _ := v.Int64()
		return i
	case MYSQL_TYPE_TINY, MYSQL_TYPE_SHORT, MYSQL_TYPE_INT24, MYSQL_TYPE_LONG, MYSQL_TYPE_YEAR:
		i, _ := v.Int64()
		return i
	case MYSQL_TYPE_ENUM, MYSQL_TYPE_SET, MYSQL_TYPE_BIT:
		u, _ := v.Uint64()
		return u
	case MYSQL_TYPE_FLOAT, MYSQL_TYPE_DOUBLE:
		f, _ := v.Float64()
		return f
	case MYSQL_TYPE_VARCHAR, MYSQL_TYPE_VAR_STRING, MYSQL_TYPE_STRING:
		return v.String()
	case MYSQL_TYPE_BLOB, MYSQL_TYPE_TINY_BLOB, MYSQL_TYPE_MEDIUM_BLOB, MYSQL_TYPE_LONG_BLOB,
		MYSQL_TYPE_GEOMETRY, MYSQL_TYPE_JSON:
		return v.Bytes()
	}
	return v.Data
}
