package binlog

import (
	"errors"
	"fmt"
)

// https://dev.mysql.com/doc/internals/en/table-map-event.html

type Column struct {
	Ordinal  int
	Type     byte
	Meta     uint16
	Nullable bool
	Unsigned bool
	Name     string
}

// TableMapEvent describes the table used by following rows events.
// TableID is unique only till the end of the current transaction.
type TableMapEvent struct {
	TableID    uint64
	Flags      uint16
	SchemaName string
	TableName  string
	Columns    []Column
	PrimaryKey []int
}

func (e *TableMapEvent) decode(r *reader, fde *FormatDescriptionEvent) error {
	if fde.postHeaderLength(TABLE_MAP_EVENT, 8) == 6 {
		e.TableID = uint64(r.int4())
	} else {
		e.TableID = r.int6()
	}
	e.Flags = r.int2()
	_ = r.int1() // schema name length
	e.SchemaName = r.stringNull()
	_ = r.int1() // table name length
	e.TableName = r.stringNull()
	numCol := r.intN()
	if r.err != nil {
		return r.err
	}
	if numCol > uint64(len(r.buffer())) {
		return ErrMalformedPacket
	}
	e.Columns = make([]Column, numCol)
	for i := range e.Columns {
		e.Columns[i].Ordinal = i
		e.Columns[i].Type = r.int1()
	}

	meta := newReader(r.bytesInternal(int(r.intN())))
	for i, col := range e.Columns {
		switch col.Type {
		case MYSQL_TYPE_BLOB, MYSQL_TYPE_DOUBLE, MYSQL_TYPE_FLOAT, MYSQL_TYPE_GEOMETRY, MYSQL_TYPE_JSON,
			MYSQL_TYPE_TIME2, MYSQL_TYPE_DATETIME2, MYSQL_TYPE_TIMESTAMP2:
			e.Columns[i].Meta = uint16(meta.int1())
		case MYSQL_TYPE_VARCHAR, MYSQL_TYPE_VAR_STRING, MYSQL_TYPE_BIT:
			e.Columns[i].Meta = meta.int2()
		case MYSQL_TYPE_NEWDECIMAL, MYSQL_TYPE_DECIMAL, MYSQL_TYPE_SET, MYSQL_TYPE_ENUM, MYSQL_TYPE_STRING:
			b := meta.bytesInternal(2)
			if len(b) == 2 {
				e.Columns[i].Meta = uint16(b[0])<<8 | uint16(b[1])
			}
		}
	}
	if meta.err != nil {
		return fmt.Errorf("binlog: invalid column metadata: %w", meta.err)
	}

	nullability := bitmap(r.bytesInternal(bitmapSize(numCol)))
	if r.err != nil {
		return r.err
	}
	for i := range e.Columns {
		e.Columns[i].Nullable = nullability.isTrue(i)
	}
	return e.decodeOptionalMeta(r)
}

// optional metadata fields, sent when binlog_row_metadata is set
//
// https://dev.mysql.com/doc/dev/mysql-server/latest/classbinary__log_1_1Table__map__event.html
const (
	metaSignedness        = 1
	metaColumnName        = 4
	metaSimplePrimaryKey  = 8
	metaPrimaryKeyWithPfx = 9
)

func (e *TableMapEvent) decodeOptionalMeta(r *reader) error {
	for r.more() {
		typ := r.int1()
		size := int(r.intN())
		field := newReader(r.bytesInternal(size))
		if r.err != nil {
			return r.err
		}
		switch typ {
		case metaSignedness:
			// one bit per numeric column, most significant bit first
			inum := 0
			for i := range e.Columns {
				if !isNumeric(e.Columns[i].Type) {
					continue
				}
				if inum/8 < len(field.buf) {
					e.Columns[i].Unsigned = field.buf[inum/8]&(1<<uint(7-inum%8)) != 0
				}
				inum++
			}
		case metaColumnName:
			for i := range e.Columns {
				e.Columns[i].Name = field.stringN()
			}
		case metaSimplePrimaryKey:
			for field.more() {
				e.PrimaryKey = append(e.PrimaryKey, int(field.intN()))
			}
		case metaPrimaryKeyWithPfx:
			for field.more() {
				e.PrimaryKey = append(e.PrimaryKey, int(field.intN()))
				field.intN() // prefix length
			}
		}
		if field.err != nil {
			return fmt.Errorf("binlog: invalid optional metadata %d: %w", typ, field.err)
		}
	}
	return r.err
}

func isNumeric(typ byte) bool {
	switch typ {
	case MYSQL_TYPE_TINY, MYSQL_TYPE_SHORT, MYSQL_TYPE_INT24, MYSQL_TYPE_LONG, MYSQL_TYPE_LONGLONG,
		MYSQL_TYPE_FLOAT, MYSQL_TYPE_DOUBLE, MYSQL_TYPE_DECIMAL, MYSQL_TYPE_NEWDECIMAL:
		return true
	}
	return false
}

// https://dev.mysql.com/doc/internals/en/rows-event.html

// RowsEvent captures changes to rows of a table. TableMap is nil when
// the table map was not seen, for example when reading starts in the
// middle of a transaction.
type RowsEvent struct {
	TableID  uint64
	TableMap *TableMapEvent
	Flags    uint16
	NumCol   uint64

	eventType EventType
	present   [2]bitmap
	data      []byte
}

// end of statement flag
const STMT_END_F = 0x0001

func (e *RowsEvent) decode(r *reader, fde *FormatDescriptionEvent, eventType EventType) error {
	e.eventType = eventType
	if fde.postHeaderLength(eventType, 8) == 6 {
		e.TableID = uint64(r.int4())
	} else {
		e.TableID = r.int6()
	}
	e.Flags = r.int2()
	switch eventType {
	case WRITE_ROWS_EVENTv2, UPDATE_ROWS_EVENTv2, DELETE_ROWS_EVENTv2:
		extraDataLength := r.int2()
		if r.err != nil {
			return r.err
		}
		if extraDataLength < 2 {
			return ErrMalformedPacket
		}
		r.skip(int(extraDataLength) - 2)
	}
	e.NumCol = r.intN()
	if r.err != nil {
		return r.err
	}
	e.present[0] = r.bytes(bitmapSize(e.NumCol))
	if eventType.IsUpdateRows() {
		e.present[1] = r.bytes(bitmapSize(e.NumCol))
	}
	e.data = r.bytesEOF()
	return r.err
}

// Row is one changed row. For deletes Values is the deleted row,
// for updates Before holds the row image before the update.
type Row struct {
	Values []Value
	Before []Value
}

// Columns returns columns present in the row image. For updates
// this is the after image.
func (e *RowsEvent) Columns() []Column {
	if e.eventType.IsUpdateRows() {
		return e.columns(1)
	}
	return e.columns(0)
}

// ColumnsBeforeUpdate returns columns present in before image of update.
func (e *RowsEvent) ColumnsBeforeUpdate() []Column {
	if !e.eventType.IsUpdateRows() {
		return nil
	}
	return e.columns(0)
}

func (e *RowsEvent) columns(image int) []Column {
	if e.TableMap == nil {
		return nil
	}
	var cols []Column
	for i := 0; i < int(e.NumCol) && i < len(e.TableMap.Columns); i++ {
		if e.present[image].isTrue(i) {
			cols = append(cols, e.TableMap.Columns[i])
		}
	}
	return cols
}

var errNoTableMap = errors.New("binlog: rows event without table map")

// Rows splits the event data into rows. It fails when the data does not
// agree with the table map, which means the input is malformed.
func (e *RowsEvent) Rows() ([]Row, error) {
	if e.NumCol == 0 {
		return nil, nil
	}
	if e.TableMap == nil {
		return nil, fmt.Errorf("%w: table id %d", errNoTableMap, e.TableID)
	}
	if int(e.NumCol) > len(e.TableMap.Columns) {
		return nil, fmt.Errorf("binlog: rows event has %d columns, table map has %d", e.NumCol, len(e.TableMap.Columns))
	}
	var rows []Row
	b := e.data
	for len(b) > 0 {
		var row Row
		var err error
		if e.eventType.IsUpdateRows() {
			if row.Before, b, err = e.image(b, e.present[0]); err != nil {
				return nil, err
			}
			if row.Values, b, err = e.image(b, e.present[1]); err != nil {
				return nil, err
			}
		} else if row.Values, b, err = e.image(b, e.present[0]); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// image decodes one row image from b and returns the remaining bytes.
func (e *RowsEvent) image(b []byte, present bitmap) ([]Value, []byte, error) {
	n := 0
	for i := 0; i < int(e.NumCol); i++ {
		if present.isTrue(i) {
			n++
		}
	}
	size := bitmapSize(uint64(n))
	if len(b) < size {
		return nil, nil, ErrMalformedPacket
	}
	nulls := bitmap(b[:size])
	b = b[size:]
	values := make([]Value, 0, n)
	j := 0
	for i := 0; i < int(e.NumCol); i++ {
		if !present.isTrue(i) {
			continue
		}
		col := e.TableMap.Columns[i]
		v := Value{Type: realType(col.Type, col.Meta), Meta: col.Meta, Unsigned: col.Unsigned}
		if nulls.isTrue(j) {
			v.Null = true
		} else {
			sz, err := fieldSize(v.Type, v.Meta, b)
			if err != nil {
				return nil, nil, fmt.Errorf("binlog: column %d of %s.%s: %w", i, e.TableMap.SchemaName, e.TableMap.TableName, err)
			}
			if sz > len(b) {
				return nil, nil, ErrMalformedPacket
			}
			v.Data, b = b[:sz], b[sz:]
		}
		values = append(values, v)
		j++
	}
	return values, b, nil
}

// bitmap ---

type bitmap []byte

func bitmapSize(numCol uint64) int {
	return int((numCol + 7) / 8)
}

// isTrue reports bit i, least significant bit first.
func (bm bitmap) isTrue(i int) bool {
	if i/8 >= len(bm) {
		return false
	}
	return bm[i/8]&(1<<uint(i%8)) != 0
}
