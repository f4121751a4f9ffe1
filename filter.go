package binlog

import (
	"fmt"

	"github.com/gobwas/glob"
)

// TableFilter is a content handler that consumes table map and rows
// events of tables not matching the patterns. Add it before
// TransactionParser to keep filtered tables out of transactions.
type TableFilter struct {
	Passthrough
	dbGlobs    []glob.Glob
	tableGlobs []glob.Glob
	dropped    int
}

// NewTableFilter compiles glob patterns like "shop_*". An empty list
// matches everything.
func NewTableFilter(dbPatterns, tablePatterns []string) (*TableFilter, error) {
	f := &TableFilter{}
	for _, p := range dbPatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("binlog.NewTableFilter: invalid database pattern %q: %w", p, err)
		}
		f.dbGlobs = append(f.dbGlobs, g)
	}
	for _, p := range tablePatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("binlog.NewTableFilter: invalid table pattern %q: %w", p, err)
		}
		f.tableGlobs = append(f.tableGlobs, g)
	}
	return f, nil
}

// Match reports whether schema.table passes the filter.
func (f *TableFilter) Match(schema, table string) bool {
	return matchAny(f.dbGlobs, schema) && matchAny(f.tableGlobs, table)
}

func matchAny(globs []glob.Glob, s string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// Dropped returns number of events consumed so far.
func (f *TableFilter) Dropped() int {
	return f.dropped
}

func (f *TableFilter) HandleTableMap(e *Event, tm *TableMapEvent) *Event {
	if f.Match(tm.SchemaName, tm.TableName) {
		return e
	}
	f.dropped++
	return nil
}

// HandleRows passes rows events whose table map is unknown.
func (f *TableFilter) HandleRows(e *Event, re *RowsEvent) *Event {
	if re.TableMap == nil || f.Match(re.TableMap.SchemaName, re.TableMap.TableName) {
		return e
	}
	f.dropped++
	return nil
}
