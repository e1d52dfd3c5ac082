package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Combine unions the rows of sources into one table.
//
// Columns are aligned by name; the result's columns are the union of all
// source columns in first-occurrence order, and a source missing a column
// contributes nulls for it. Rows keep source order and then row order, and a
// row equal in every column to an earlier row is dropped.
//
// Combine never panics. On an internal failure it returns an empty table and
// a *MergeError the caller should surface as a warning. No sources yields an
// empty table and a nil error.
func Combine(sources []Source) (merged *Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			merged = EmptyTable()
			err = &MergeError{Cause: fmt.Errorf("%v", r)}
		}
	}()

	if len(sources) == 0 {
		return EmptyTable(), nil
	}

	columns, layouts := alignColumns(sources)

	out := &Table{Columns: columns, Rows: make([][]Cell, 0)}
	seen := make(map[string]struct{})
	var key strings.Builder

	for si, src := range sources {
		t := src.Table
		if t == nil {
			continue
		}
		positions := layouts[si]
		for ri, row := range t.Rows {
			if len(row) != len(t.Columns) {
				return EmptyTable(), &MergeError{Cause: fmt.Errorf("%w: %s row %d has %d cells, want %d",
					ErrRaggedRow, src.Key, ri+1, len(row), len(t.Columns))}
			}

			aligned := make([]Cell, len(columns))
			for ci, pos := range positions {
				aligned[pos] = row[ci]
			}

			key.Reset()
			writeRowKey(&key, aligned)
			k := key.String()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out.Rows = append(out.Rows, aligned)
		}
	}

	return out, nil
}

// alignColumns computes the union column sequence and, for every source, the
// output position of each of its columns. A name repeated n times inside one
// source occupies n distinct output columns, so repeated names survive the
// merge and stay visible to the final collision check.
func alignColumns(sources []Source) ([]string, [][]int) {
	type slot struct {
		name string
		nth  int
	}

	index := make(map[slot]int)
	var columns []string
	layouts := make([][]int, len(sources))

	for si, src := range sources {
		if src.Table == nil {
			continue
		}
		occurrences := make(map[string]int, len(src.Table.Columns))
		positions := make([]int, len(src.Table.Columns))
		for ci, name := range src.Table.Columns {
			s := slot{name: name, nth: occurrences[name]}
			occurrences[name]++
			pos, ok := index[s]
			if !ok {
				pos = len(columns)
				index[s] = pos
				columns = append(columns, name)
			}
			positions[ci] = pos
		}
		layouts[si] = positions
	}

	if columns == nil {
		columns = []string{}
	}
	return columns, layouts
}

// writeRowKey encodes a row so that two rows get the same key exactly when
// every cell is equal, with null distinct from the empty string.
func writeRowKey(b *strings.Builder, row []Cell) {
	for _, c := range row {
		if !c.Valid {
			b.WriteString("~;")
			continue
		}
		b.WriteString(strconv.Itoa(len(c.String)))
		b.WriteByte(':')
		b.WriteString(c.String)
	}
}
