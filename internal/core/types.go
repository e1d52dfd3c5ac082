package core

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Cell is a single table value. A Cell with Valid == false is null: the value
// was absent in the source or the row came from a table without that column.
type Cell = pgtype.Text

// Text returns a non-null Cell holding s.
func Text(s string) Cell {
	return pgtype.Text{String: s, Valid: true}
}

// Null returns a null Cell.
func Null() Cell {
	return pgtype.Text{}
}

// Table is a rectangular dataset with an ordered sequence of named columns.
// Every row has exactly len(Columns) cells.
//
// Tables are treated as immutable once built: operations that change the
// schema return a new Table that may share row storage with the original.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

// NewTable builds a table from columns and rows.
func NewTable(columns []string, rows ...[]Cell) *Table {
	return &Table{Columns: columns, Rows: rows}
}

// EmptyTable returns a table with zero rows and zero columns.
func EmptyTable() *Table {
	return &Table{Columns: []string{}, Rows: [][]Cell{}}
}

// Empty reports whether the table has no rows or no columns.
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0 || len(t.Columns) == 0
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Width returns the number of columns.
func (t *Table) Width() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Head returns a table holding at most the first n rows.
func (t *Table) Head(n int) *Table {
	if t == nil {
		return EmptyTable()
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// ColumnIndex returns the position of the first column named name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// WithColumns returns a table with the same rows under a new column sequence.
// The caller guarantees len(columns) == t.Width().
func (t *Table) WithColumns(columns []string) *Table {
	return &Table{Columns: columns, Rows: t.Rows}
}

// Strings returns the row values as strings, with nulls rendered as "".
func (t *Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, len(row))
		for j, c := range row {
			if c.Valid {
				rec[j] = c.String
			}
		}
		out[i] = rec
	}
	return out
}

// String renders a short description for logs.
func (t *Table) String() string {
	if t == nil {
		return "Table(nil)"
	}
	return "Table[" + strings.Join(t.Columns, ",") + "]x" + strconv.Itoa(len(t.Rows))
}

// Source is one table in the registry together with its origin.
type Source struct {
	Key   string // file name, or "file::sheet" for spreadsheet tabs
	File  string
	Sheet string
	Table *Table
}

// SourceKey builds the registry key for a file or a spreadsheet tab.
func SourceKey(file, sheet string) string {
	if sheet == "" {
		return file
	}
	return file + "::" + sheet
}
