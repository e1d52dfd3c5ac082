// Package ingest turns uploaded files into tables.
//
// Each upload is parsed according to its Format into one raw grid per table
// (one for CSV, one per sheet for .xlsx and legacy .xls workbooks). A grid is
// trimmed of empty rows and columns, its first row is promoted to the header,
// and header names are made unique before the grid becomes a core.Table.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for file types the parser cannot read.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmptySource marks a file or sheet with nothing left after trimming.
	ErrEmptySource = errors.New("empty file")

	// ErrNoFile is returned when an upload request carries no files.
	ErrNoFile = errors.New("no file provided")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// Format is the closed set of readable file formats.
type Format int

const (
	FormatCSV Format = iota + 1
	FormatXLSX
	FormatXLS
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	case FormatXLS:
		return "xls"
	default:
		return "unknown"
	}
}

// DetectFormat picks the format from the file extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	default:
		return 0, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
}
