package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/logging"
)

// DefaultMaxFileSize is the upload size limit when none is configured.
const DefaultMaxFileSize int64 = 100 << 20

// Upload is one submitted file.
type Upload struct {
	Name string
	Data []byte
}

// ReadUpload reads r fully, failing with ErrFileTooLarge past maxSize bytes.
func ReadUpload(name string, r io.Reader, maxSize int64) (Upload, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > maxSize {
		return Upload{}, fmt.Errorf("%s: %w (limit %d bytes)", name, ErrFileTooLarge, maxSize)
	}
	return Upload{Name: filepath.Base(name), Data: data}, nil
}

// ReadFile loads an upload from disk.
func ReadFile(path string, maxSize int64) (Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return Upload{}, err
	}
	defer f.Close()
	return ReadUpload(path, f, maxSize)
}

// Batch is the outcome of parsing one upload request.
type Batch struct {
	Sources []core.Source
	Notices []core.Notice
	Failed  int // files that produced an error notice
}

// Parser converts uploads into sources.
type Parser struct {
	MaxFileSize int64
}

// NewParser returns a parser with the given size limit.
func NewParser(maxFileSize int64) *Parser {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Parser{MaxFileSize: maxFileSize}
}

// Parse reads every upload in order. A name already seen in this batch is
// ignored with a warning. Failures are reported as notices and never stop
// the rest of the batch; only a cancelled context ends it early.
func (p *Parser) Parse(ctx context.Context, uploads []Upload) (Batch, error) {
	logger := logging.FromContext(ctx)
	var b Batch
	seen := make(map[string]bool, len(uploads))

	for _, u := range uploads {
		if err := ctx.Err(); err != nil {
			return b, err
		}

		if seen[u.Name] {
			b.Notices = append(b.Notices, core.Warningf(
				"Duplicate file `%s` ignored. Remove it if you want to re-upload.", u.Name))
			continue
		}
		seen[u.Name] = true

		sources, notices, err := p.parseOne(u)
		b.Notices = append(b.Notices, notices...)
		if err != nil {
			logger.Warn("upload rejected", "file", u.Name, "error", err)
			b.Notices = append(b.Notices, FailureNotice(u.Name, err))
			b.Failed++
			continue
		}
		b.Sources = append(b.Sources, sources...)
	}

	logger.Debug("upload batch parsed",
		"files", len(uploads),
		"tables", len(b.Sources),
		"failed", b.Failed,
	)
	return b, nil
}

func (p *Parser) parseOne(u Upload) ([]core.Source, []core.Notice, error) {
	if int64(len(u.Data)) > p.MaxFileSize {
		return nil, nil, fmt.Errorf("%s: %w", u.Name, ErrFileTooLarge)
	}

	format, err := DetectFormat(u.Name)
	if err != nil {
		return nil, nil, err
	}

	switch format {
	case FormatCSV:
		grid, err := readCSV(u.Data)
		if err != nil {
			return nil, nil, err
		}
		table, outcome := buildTable(grid)
		switch outcome {
		case gridEmpty:
			return nil, []core.Notice{core.Warningf("File `%s` is empty after trimming; skipping.", u.Name)}, nil
		case gridHeaderOnly:
			return nil, []core.Notice{core.Warningf("File `%s` has no data after header promotion; skipping.", u.Name)}, nil
		}
		return []core.Source{{Key: core.SourceKey(u.Name, ""), File: u.Name, Table: table}}, nil, nil

	default:
		read := readWorkbook
		if format == FormatXLS {
			read = readLegacyWorkbook
		}
		sheets, err := read(u.Data)
		if err != nil {
			return nil, nil, err
		}
		var (
			sources []core.Source
			notices []core.Notice
		)
		for _, sh := range sheets {
			table, outcome := buildTable(sh.grid)
			switch outcome {
			case gridEmpty:
				notices = append(notices, core.Warningf("Tab `%s` in `%s` is empty; skipping.", sh.name, u.Name))
				continue
			case gridHeaderOnly:
				notices = append(notices, core.Warningf("Tab `%s` in `%s` has no data after header promotion; skipping.", sh.name, u.Name))
				continue
			}
			sources = append(sources, core.Source{
				Key:   core.SourceKey(u.Name, sh.name),
				File:  u.Name,
				Sheet: sh.name,
				Table: table,
			})
		}
		return sources, notices, nil
	}
}

// FailureNotice describes why the file name could not be loaded.
func FailureNotice(name string, err error) core.Notice {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return core.Errorf("Unsupported file type: `%s`", name)
	case errors.Is(err, ErrFileTooLarge):
		return core.Errorf("File `%s` is too large. %s", name, core.FormatUserError(err))
	default:
		return core.Errorf("Failed to load `%s`: %s", name, core.FormatUserError(err))
	}
}

func readCSV(data []byte) ([][]string, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	return records, nil
}

type sheet struct {
	name string
	grid [][]string
}

func readWorkbook(data []byte) ([]sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	sheets := make([]sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("invalid xlsx: sheet %q: %w", name, err)
		}
		sheets = append(sheets, sheet{name: name, grid: rows})
	}
	return sheets, nil
}

// readLegacyWorkbook reads a BIFF .xls workbook. Malformed files can panic
// inside the reader, so panics are reported as parse errors.
func readLegacyWorkbook(data []byte) (sheets []sheet, err error) {
	defer func() {
		if r := recover(); r != nil {
			sheets, err = nil, fmt.Errorf("invalid xls workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("invalid xls workbook: %w", err)
	}
	if wb == nil {
		return nil, errors.New("invalid xls workbook: no workbook stream")
	}

	n := wb.NumSheets()
	sheets = make([]sheet, 0, n)
	for i := 0; i < n; i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		grid := make([][]string, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				grid = append(grid, nil)
				continue
			}
			cells := make([]string, row.LastCol())
			for c := range cells {
				cells[c] = row.Col(c)
			}
			grid = append(grid, cells)
		}
		sheets = append(sheets, sheet{name: ws.Name, grid: grid})
	}
	return sheets, nil
}
