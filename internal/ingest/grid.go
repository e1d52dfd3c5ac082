package ingest

import (
	"strconv"

	"github.com/JonMunkholm/fusion/internal/core"
)

// gridOutcome says why a grid did or did not produce a table.
type gridOutcome int

const (
	gridOK gridOutcome = iota
	gridEmpty
	gridHeaderOnly
)

// buildTable trims grid, promotes its first row to the header and returns
// the resulting table. Empty strings become null cells.
func buildTable(grid [][]string) (*core.Table, gridOutcome) {
	grid = trimEmpty(grid)
	if len(grid) == 0 {
		return nil, gridEmpty
	}

	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}

	header := make([]string, width)
	for i := range header {
		if i < len(grid[0]) && grid[0][i] != "" {
			header[i] = grid[0][i]
		} else {
			header[i] = "column_" + strconv.Itoa(i+1)
		}
	}

	if len(grid) == 1 {
		return nil, gridHeaderOnly
	}

	rows := make([][]core.Cell, 0, len(grid)-1)
	for _, rec := range grid[1:] {
		row := make([]core.Cell, width)
		for i := range row {
			if i < len(rec) && rec[i] != "" {
				row[i] = core.Text(rec[i])
			}
		}
		rows = append(rows, row)
	}

	return core.NewTable(uniqueHeaders(header), rows...), gridOK
}

// trimEmpty drops rows and then columns whose cells are all empty.
func trimEmpty(grid [][]string) [][]string {
	kept := make([][]string, 0, len(grid))
	width := 0
	for _, row := range grid {
		if isEmptyRow(row) {
			continue
		}
		kept = append(kept, row)
		if len(row) > width {
			width = len(row)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	used := make([]bool, width)
	for _, row := range kept {
		for i, v := range row {
			if v != "" {
				used[i] = true
			}
		}
	}

	allUsed := true
	for _, u := range used {
		if !u {
			allUsed = false
			break
		}
	}
	if allUsed {
		return kept
	}

	out := make([][]string, len(kept))
	for r, row := range kept {
		trimmed := make([]string, 0, width)
		for i, u := range used {
			if !u {
				continue
			}
			if i < len(row) {
				trimmed = append(trimmed, row[i])
			} else {
				trimmed = append(trimmed, "")
			}
		}
		out[r] = trimmed
	}
	return out
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

// uniqueHeaders suffixes repeated names with _<n>: a, a, a becomes a, a_1, a_2.
// A generated name that collides with a later header keeps counting, so the
// result never contains duplicates.
func uniqueHeaders(header []string) []string {
	out := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	counts := make(map[string]int, len(header))

	for i, name := range header {
		candidate := name
		for taken[candidate] {
			counts[name]++
			candidate = name + "_" + strconv.Itoa(counts[name])
		}
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}
