package core

// Group is a cluster of raw column names sharing a group key.
type Group struct {
	Key   string   // normalized key, also the suggested canonical name
	Names []string // raw names in encounter order, duplicates preserved
}

// Cluster groups raw column names by GroupKey.
//
// Groups are returned in first-occurrence order of their keys, which is the
// order they are presented for resolution. An empty input yields no groups.
func Cluster(names []string) []Group {
	groups := make([]Group, 0, len(names))
	index := make(map[string]int, len(names))

	for _, name := range names {
		key := GroupKey(name)
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, Group{Key: key})
		}
		groups[pos].Names = append(groups[pos].Names, name)
	}

	return groups
}

// SampleValues returns up to limit distinct non-null values found in the
// given columns of t, scanning row by row and column by column within a row.
func SampleValues(t *Table, columns []string, limit int) []string {
	if t == nil || limit <= 0 {
		return nil
	}

	positions := make([]int, 0, len(columns))
	wanted := make(map[string]bool, len(columns))
	for _, want := range columns {
		if wanted[want] {
			continue
		}
		wanted[want] = true
		for i, c := range t.Columns {
			if c == want {
				positions = append(positions, i)
			}
		}
	}

	var samples []string
	seen := make(map[string]struct{}, limit)
	for _, row := range t.Rows {
		for _, pos := range positions {
			cell := row[pos]
			if !cell.Valid {
				continue
			}
			if _, dup := seen[cell.String]; dup {
				continue
			}
			seen[cell.String] = struct{}{}
			samples = append(samples, cell.String)
			if len(samples) == limit {
				return samples
			}
		}
	}
	return samples
}
