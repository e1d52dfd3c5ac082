package core

// Duplicates returns every name that appears more than once in columns,
// ordered by the position of its second occurrence. An empty result means
// the sequence is valid.
func Duplicates(columns []string) []string {
	counts := make(map[string]int, len(columns))
	var dupes []string
	for _, c := range columns {
		counts[c]++
		if counts[c] == 2 {
			dupes = append(dupes, c)
		}
	}
	return dupes
}

// renameSource applies m to one source and validates the result. On a
// collision it reconstructs, from this source only, which original columns
// collapsed into each duplicated target.
func renameSource(src Source, m RenameMap) (Source, error) {
	renamed := m.Apply(src.Table.Columns)

	dupes := Duplicates(renamed)
	if len(dupes) == 0 {
		src.Table = src.Table.WithColumns(renamed)
		return src, nil
	}

	collapses := make([]Collapse, len(dupes))
	for i, target := range dupes {
		c := Collapse{Target: target}
		for j, orig := range src.Table.Columns {
			if renamed[j] == target {
				c.Originals = append(c.Originals, orig)
			}
		}
		collapses[i] = c
	}
	return src, &CollisionError{Source: src.Key, Collapses: collapses}
}
