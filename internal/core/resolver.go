package core

import (
	"fmt"
	"sort"
	"strings"
)

// CustomizeOption is the option that switches a group to free-text naming.
const CustomizeOption = "I want to customize..."

// ChoiceKind identifies how the name of a group was picked.
type ChoiceKind int

const (
	ChoiceSuggested ChoiceKind = iota // use the group key
	ChoiceExisting                    // use one of the raw column names
	ChoiceCustom                      // use free text, falling back to the key when blank
)

func (k ChoiceKind) String() string {
	switch k {
	case ChoiceExisting:
		return "existing"
	case ChoiceCustom:
		return "custom"
	default:
		return "suggested"
	}
}

// Choice is the user's selection for one group.
type Choice struct {
	Kind  ChoiceKind
	Value string // raw column for ChoiceExisting, free text for ChoiceCustom
}

// Option returns the option string that selects c for a group keyed by key.
func (c Choice) Option(key string) string {
	switch c.Kind {
	case ChoiceCustom:
		return CustomizeOption
	case ChoiceExisting:
		return c.Value
	default:
		return key
	}
}

// Options lists the candidate choices for a group: customize, the group key,
// then every distinct raw column currently in the combined table, sorted.
func Options(key string, rawColumns []string) []string {
	raw := make([]string, 0, len(rawColumns))
	seen := map[string]bool{CustomizeOption: true, key: true}
	for _, c := range rawColumns {
		if seen[c] {
			continue
		}
		seen[c] = true
		raw = append(raw, c)
	}
	sort.Strings(raw)

	return append([]string{CustomizeOption, key}, raw...)
}

// Resolver holds the naming choice for each group, keyed by group key.
// Choices survive re-clustering: a group that disappears and comes back
// keeps its earlier choice until Reset.
type Resolver struct {
	choices map[string]Choice
}

// NewResolver returns a resolver where every group uses its suggested key.
func NewResolver() *Resolver {
	return &Resolver{choices: make(map[string]Choice)}
}

// Choice returns the stored choice for key, defaulting to ChoiceSuggested.
func (r *Resolver) Choice(key string) Choice {
	if c, ok := r.choices[key]; ok {
		return c
	}
	return Choice{Kind: ChoiceSuggested}
}

// Select records a choice from an option list built by Options.
// custom is only read when option is CustomizeOption.
func (r *Resolver) Select(key, option, custom string) Choice {
	var c Choice
	switch option {
	case CustomizeOption:
		c = Choice{Kind: ChoiceCustom, Value: strings.TrimSpace(custom)}
	case key:
		c = Choice{Kind: ChoiceSuggested}
	default:
		c = Choice{Kind: ChoiceExisting, Value: option}
	}
	r.choices[key] = c
	return c
}

// Resolve returns the final name for g. rawColumns is the set of columns in
// the combined table; an existing-column choice that is no longer present
// falls back to the group key.
func (r *Resolver) Resolve(g Group, rawColumns map[string]bool) string {
	c := r.Choice(g.Key)
	switch c.Kind {
	case ChoiceCustom:
		if c.Value != "" {
			return c.Value
		}
	case ChoiceExisting:
		if rawColumns[c.Value] {
			return c.Value
		}
	}
	return g.Key
}

// RenameMap resolves every group and assigns the result to all of its names.
func (r *Resolver) RenameMap(groups []Group, rawColumns []string) RenameMap {
	present := make(map[string]bool, len(rawColumns))
	for _, c := range rawColumns {
		present[c] = true
	}

	m := RenameMap{targets: make(map[string]string)}
	for _, g := range groups {
		m.assignGroup(g.Names, r.Resolve(g, present))
	}
	return m
}

// Reset forgets every choice.
func (r *Resolver) Reset() {
	r.choices = make(map[string]Choice)
}

// RenameMap maps raw column names to their final names.
//
// The only way to populate a RenameMap is group-wise, so all names in one
// group always receive the same target.
type RenameMap struct {
	targets map[string]string
	order   []string
}

func (m *RenameMap) assignGroup(names []string, target string) {
	for _, n := range names {
		if _, seen := m.targets[n]; !seen {
			m.order = append(m.order, n)
		}
		m.targets[n] = target
	}
}

// Target returns the final name for raw, or raw itself when unmapped.
func (m RenameMap) Target(raw string) string {
	if t, ok := m.targets[raw]; ok {
		return t
	}
	return raw
}

// Has reports whether raw has an explicit mapping.
func (m RenameMap) Has(raw string) bool {
	_, ok := m.targets[raw]
	return ok
}

// Len returns the number of mapped raw names.
func (m RenameMap) Len() int {
	return len(m.targets)
}

// Names returns the mapped raw names in assignment order.
func (m RenameMap) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Apply renames a column sequence.
func (m RenameMap) Apply(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = m.Target(c)
	}
	return out
}

// Covers returns an error naming the first column without a mapping.
func (m RenameMap) Covers(columns []string) error {
	for _, c := range columns {
		if !m.Has(c) {
			return fmt.Errorf("%w: %q", ErrUnmappedColumn, c)
		}
	}
	return nil
}
