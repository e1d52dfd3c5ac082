package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoTables is returned when an operation needs at least one uploaded table.
	ErrNoTables = errors.New("no tables to combine")

	// ErrRaggedRow marks a row whose cell count differs from its table's width.
	ErrRaggedRow = errors.New("ragged row")

	// ErrUnmappedColumn marks a column the rename map does not cover.
	ErrUnmappedColumn = errors.New("column has no rename target")

	// ErrUnknownGroup is returned when a choice names a group that does not exist.
	ErrUnknownGroup = errors.New("unknown column group")

	// ErrUnknownOption is returned when a choice is not among the group's options.
	ErrUnknownOption = errors.New("unknown rename option")

	// ErrNothingToExport is returned when the table to export is empty.
	ErrNothingToExport = errors.New("nothing to export")

	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when the session limit is reached.
	ErrTooManySessions = errors.New("too many active sessions")
)

// Collapse lists the original columns of one table that were renamed to the
// same target.
type Collapse struct {
	Target    string
	Originals []string
}

// CollisionError reports that renaming one source table produced duplicate
// column names. Nothing was committed when it is returned.
type CollisionError struct {
	Source    string
	Collapses []Collapse
}

func (e *CollisionError) Error() string {
	parts := make([]string, len(e.Collapses))
	for i, c := range e.Collapses {
		parts[i] = fmt.Sprintf("%s to `%s`", quoteAll(c.Originals), c.Target)
	}
	return fmt.Sprintf("duplicate column names in %q after renaming %s; each original column must map to its own unique name",
		e.Source, strings.Join(parts, "; "))
}

// FinalCollisionError reports duplicate column names in the merged result.
// The merged table was computed but not committed.
type FinalCollisionError struct {
	Names []string
}

func (e *FinalCollisionError) Error() string {
	return fmt.Sprintf("duplicate column names after merging: %s; pick unique names and try again",
		quoteAll(e.Names))
}

// MergeError wraps an unexpected failure inside the merge engine.
type MergeError struct {
	Cause error
}

func (e *MergeError) Error() string {
	return "merge failed: " + e.Cause.Error()
}

func (e *MergeError) Unwrap() error {
	return e.Cause
}

func quoteAll(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = "`" + n + "`"
	}
	return strings.Join(q, ", ")
}
