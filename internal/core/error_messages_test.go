package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{
			name:     "rename collision",
			err:      &CollisionError{Source: "a.csv", Collapses: []Collapse{{Target: "x", Originals: []string{"a", "b"}}}},
			wantCode: "REN001",
		},
		{
			name:     "wrapped final collision",
			err:      fmt.Errorf("apply: %w", &FinalCollisionError{Names: []string{"x"}}),
			wantCode: "REN002",
		},
		{name: "merge error", err: &MergeError{Cause: errors.New("boom")}, wantCode: "MRG001"},
		{name: "no tables", err: ErrNoTables, wantCode: "MRG002"},
		{name: "unknown group", err: fmt.Errorf("%w: zzz", ErrUnknownGroup), wantCode: "REN003"},
		{name: "unknown option", err: ErrUnknownOption, wantCode: "REN004"},
		{name: "unmapped column", err: fmt.Errorf("%w: %q", ErrUnmappedColumn, "a"), wantCode: "REN005"},
		{name: "session expired", err: ErrSessionNotFound, wantCode: "SES001"},
		{name: "too many sessions", err: ErrTooManySessions, wantCode: "SES002"},
		{name: "nothing to export", err: ErrNothingToExport, wantCode: "EXP001"},
		{name: "file too large", err: errors.New("file too large: 200MB exceeds limit"), wantCode: "FILE001"},
		{name: "unreadable xls", err: errors.New("invalid xls workbook: bad header"), wantCode: "FILE006"},
		{name: "unreadable xlsx", err: errors.New("invalid xlsx: zip: not a valid zip file"), wantCode: "FILE002"},
		{name: "unsupported format", err: errors.New("notes.txt: unsupported format"), wantCode: "FILE003"},
		{name: "rate limit", err: errors.New("rate limit exceeded"), wantCode: "RATE001"},
		{name: "context canceled", err: context.Canceled, wantCode: "UPL002"},
		{name: "case insensitive matching", err: errors.New("INVALID CSV: bare quote"), wantCode: "FILE002"},
		{name: "unknown error returns default", err: errors.New("some random internal error"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, MapError(tt.err).Code)
		})
	}
}

func TestFormatUserError(t *testing.T) {
	assert.Equal(t, "", FormatUserError(nil))
	assert.Equal(t,
		"There is nothing to export yet (Code: EXP001). Upload files with at least one data row",
		FormatUserError(ErrNothingToExport))
}

func TestIsUserFacing(t *testing.T) {
	assert.False(t, IsUserFacing(nil))
	assert.True(t, IsUserFacing(ErrNoTables))
	assert.False(t, IsUserFacing(errors.New("mystery")))
}

func TestDetail(t *testing.T) {
	err := &CollisionError{
		Source:    "a.csv",
		Collapses: []Collapse{{Target: "x", Originals: []string{"a", "b"}}},
	}
	assert.Equal(t,
		"duplicate column names in \"a.csv\" after renaming `a`, `b` to `x`; each original column must map to its own unique name",
		Detail(fmt.Errorf("wrapped: %w", err)))
	assert.Empty(t, Detail(ErrNoTables))
}
