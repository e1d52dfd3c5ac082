package core

// # Error Codes Reference
//
// User-facing failures carry a short code so a user can quote it when
// asking for help. Codes are grouped by category:
//
//	FILE001 - File too large          Patterns: "file too large", ErrFileTooLarge
//	FILE002 - Unreadable file         Patterns: "invalid csv", "invalid xlsx"
//	FILE003 - Unsupported format      Patterns: "unsupported format"
//	FILE004 - No file                 Patterns: "no file provided"
//	FILE005 - Empty file              Patterns: "empty file"
//	FILE006 - Unreadable .xls         Patterns: "invalid xls workbook"
//
//	MRG001  - Merge failed            *MergeError
//	MRG002  - Nothing to combine      ErrNoTables
//
//	REN001  - Duplicate after rename  *CollisionError
//	REN002  - Duplicate after merge   *FinalCollisionError
//	REN003  - Unknown group           ErrUnknownGroup
//	REN004  - Unknown option          ErrUnknownOption
//	REN005  - Unmapped column         ErrUnmappedColumn
//
//	SES001  - Session expired         ErrSessionNotFound
//	SES002  - Too many sessions       ErrTooManySessions
//
//	EXP001  - Nothing to export       ErrNothingToExport
//	EXP002  - Unknown export format   Patterns: "unknown export format"
//	EXP003  - Database sink           Patterns: "database sink"
//
//	RATE001 - Rate limited            Patterns: "rate limit"
//	UPL001  - Busy                    Patterns: "too many concurrent uploads"
//	UPL002  - Request cancelled       Patterns: "context canceled"
//	UPL003  - Request timeout         Patterns: "context deadline exceeded"
//
//	ERR000  - Unknown error
//
// Typed errors and sentinels are matched first with errors.As / errors.Is.
// Anything else falls through to case-insensitive substring patterns, where
// the first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgMergeFailed = UserMessage{
		Message: "The uploaded tables could not be combined",
		Action:  "Check the files for unusual content and upload them again",
		Code:    "MRG001",
	}
	msgNoTables = UserMessage{
		Message: "There are no tables to combine",
		Action:  "Upload at least one file first",
		Code:    "MRG002",
	}
	msgCollision = UserMessage{
		Message: "Renaming would give one table two columns with the same name",
		Action:  "Pick a unique name for each original column",
		Code:    "REN001",
	}
	msgFinalCollision = UserMessage{
		Message: "The combined table would contain duplicate column names",
		Action:  "Pick unique names and try again",
		Code:    "REN002",
	}
	msgUnknownGroup = UserMessage{
		Message: "That column group no longer exists",
		Action:  "Reload the page to see the current groups",
		Code:    "REN003",
	}
	msgUnknownOption = UserMessage{
		Message: "That name is not one of the available options",
		Action:  "Choose a name from the list",
		Code:    "REN004",
	}
	msgUnmapped = UserMessage{
		Message: "A column has no new name",
		Action:  "Reload the page and apply the renaming again",
		Code:    "REN005",
	}
	msgSessionNotFound = UserMessage{
		Message: "Your session has expired",
		Action:  "Upload your files again",
		Code:    "SES001",
	}
	msgTooManySessions = UserMessage{
		Message: "The server is handling too many sessions",
		Action:  "Please try again in a few minutes",
		Code:    "SES002",
	}
	msgNothingToExport = UserMessage{
		Message: "There is nothing to export yet",
		Action:  "Upload files with at least one data row",
		Code:    "EXP001",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched against the lowercased error text. Specific
// patterns come before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors (FILE001-FILE006)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Check the file opens in a spreadsheet program and save it as CSV",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid xlsx",
		msg: UserMessage{
			Message: "File is not a valid Excel workbook",
			Action:  "Open the file in Excel and save it as .xlsx",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid xls workbook",
		msg: UserMessage{
			Message: "File is not a readable .xls workbook",
			Action:  "Open the file in Excel and save it as .xlsx",
			Code:    "FILE006",
		},
	},
	{
		pattern: "unsupported format",
		msg: UserMessage{
			Message: "Unsupported file type",
			Action:  "Upload .csv, .xls, .xlsx or .xlsm files",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select at least one file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header row",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Export Errors (EXP002-EXP003)
	// =========================================================================
	{
		pattern: "unknown export format",
		msg: UserMessage{
			Message: "Unknown export format",
			Action:  "Export as csv or xlsx",
			Code:    "EXP002",
		},
	},
	{
		pattern: "database sink",
		msg: UserMessage{
			Message: "The table could not be written to the database",
			Action:  "Please try again later or download the file instead",
			Code:    "EXP003",
		},
	},

	// =========================================================================
	// Request Errors (RATE001, UPL001-UPL003)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL003",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000). Check the
// application logs for the original error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	msg := MapError(&CollisionError{...})
//	// msg.Code == "REN001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		collision *CollisionError
		final     *FinalCollisionError
		merge     *MergeError
	)
	switch {
	case errors.As(err, &collision):
		return msgCollision
	case errors.As(err, &final):
		return msgFinalCollision
	case errors.As(err, &merge):
		return msgMergeFailed
	case errors.Is(err, ErrNoTables):
		return msgNoTables
	case errors.Is(err, ErrUnknownGroup):
		return msgUnknownGroup
	case errors.Is(err, ErrUnknownOption):
		return msgUnknownOption
	case errors.Is(err, ErrUnmappedColumn):
		return msgUnmapped
	case errors.Is(err, ErrSessionNotFound):
		return msgSessionNotFound
	case errors.Is(err, ErrTooManySessions):
		return msgTooManySessions
	case errors.Is(err, ErrNothingToExport):
		return msgNothingToExport
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// Detail returns the error text to show next to the mapped message. Rename
// collisions explain exactly which columns collapsed, so their own text is
// shown; for everything else the mapped message is enough.
func Detail(err error) string {
	var (
		collision *CollisionError
		final     *FinalCollisionError
	)
	if errors.As(err, &collision) {
		return collision.Error()
	}
	if errors.As(err, &final) {
		return final.Error()
	}
	return ""
}
