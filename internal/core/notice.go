package core

import "fmt"

// NoticeLevel is the severity of a user-facing message.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a message for the presentation layer, optionally carrying a
// small table preview.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Head    *Table      `json:"-"`
}

// Successf, Infof, Warningf and Errorf build notices of the matching level.
func Successf(format string, args ...any) Notice {
	return Notice{Level: NoticeSuccess, Message: fmt.Sprintf(format, args...)}
}

func Infof(format string, args ...any) Notice {
	return Notice{Level: NoticeInfo, Message: fmt.Sprintf(format, args...)}
}

func Warningf(format string, args ...any) Notice {
	return Notice{Level: NoticeWarning, Message: fmt.Sprintf(format, args...)}
}

func Errorf(format string, args ...any) Notice {
	return Notice{Level: NoticeError, Message: fmt.Sprintf(format, args...)}
}
