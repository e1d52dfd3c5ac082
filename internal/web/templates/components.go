// Package templates holds the HTML components of the web UI.
package templates

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/fusion/internal/core"
)

// html accumulates markup and remembers the first write error.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(parts ...string) {
	for _, p := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, p)
	}
}

func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *html) attr(name, value string) {
	h.raw(" ", name, `="`, templ.EscapeString(value), `"`)
}

// ErrorAlert renders an error box with the user message, suggested action
// and support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<div class="alert alert-error" role="alert"><strong>`)
		h.text(message)
		h.raw(`</strong>`)
		if action != "" {
			h.raw(` <span class="action">`)
			h.text(action)
			h.raw(`</span>`)
		}
		if code != "" {
			h.raw(` <code>`)
			h.text(code)
			h.raw(`</code>`)
		}
		h.raw(`</div>`)
		return h.err
	})
}

// Notices renders flash messages, each with its optional table head.
func Notices(notices []core.Notice) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		writeNotices(ctx, h, notices)
		return h.err
	})
}

func writeNotices(ctx context.Context, h *html, notices []core.Notice) {
	if len(notices) == 0 {
		return
	}
	h.raw(`<div class="notices">`)
	for _, n := range notices {
		h.raw(`<div class="alert alert-`, string(n.Level), `">`)
		writeInlineCode(h, n.Message)
		h.raw(`</div>`)
		if n.Head != nil {
			writeTable(h, n.Head, 0)
		}
	}
	h.raw(`</div>`)
}

// writeInlineCode escapes s and renders `backticked` spans as <code>.
func writeInlineCode(h *html, s string) {
	parts := strings.Split(s, "`")
	for i, p := range parts {
		if i%2 == 1 && i < len(parts)-1 {
			h.raw("<code>")
			h.text(p)
			h.raw("</code>")
			continue
		}
		if i%2 == 1 {
			h.raw("`")
		}
		h.text(p)
	}
}

// Table renders t, showing at most maxRows rows when maxRows > 0.
func Table(t *core.Table, maxRows int) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}
		writeTable(h, t, maxRows)
		return h.err
	})
}

func writeTable(h *html, t *core.Table, maxRows int) {
	if t == nil || t.Width() == 0 {
		h.raw(`<p class="muted">No columns.</p>`)
		return
	}

	h.raw(`<div class="table-wrap"><table><thead><tr>`)
	for _, c := range t.Columns {
		h.raw(`<th>`)
		h.text(c)
		h.raw(`</th>`)
	}
	h.raw(`</tr></thead><tbody>`)

	rows := t.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for _, row := range rows {
		h.raw(`<tr>`)
		for _, c := range row {
			if !c.Valid {
				h.raw(`<td class="null"></td>`)
				continue
			}
			h.raw(`<td>`)
			h.text(c.String)
			h.raw(`</td>`)
		}
		h.raw(`</tr>`)
	}
	h.raw(`</tbody></table></div>`)

	if len(rows) < t.Len() {
		h.raw(`<p class="muted">Showing `, strconv.Itoa(len(rows)), ` of `, strconv.Itoa(t.Len()), ` rows.</p>`)
	}
}
