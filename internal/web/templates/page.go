package templates

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/fusion/internal/core"
)

// PreviewRows caps the rows shown for the merged preview and final table.
const PreviewRows = 200

// PageData is everything the main page renders.
type PageData struct {
	View            *core.View
	Notices         []core.Notice
	DefaultFormat   string
	DatabaseEnabled bool
	MaxFiles        int
}

// Page renders the full single-page UI.
func Page(d PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<title>Fusion</title><style>`, pageCSS, `</style></head><body><main>`)
		h.raw(`<h1>Fusion</h1><p class="muted">Merge CSV and Excel files and reconcile their column names.</p>`)

		writeNotices(ctx, h, d.Notices)
		writeUploadForm(h, d)

		v := d.View
		if v != nil && len(v.Sources) > 0 {
			writeSources(h, v)
			writePreview(h, v)
			writeGroups(h, v)
			writeFinal(h, v)
		}
		writeExport(h, d)

		h.raw(`<form method="post" action="/reset" class="reset">`,
			`<button type="submit">Reset session</button></form>`)
		h.raw(`</main></body></html>`)
		return h.err
	})
}

func writeUploadForm(h *html, d PageData) {
	gen := 0
	if d.View != nil {
		gen = d.View.Generation
	}
	h.raw(`<section><h2>1. Upload files</h2>`)
	h.raw(`<form method="post" action="/upload" enctype="multipart/form-data">`)
	h.raw(`<input type="hidden" name="generation"`)
	h.attr("value", strconv.Itoa(gen))
	h.raw(`><input type="file" name="files" multiple accept=".csv,.xls,.xlsx,.xlsm">`)
	h.raw(` <button type="submit">Upload</button>`)
	if d.MaxFiles > 0 {
		h.raw(`<p class="muted">Up to `, strconv.Itoa(d.MaxFiles), ` files per upload. CSV, XLSX and XLSM are supported.</p>`)
	}
	h.raw(`</form></section>`)
}

func writeSources(h *html, v *core.View) {
	h.raw(`<section><h2>2. Loaded tables</h2><ul>`)
	for _, s := range v.Sources {
		h.raw(`<li><code>`)
		h.text(s.Key)
		h.raw(`</code> `, strconv.Itoa(s.Rows), ` rows, `, strconv.Itoa(s.Columns), ` columns</li>`)
	}
	h.raw(`</ul></section>`)
}

func writePreview(h *html, v *core.View) {
	h.raw(`<section><h2>3. Merged preview</h2>`)
	if v.PreviewErr != nil {
		msg := core.MapError(v.PreviewErr)
		h.raw(`<div class="alert alert-error">`)
		h.text(msg.Message)
		h.raw(`</div>`)
	}
	writeTable(h, v.Preview, PreviewRows)
	h.raw(`</section>`)
}

func writeGroups(h *html, v *core.View) {
	h.raw(`<section><h2>4. Reconcile column names</h2>`)
	if len(v.Groups) == 0 {
		h.raw(`<p class="muted">No columns to reconcile.</p></section>`)
		return
	}
	for _, g := range v.Groups {
		writeGroup(h, g)
	}
	h.raw(`<form method="post" action="/apply"><button type="submit">5. Apply renaming</button></form>`)
	h.raw(`</section>`)
}

func writeGroup(h *html, g core.GroupView) {
	h.raw(`<form method="post" action="/choice" class="group"><fieldset><legend>Group `, strconv.Itoa(g.Index), `: `)
	for i, n := range g.Names {
		if i > 0 {
			h.raw(", ")
		}
		h.raw("<code>")
		h.text(n)
		h.raw("</code>")
	}
	h.raw(`</legend><input type="hidden" name="key"`)
	h.attr("value", g.Key)
	h.raw(`><select name="option">`)
	for _, o := range g.Options {
		h.raw(`<option`)
		h.attr("value", o)
		if o == g.Selected {
			h.raw(` selected`)
		}
		h.raw(`>`)
		h.text(o)
		h.raw(`</option>`)
	}
	h.raw(`</select> <input type="text" name="custom" placeholder="Custom name"`)
	h.attr("value", g.Custom)
	h.raw(`> <button type="submit">Save</button>`)
	h.raw(` <span class="muted">Renames to <code>`)
	h.text(g.Resolved)
	h.raw(`</code></span>`)
	if len(g.Samples) > 0 {
		h.raw(`<p class="samples">Sample values: `)
		h.text(strings.Join(g.Samples, ", "))
		h.raw(`</p>`)
	}
	h.raw(`</fieldset></form>`)
}

func writeFinal(h *html, v *core.View) {
	if v.Final == nil {
		return
	}
	h.raw(`<section><h2>Final table</h2>`)
	if v.FinalStale {
		h.raw(`<div class="alert alert-warning">Files changed since renaming was applied. Apply again to refresh the final table.</div>`)
	}
	writeTable(h, v.Final, PreviewRows)
	h.raw(`</section>`)
}

func writeExport(h *html, d PageData) {
	v := d.View
	if v == nil || !v.Uploaded {
		return
	}
	h.raw(`<section><h2>6. Export</h2>`)
	if v.ExportTable().Empty() {
		h.raw(`<div class="alert alert-warning">Final table is empty or missing. Nothing to export.</div></section>`)
		return
	}
	first, second := "csv", "xlsx"
	if d.DefaultFormat == "xlsx" {
		first, second = second, first
	}
	for _, f := range []string{first, second} {
		h.raw(`<a class="button" href="/export?format=`, f, `">Download `, strings.ToUpper(f), `</a> `)
	}
	if d.DatabaseEnabled {
		h.raw(`<form method="post" action="/export/db" class="inline">`,
			`<input type="text" name="table" placeholder="Table name" required>`,
			` <button type="submit">Copy to database</button></form>`)
	}
	h.raw(`</section>`)
}

const pageCSS = `body{font-family:system-ui,sans-serif;margin:0;background:#f7f7f8;color:#222}
main{max-width:1100px;margin:0 auto;padding:1.5rem}
section{background:#fff;border:1px solid #ddd;border-radius:6px;padding:1rem;margin:1rem 0}
.muted{color:#666;font-size:.9rem}
.alert{padding:.5rem .75rem;border-radius:4px;margin:.5rem 0}
.alert-success{background:#e6f4ea}.alert-info{background:#e8f0fe}
.alert-warning{background:#fef7e0}.alert-error{background:#fce8e6}
.table-wrap{overflow-x:auto}table{border-collapse:collapse;font-size:.85rem}
th,td{border:1px solid #ddd;padding:.25rem .5rem;text-align:left}
td.null{background:#fafafa}fieldset{border:1px solid #eee;margin:.5rem 0}
.button{display:inline-block;padding:.35rem .75rem;border:1px solid #888;border-radius:4px;text-decoration:none;color:#222}
.inline{display:inline}`
