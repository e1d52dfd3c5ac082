package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/export"
	"github.com/JonMunkholm/fusion/internal/ingest"
	"github.com/JonMunkholm/fusion/internal/logging"
	"github.com/JonMunkholm/fusion/internal/web/templates"
)

// multipartMemory is how much of an upload form is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// ============================================================================
// Page handlers
// ============================================================================

// handleIndex renders the page for the current session and consumes its
// queued notices.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	data := templates.PageData{
		View:            sess.Reconcile(r.Context()),
		Notices:         sess.TakeNotices(),
		DefaultFormat:   s.cfg.Export.DefaultFormat,
		DatabaseEnabled: s.sink.Enabled(),
		MaxFiles:        s.cfg.Upload.MaxFiles,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := templates.Page(data).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page", "error", err)
	}
}

// handleUpload loads the submitted files, then redirects back to the page.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	if err := s.parseUploadForm(w, r); err != nil {
		sess.PushNotices(core.Errorf("%s", core.FormatUserError(err)))
		redirectHome(w, r)
		return
	}
	defer r.MultipartForm.RemoveAll()

	if gen := r.FormValue("generation"); gen != "" && gen != strconv.Itoa(sess.Generation()) {
		sess.PushNotices(core.Warningf("The upload form was out of date after a reset; nothing was loaded. Please choose your files again."))
		redirectHome(w, r)
		return
	}

	notices, err := s.ingest(r, sess)
	sess.PushNotices(notices...)
	if err != nil {
		sess.PushNotices(core.Errorf("%s", core.FormatUserError(err)))
	}
	redirectHome(w, r)
}

// handleChoice records one group's naming choice.
func (s *Server) handleChoice(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	err := sess.Choose(r.Context(), r.FormValue("key"), r.FormValue("option"), r.FormValue("custom"))
	if err != nil {
		logging.FromContext(r.Context()).Warn("choice rejected", "error", err)
		sess.PushNotices(core.Errorf("%s", core.FormatUserError(err)))
	}
	redirectHome(w, r)
}

// handleApply runs apply-renaming and reports the outcome as a notice.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	_, err := sess.Apply(r.Context())
	sess.PushNotices(applyNotice(err))
	redirectHome(w, r)
}

// handleReset clears the session.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.Reset()
	logging.FromContext(r.Context()).Info("session reset")
	redirectHome(w, r)
}

// handleExport downloads the export table as CSV or XLSX.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)

	format, err := export.ParseFormat(r.URL.Query().Get("format"), export.Format(s.cfg.Export.DefaultFormat))
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	t, err := sess.ExportTable(ctx)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	var buf bytes.Buffer
	opts := export.Options{Delimiter: s.cfg.Export.Delimiter, SheetName: s.cfg.Export.SheetName}
	if err := export.Write(&buf, t, format, opts); err != nil {
		respondError(w, r, fmt.Errorf("export %s: %w", format, err), http.StatusInternalServerError)
		return
	}

	name := format.FileName(s.cfg.Export.FileName)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(ctx).Warn("export write interrupted", "error", err)
		return
	}

	logging.FromContext(ctx).Info("table exported",
		"format", string(format),
		"rows", t.Len(),
		"columns", t.Width(),
	)
}

// handleExportDB copies the export table into PostgreSQL.
func (s *Server) handleExportDB(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	table := r.FormValue("table")

	n, err := s.exportToDB(r.Context(), sess, table)
	if err != nil {
		sess.PushNotices(core.Errorf("%s", core.FormatUserError(err)))
	} else {
		sess.PushNotices(core.Successf("Copied %d rows into `%s`.", n, table))
	}
	redirectHome(w, r)
}

// ============================================================================
// Shared operations
// ============================================================================

// parseUploadForm reads the multipart form, bounding the body by the
// configured per-file size times the file limit.
func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request) error {
	maxBody := s.cfg.Upload.MaxFileSize*int64(s.cfg.Upload.MaxFiles) + multipartMemory
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("upload form: %w", ingest.ErrFileTooLarge)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return ingest.ErrNoFile
		}
		return fmt.Errorf("upload form: %w", err)
	}
	return nil
}

// ingest parses the files of an already parsed upload form and loads them
// into sess. Per-file problems come back as notices; the error is for
// failures of the request as a whole.
func (s *Server) ingest(r *http.Request, sess *core.Session) ([]core.Notice, error) {
	ctx := r.Context()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, ingest.ErrNoFile
	}
	sess.MarkUploaded()

	var notices []core.Notice
	if max := s.cfg.Upload.MaxFiles; len(headers) > max {
		notices = append(notices, core.Warningf(
			"%d files were submitted; only the first %d were loaded.", len(headers), max))
		headers = headers[:max]
	}

	uploads := make([]ingest.Upload, 0, len(headers))
	for _, fh := range headers {
		u, err := s.readPart(fh)
		if err != nil {
			notices = append(notices, ingest.FailureNotice(fh.Filename, err))
			continue
		}
		uploads = append(uploads, u)
	}
	if len(uploads) == 0 {
		return notices, nil
	}

	if err := s.uploads.Acquire(ctx); err != nil {
		return notices, err
	}
	defer s.uploads.Release()

	batch, err := s.parser.Parse(ctx, uploads)
	notices = append(notices, batch.Notices...)
	if err != nil {
		return notices, err
	}

	notices = append(notices, sess.Load(ctx, batch.Sources)...)

	logging.FromContext(ctx).Info("upload processed",
		"files", len(uploads),
		"tables", len(batch.Sources),
		"failed", batch.Failed,
	)
	return notices, nil
}

func (s *Server) readPart(fh *multipart.FileHeader) (ingest.Upload, error) {
	if fh.Size > s.cfg.Upload.MaxFileSize {
		return ingest.Upload{}, fmt.Errorf("%s: %w", fh.Filename, ingest.ErrFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return ingest.Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return ingest.ReadUpload(fh.Filename, f, s.cfg.Upload.MaxFileSize)
}

func (s *Server) exportToDB(ctx context.Context, sess *core.Session, table string) (int64, error) {
	if !s.sink.Enabled() {
		return 0, export.ErrSinkDisabled
	}
	t, err := sess.ExportTable(ctx)
	if err != nil {
		return 0, err
	}
	return s.sink.Write(ctx, table, t)
}

// applyNotice turns an apply-renaming outcome into a notice. Collisions
// show their own text because it names the offending columns.
func applyNotice(err error) core.Notice {
	if err == nil {
		return core.Successf("Columns successfully renamed and re-merged!")
	}
	if detail := core.Detail(err); detail != "" {
		return core.Errorf("%s", detail)
	}
	return core.Errorf("%s", core.FormatUserError(err))
}

// redirectHome finishes a form post with a 303 so a reload does not repeat it.
func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
