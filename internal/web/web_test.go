package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fusion/internal/config"
	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/export"
	"github.com/JonMunkholm/fusion/internal/ingest"
)

// ============================================================================
// Helpers
// ============================================================================

func testServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Rate.Enabled = false
	for _, m := range mutate {
		m(cfg)
	}
	s := NewServer(cfg, core.NewSessionManager(cfg.Session.TTL, cfg.Session.Max), nil)
	t.Cleanup(func() { _ = s.Shutdown(t.Context()) })
	return s
}

// client replays the session cookie across requests like a browser.
type client struct {
	t       *testing.T
	srv     *Server
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, srv *Server) *client {
	return &client{t: t, srv: srv, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.srv.Router().ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postForm(path string, form map[string]string) *httptest.ResponseRecorder {
	var parts []string
	for k, v := range form {
		parts = append(parts, k+"="+urlEscape(v))
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(strings.Join(parts, "&")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) postJSON(path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(c.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

type file struct {
	name, content string
}

func (c *client) upload(path string, fields map[string]string, files ...file) *httptest.ResponseRecorder {
	c.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(c.t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.name)
		require.NoError(c.t, err)
		_, err = io.WriteString(part, f.content)
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *client) state() StateResponse {
	c.t.Helper()
	rec := c.get("/api/state")
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	var st StateResponse
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func urlEscape(s string) string {
	r := strings.NewReplacer("%", "%25", "&", "%26", "=", "%3D", "+", "%2B", " ", "+")
	return r.Replace(s)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

var (
	fileA = file{"a.csv", "Customer Name,Amount\nAcme,1\n"}
	fileB = file{"b.csv", "customer_name,amount\nBeta,2\n"}
)

// ============================================================================
// Page flow
// ============================================================================

func TestIndex_NewSession(t *testing.T) {
	c := newClient(t, testServer(t))

	rec := c.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Upload files")
	assert.NotContains(t, rec.Body.String(), "Export")
	assert.Contains(t, c.cookies, "fusion_session")
	assert.True(t, c.cookies["fusion_session"].HttpOnly)
}

func TestUploadFlow_RedirectsWithNotices(t *testing.T) {
	c := newClient(t, testServer(t))
	c.get("/")

	rec := c.upload("/upload", map[string]string{"generation": "0"}, fileA, fileB)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	page := c.get("/").Body.String()
	assert.Contains(t, page, "Loaded file: <code>a.csv</code>")
	assert.Contains(t, page, "Loaded file: <code>b.csv</code>")
	assert.Contains(t, page, "Group 1: <code>Customer Name</code>, <code>customer_name</code>")
	assert.Contains(t, page, "Sample values: Acme, Beta")
	assert.Contains(t, page, `href="/export?format=csv"`)

	// Notices are shown once.
	assert.NotContains(t, c.get("/").Body.String(), "Loaded file")
}

func TestUpload_StaleGeneration(t *testing.T) {
	c := newClient(t, testServer(t))
	c.get("/")
	c.postForm("/reset", nil)

	rec := c.upload("/upload", map[string]string{"generation": "0"}, fileA)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	page := c.get("/").Body.String()
	assert.Contains(t, page, "out of date")
	assert.Empty(t, c.state().Sources)
}

func TestUpload_EscapesFileNames(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/upload", nil, file{"<b>x.csv", "a\n1\n"})

	page := c.get("/").Body.String()
	assert.NotContains(t, page, "<b>x.csv")
	assert.Contains(t, page, "&lt;b&gt;x.csv")
}

func TestApply_PageNotices(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/upload", nil, fileA, fileB)
	c.get("/")

	rec := c.postForm("/apply", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	page := c.get("/").Body.String()
	assert.Contains(t, page, "Columns successfully renamed and re-merged!")
	assert.Contains(t, page, "Final table")

	c.postForm("/choice", map[string]string{"key": "customer_name", "option": core.CustomizeOption, "custom": "x"})
	c.postForm("/choice", map[string]string{"key": "amount", "option": core.CustomizeOption, "custom": "x"})
	c.postForm("/apply", nil)
	page = c.get("/").Body.String()
	assert.Contains(t, page, "duplicate column name")
}

func TestChoice_UnknownGroupNotice(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/upload", nil, fileA)

	rec := c.postForm("/choice", map[string]string{"key": "nope", "option": "nope"})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, c.get("/").Body.String(), "REN003")
}

func TestExport_EmptyAfterUploadWarns(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/upload", nil, file{"empty.csv", "a,b\n"})

	page := c.get("/").Body.String()
	assert.Contains(t, page, "has no data after header promotion")
	assert.Contains(t, page, "Nothing to export.")
}

// ============================================================================
// API
// ============================================================================

func TestAPI_StateAfterUpload(t *testing.T) {
	c := newClient(t, testServer(t))

	rec := c.upload("/api/upload", nil, fileA, fileB, file{"notes.txt", "x"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var st StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Uploaded)
	require.Len(t, st.Sources, 2)
	require.Len(t, st.Groups, 2)
	assert.Equal(t, "customer_name", st.Groups[0].Key)
	assert.Equal(t, []string{core.CustomizeOption, "customer_name", "Amount", "Customer Name", "amount"}, st.Groups[0].Options)
	assert.Equal(t, []string{"Customer Name", "Amount", "customer_name", "amount"}, st.Preview.Columns)
	assert.Equal(t, 2, st.Preview.TotalRows)
	assert.Nil(t, st.Preview.Rows[0][2], "null cell from the other file")

	var unsupported bool
	for _, n := range st.Notices {
		if strings.Contains(n.Message, "Unsupported file type: `notes.txt`") {
			unsupported = true
		}
	}
	assert.True(t, unsupported)
}

func TestAPI_ChoiceAndApply(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/api/upload", nil, fileA, fileB)

	rec := c.postJSON("/api/choice", ChoiceRequest{Key: "customer_name", Option: "Customer Name"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var g core.GroupView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Equal(t, "Customer Name", g.Resolved)

	rec = c.postJSON("/api/apply", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res ApplyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, core.StateCommitted, res.State)
	assert.Equal(t, []string{"Customer Name", "amount"}, res.Final.Columns)
	assert.Equal(t, 2, res.Final.TotalRows)

	st := c.state()
	assert.Equal(t, core.StateCommitted, st.LastApply)
	assert.False(t, st.FinalStale)
	require.NotNil(t, st.Final)
}

func TestAPI_ChoiceErrors(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/api/upload", nil, fileA)

	tests := []struct {
		name string
		req  ChoiceRequest
		code string
	}{
		{"unknown group", ChoiceRequest{Key: "missing", Option: "missing"}, "REN003"},
		{"unknown option", ChoiceRequest{Key: "amount", Option: "Revenue"}, "REN004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.postJSON("/api/choice", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}

	rec := c.postJSON("/api/choice", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ApplyCollision(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/api/upload", nil, fileA, fileB)
	c.postJSON("/api/choice", ChoiceRequest{Key: "customer_name", Option: core.CustomizeOption, Custom: "x"})
	c.postJSON("/api/choice", ChoiceRequest{Key: "amount", Option: core.CustomizeOption, Custom: "x"})

	rec := c.postJSON("/api/apply", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "REN001", resp.Code)
	assert.Contains(t, resp.Detail, "a.csv")

	st := c.state()
	assert.Equal(t, core.StateAborted, st.LastApply)
	assert.Nil(t, st.Final)
}

func TestAPI_ApplyWithoutTables(t *testing.T) {
	c := newClient(t, testServer(t))

	rec := c.postJSON("/api/apply", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "MRG002", decodeError(t, rec).Code)
}

func TestAPI_Reset(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/api/upload", nil, fileA)
	c.postJSON("/api/apply", nil)

	rec := c.postJSON("/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st := c.state()
	assert.Empty(t, st.Sources)
	assert.Empty(t, st.Groups)
	assert.Nil(t, st.Final)
	assert.False(t, st.Uploaded)
	assert.Equal(t, 1, st.Generation)
}

func TestAPI_UploadWithoutFiles(t *testing.T) {
	c := newClient(t, testServer(t))

	rec := c.upload("/api/upload", map[string]string{"x": "y"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE004", decodeError(t, rec).Code)
}

func TestAPI_UploadTooManyFiles(t *testing.T) {
	c := newClient(t, testServer(t, func(cfg *config.Config) { cfg.Upload.MaxFiles = 1 }))

	rec := c.upload("/api/upload", nil, fileA, fileB)
	require.Equal(t, http.StatusOK, rec.Code)
	var st StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Len(t, st.Sources, 1)
	assert.Equal(t, "a.csv", st.Sources[0].Key)
	assert.Contains(t, st.Notices[0].Message, "only the first 1")
}

func TestAPI_UploadFileTooLarge(t *testing.T) {
	c := newClient(t, testServer(t, func(cfg *config.Config) { cfg.Upload.MaxFileSize = 16 }))

	rec := c.upload("/api/upload", nil, file{"big.csv", "a,b,c\n1,2,3\n4,5,6\n"}, file{"ok.csv", "a\n1\n"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Len(t, st.Sources, 1)
	assert.Equal(t, "ok.csv", st.Sources[0].Key)
	assert.Contains(t, st.Notices[0].Message, "File `big.csv` is too large.")
}

func TestAPI_RequiresKeyWhenConfigured(t *testing.T) {
	srv := testServer(t, func(cfg *config.Config) {
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = []string{"secret"}
	})
	c := newClient(t, srv)

	assert.Equal(t, http.StatusUnauthorized, c.get("/api/state").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, c.do(req).Code)

	// Pages stay open.
	assert.Equal(t, http.StatusOK, c.get("/").Code)
}

// ============================================================================
// Export
// ============================================================================

func TestExport_CSV(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/api/upload", nil, fileA, fileB)
	c.postJSON("/api/apply", nil)

	rec := c.get("/export?format=csv")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="fusion_ha.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Equal(t, "customer_name,amount\nAcme,1\nBeta,2\n", rec.Body.String())
}

func TestExport_PreviewBeforeApply(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/api/upload", nil, fileA)

	rec := c.get("/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Customer Name,Amount\nAcme,1\n", rec.Body.String())
}

func TestExport_XLSX(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/api/upload", nil, fileA)

	rec := c.get("/export?format=xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="fusion_ha.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, export.FormatXLSX.ContentType(), rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestExport_Errors(t *testing.T) {
	c := newClient(t, testServer(t))

	rec := c.get("/api/export")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "EXP001", decodeError(t, rec).Code)

	rec = c.get("/export")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "There is nothing to export yet (EXP001)")

	c.upload("/api/upload", nil, fileA)
	rec = c.get("/api/export?format=pdf")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EXP002", decodeError(t, rec).Code)
}

func TestExportDB_Disabled(t *testing.T) {
	c := newClient(t, testServer(t))
	c.upload("/api/upload", nil, fileA)

	rec := c.postForm("/api/export/db", map[string]string{"table": "merged"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "EXP003", decodeError(t, rec).Code)

	rec = c.postForm("/export/db", map[string]string{"table": "merged"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, c.get("/").Body.String(), "EXP003")
}

// ============================================================================
// Sessions, health and middleware
// ============================================================================

func TestSessions_AreIsolated(t *testing.T) {
	srv := testServer(t)
	alice, bob := newClient(t, srv), newClient(t, srv)

	alice.upload("/api/upload", nil, fileA)
	bob.get("/")

	assert.Len(t, alice.state().Sources, 1)
	assert.Empty(t, bob.state().Sources)
	assert.NotEqual(t, alice.cookies["fusion_session"].Value, bob.cookies["fusion_session"].Value)
}

func TestSessions_UnknownCookieStartsFresh(t *testing.T) {
	c := newClient(t, testServer(t))
	c.cookies["fusion_session"] = &http.Cookie{Name: "fusion_session", Value: "stale-id"}

	rec := c.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "stale-id", c.cookies["fusion_session"].Value)
	assert.Contains(t, rec.Body.String(), "Your previous session expired")
}

func TestSessions_LimitReached(t *testing.T) {
	srv := testServer(t, func(cfg *config.Config) { cfg.Session.Max = 1 })
	newClient(t, srv).get("/")

	rec := newClient(t, srv).get("/api/state")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SES002", decodeError(t, rec).Code)
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	newClient(t, srv).get("/")

	rec := newClient(t, srv).get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string               `json:"status"`
		Sessions int                  `json:"sessions"`
		Uploads  ingest.LimiterStatus `json:"uploads"`
		Database bool                 `json:"database"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Sessions)
	assert.Equal(t, 4, body.Uploads.MaxConcurrent)
	assert.False(t, body.Database)
}

func TestSecurityHeaders(t *testing.T) {
	rec := newClient(t, testServer(t)).get("/")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")

	rec = newClient(t, testServer(t, func(cfg *config.Config) { cfg.Security.EnableCSP = false })).get("/")
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("1.1.1.1"))
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"), "limits are per client")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("1.1.1.1"), "window resets")

	now = now.Add(5 * time.Minute)
	rl.prune()
	assert.Empty(t, rl.visitors)
}

func TestRateLimiter_Middleware(t *testing.T) {
	srv := testServer(t, func(cfg *config.Config) {
		cfg.Rate.Enabled = true
		cfg.Rate.RequestsPerMinute = 1
	})
	c := newClient(t, srv)

	assert.Equal(t, http.StatusOK, c.get("/healthz").Code)
	rec := c.get("/api/state")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.CollisionError{Source: "a.csv"}, http.StatusConflict},
		{&core.FinalCollisionError{Names: []string{"x"}}, http.StatusConflict},
		{fmt.Errorf("choose: %w", core.ErrUnknownGroup), http.StatusBadRequest},
		{export.ErrUnknownFormat, http.StatusBadRequest},
		{fmt.Errorf("%w \"1x\"", export.ErrInvalidTableName), http.StatusBadRequest},
		{core.ErrNothingToExport, http.StatusUnprocessableEntity},
		{ingest.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{ingest.ErrTooManyUploads, http.StatusServiceUnavailable},
		{export.ErrSinkDisabled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
