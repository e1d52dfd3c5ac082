package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/web/templates"
)

// StateResponse is the JSON snapshot of a session.
type StateResponse struct {
	SessionID    string               `json:"session_id"`
	Generation   int                  `json:"generation"`
	Uploaded     bool                 `json:"uploaded"`
	Sources      []core.SourceSummary `json:"sources"`
	Preview      *TableResponse       `json:"preview"`
	PreviewError string               `json:"preview_error,omitempty"`
	Groups       []core.GroupView     `json:"groups"`
	Renames      []Rename             `json:"renames"`
	Final        *TableResponse       `json:"final,omitempty"`
	FinalStale   bool                 `json:"final_stale"`
	LastApply    core.ApplyState      `json:"last_apply"`
	Notices      []core.Notice        `json:"notices,omitempty"`
}

// TableResponse is a table with nulls as JSON null, truncated to the
// preview row limit.
type TableResponse struct {
	Columns   []string    `json:"columns"`
	Rows      [][]*string `json:"rows"`
	TotalRows int         `json:"total_rows"`
}

// Rename is one entry of the rename map.
type Rename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ChoiceRequest is the body of POST /api/choice.
type ChoiceRequest struct {
	Key    string `json:"key"`
	Option string `json:"option"`
	Custom string `json:"custom"`
}

// ApplyResponse reports an apply-renaming attempt.
type ApplyResponse struct {
	State   core.ApplyState `json:"state"`
	Message string          `json:"message"`
	Final   *TableResponse  `json:"final,omitempty"`
}

// ============================================================================
// API handlers
// ============================================================================

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	view := sess.Reconcile(r.Context())
	writeJSON(w, http.StatusOK, newStateResponse(sess.ID(), view, sess.TakeNotices()))
}

func (s *Server) handleAPIUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	if err := s.parseUploadForm(w, r); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	notices, err := s.ingest(r, sess)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(sess.ID(), sess.Reconcile(r.Context()), notices))
}

func (s *Server) handleAPIChoice(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req ChoiceRequest
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, fmt.Errorf("decode choice: %w", err), http.StatusBadRequest)
			return
		}
	} else {
		req = ChoiceRequest{Key: r.FormValue("key"), Option: r.FormValue("option"), Custom: r.FormValue("custom")}
	}

	if err := sess.Choose(r.Context(), req.Key, req.Option, req.Custom); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	view := sess.Reconcile(r.Context())
	g, _ := view.Group(req.Key)
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleAPIApply(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	res, err := sess.Apply(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, ApplyResponse{
		State:   res.State,
		Message: applyNotice(nil).Message,
		Final:   newTableResponse(res.Final),
	})
}

func (s *Server) handleAPIReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.Reset()
	writeJSON(w, http.StatusOK, newStateResponse(sess.ID(), sess.Reconcile(r.Context()), nil))
}

func (s *Server) handleAPIExportDB(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	table := r.FormValue("table")

	n, err := s.exportToDB(r.Context(), sess, table)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table, "rows": n})
}

// ============================================================================
// Response builders
// ============================================================================

func newStateResponse(id string, v *core.View, notices []core.Notice) StateResponse {
	resp := StateResponse{
		SessionID:  id,
		Generation: v.Generation,
		Uploaded:   v.Uploaded,
		Sources:    v.Sources,
		Preview:    newTableResponse(v.Preview),
		Groups:     v.Groups,
		Final:      newTableResponse(v.Final),
		FinalStale: v.FinalStale,
		LastApply:  v.LastApply,
		Notices:    notices,
	}
	if resp.Sources == nil {
		resp.Sources = []core.SourceSummary{}
	}
	if resp.Groups == nil {
		resp.Groups = []core.GroupView{}
	}
	if v.PreviewErr != nil {
		resp.PreviewError = core.FormatUserError(v.PreviewErr)
	}
	resp.Renames = make([]Rename, 0, v.RenameMap.Len())
	for _, name := range v.RenameMap.Names() {
		resp.Renames = append(resp.Renames, Rename{From: name, To: v.RenameMap.Target(name)})
	}
	return resp
}

func newTableResponse(t *core.Table) *TableResponse {
	if t == nil {
		return nil
	}
	rows := t.Rows
	if len(rows) > templates.PreviewRows {
		rows = rows[:templates.PreviewRows]
	}
	out := &TableResponse{
		Columns:   t.Columns,
		Rows:      make([][]*string, len(rows)),
		TotalRows: t.Len(),
	}
	for i, row := range rows {
		cells := make([]*string, len(row))
		for j, c := range row {
			if c.Valid {
				v := c.String
				cells[j] = &v
			}
		}
		out.Rows[i] = cells
	}
	return out
}
