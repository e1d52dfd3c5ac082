package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/fusion/internal/logging"
)

// SampleLimit is the number of distinct sample values shown per group.
const SampleLimit = 3

// HeadRows is the number of rows included in load notices.
const HeadRows = 5

// ApplyState is a step of the apply-renaming state machine:
//
//	Idle -> RenamingTables -> Aborted
//	                       -> AllTablesRenamed -> MergingFinal -> Rejected
//	                                                           -> Committed
//
// Only Committed changes session state.
type ApplyState string

const (
	StateIdle             ApplyState = "idle"
	StateRenamingTables   ApplyState = "renaming_tables"
	StateAborted          ApplyState = "aborted"
	StateAllTablesRenamed ApplyState = "all_tables_renamed"
	StateMergingFinal     ApplyState = "merging_final"
	StateRejected         ApplyState = "rejected"
	StateCommitted        ApplyState = "committed"
)

// SourceSummary describes one registry entry for display.
type SourceSummary struct {
	Key     string `json:"key"`
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
}

// GroupView is one cluster as presented for resolution.
type GroupView struct {
	Index    int      `json:"index"` // 1-based presentation number
	Key      string   `json:"key"`
	Names    []string `json:"names"`
	Options  []string `json:"options"`
	Selected string   `json:"selected"`
	Custom   string   `json:"custom,omitempty"`
	Resolved string   `json:"resolved"`
	Samples  []string `json:"samples,omitempty"`
}

// View is the result of reconciling a session: everything the presentation
// layer needs for one render. Views are shared between callers and must not
// be modified.
type View struct {
	Generation int
	Uploaded   bool
	Sources    []SourceSummary
	Preview    *Table
	PreviewErr error // non-fatal merge failure behind an empty preview
	Groups     []GroupView
	RenameMap  RenameMap
	Final      *Table // last committed table, nil until a rename is applied
	FinalStale bool   // registry changed since Final was committed
	LastApply  ApplyState
}

// ExportTable returns the committed final table, or the preview when
// renaming was never applied.
func (v *View) ExportTable() *Table {
	if v.Final != nil {
		return v.Final
	}
	return v.Preview
}

// Group returns the group view with the given key.
func (v *View) Group(key string) (GroupView, bool) {
	for _, g := range v.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return GroupView{}, false
}

// ApplyResult reports how far an apply-renaming attempt got.
type ApplyResult struct {
	State     ApplyState
	RenameMap RenameMap
	Final     *Table // merged table; present on Rejected and Committed
}

// Session is the per-user state: the table registry, the naming choices and
// the committed final table. Every method holds the session lock for its
// whole duration, so operations on one session never interleave.
type Session struct {
	id      string
	created time.Time

	lastSeen atomic.Int64

	mu         sync.Mutex
	registry   *Registry
	resolver   *Resolver
	final      *Table
	finalRev   uint64
	uploaded   bool
	generation int
	lastApply  ApplyState
	flash      []Notice

	rev      uint64 // bumped on any input change
	regRev   uint64 // bumped on registry change
	view     *View
	viewRev  uint64
	viewOkay bool
}

// NewSession returns an empty session.
func NewSession(id string) *Session {
	now := time.Now()
	s := &Session{
		id:        id,
		created:   now,
		registry:  NewRegistry(),
		resolver:  NewResolver(),
		lastApply: StateIdle,
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Touch records activity at t.
func (s *Session) Touch(t time.Time) {
	s.lastSeen.Store(t.UnixNano())
}

// LastSeen returns the time of the last recorded activity.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Generation identifies the current upload form. It changes on Reset so a
// client can re-submit files it already sent.
func (s *Session) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// MarkUploaded records that the user submitted files, even if none loaded.
func (s *Session) MarkUploaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.uploaded {
		s.uploaded = true
		s.rev++
	}
}

// Load stores parsed sources in the registry, replacing entries with the
// same key, and returns one notice per source.
func (s *Session) Load(ctx context.Context, sources []Source) []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logging.FromContext(ctx)
	notices := make([]Notice, 0, len(sources))

	for _, src := range sources {
		replaced := s.registry.Put(src)

		var n Notice
		switch {
		case src.Sheet != "" && replaced:
			n = Successf("Replaced tab `%s` from `%s`", src.Sheet, src.File)
		case src.Sheet != "":
			n = Successf("Loaded tab `%s` from `%s`", src.Sheet, src.File)
		case replaced:
			n = Successf("Replaced file: `%s`", src.Key)
		default:
			n = Successf("Loaded file: `%s`", src.Key)
		}
		n.Head = src.Table.Head(HeadRows)
		notices = append(notices, n)

		logger.Debug("source loaded",
			"source", src.Key,
			"columns", src.Table.Width(),
			"rows", src.Table.Len(),
			"replaced", replaced,
		)
	}

	if len(sources) > 0 {
		s.uploaded = true
		s.rev++
		s.regRev++
	}
	return notices
}

// Reconcile computes the view for the current inputs. The result is cached
// and reused until the registry, a choice, or the committed table changes.
func (s *Session) Reconcile(ctx context.Context) *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileLocked(ctx)
}

func (s *Session) reconcileLocked(ctx context.Context) *View {
	if s.viewOkay && s.viewRev == s.rev {
		return s.view
	}

	sources := s.registry.Sources()
	preview, err := Combine(sources)
	if err != nil {
		logging.FromContext(ctx).Error("preview merge failed", "error", err, "sources", len(sources))
	}

	groups := Cluster(preview.Columns)
	present := make(map[string]bool, len(preview.Columns))
	for _, c := range preview.Columns {
		present[c] = true
	}

	views := make([]GroupView, len(groups))
	for i, g := range groups {
		choice := s.resolver.Choice(g.Key)
		selected := choice.Option(g.Key)
		if choice.Kind == ChoiceExisting && !present[choice.Value] {
			selected = g.Key
		}
		views[i] = GroupView{
			Index:    i + 1,
			Key:      g.Key,
			Names:    g.Names,
			Options:  Options(g.Key, preview.Columns),
			Selected: selected,
			Custom:   customText(choice),
			Resolved: s.resolver.Resolve(g, present),
			Samples:  SampleValues(preview, g.Names, SampleLimit),
		}
	}

	summaries := make([]SourceSummary, len(sources))
	for i, src := range sources {
		summaries[i] = SourceSummary{Key: src.Key, Columns: src.Table.Width(), Rows: src.Table.Len()}
	}

	s.view = &View{
		Generation: s.generation,
		Uploaded:   s.uploaded,
		Sources:    summaries,
		Preview:    preview,
		PreviewErr: err,
		Groups:     views,
		RenameMap:  s.resolver.RenameMap(groups, preview.Columns),
		Final:      s.final,
		FinalStale: s.final != nil && s.finalRev != s.regRev,
		LastApply:  s.lastApply,
	}
	s.viewRev = s.rev
	s.viewOkay = true

	logging.FromContext(ctx).Debug("session reconciled",
		"sources", len(sources),
		"preview_columns", preview.Width(),
		"preview_rows", preview.Len(),
		"groups", len(groups),
	)
	return s.view
}

func customText(c Choice) string {
	if c.Kind == ChoiceCustom {
		return c.Value
	}
	return ""
}

// Choose records the naming choice for the group with the given key.
// option must be one of the group's current options.
func (s *Session) Choose(ctx context.Context, key, option, custom string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.reconcileLocked(ctx)
	g, ok := view.Group(key)
	if !ok {
		return &choiceError{err: ErrUnknownGroup, value: key}
	}
	valid := false
	for _, o := range g.Options {
		if o == option {
			valid = true
			break
		}
	}
	if !valid {
		return &choiceError{err: ErrUnknownOption, value: option}
	}

	prev := s.resolver.Choice(key)
	next := s.resolver.Select(key, option, custom)
	if prev != next {
		s.rev++
	}
	return nil
}

// Apply runs the apply-renaming state machine.
//
// Every source is renamed into a staging copy and checked for duplicate
// columns; the first collision aborts before anything is stored. The staged
// tables are then merged and the merged columns checked again. Only when
// both checks pass are the registry and the final table replaced.
func (s *Session) Apply(ctx context.Context) (*ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logging.FromContext(ctx)
	res := &ApplyResult{State: StateIdle}

	if s.registry.Len() == 0 {
		return res, ErrNoTables
	}

	view := s.reconcileLocked(ctx)
	res.RenameMap = view.RenameMap

	finish := func(state ApplyState) {
		res.State = state
		if s.lastApply != state {
			s.lastApply = state
			s.rev++
		}
	}

	res.State = StateRenamingTables
	if view.PreviewErr != nil {
		finish(StateAborted)
		return res, view.PreviewErr
	}

	sources := s.registry.Sources()
	staged := make([]Source, 0, len(sources))
	for _, src := range sources {
		if err := view.RenameMap.Covers(src.Table.Columns); err != nil {
			finish(StateAborted)
			return res, err
		}
		renamed, err := renameSource(src, view.RenameMap)
		if err != nil {
			logger.Warn("rename aborted", "source", src.Key, "error", err)
			finish(StateAborted)
			return res, err
		}
		staged = append(staged, renamed)
	}
	res.State = StateAllTablesRenamed

	res.State = StateMergingFinal
	merged, err := Combine(staged)
	if err != nil {
		logger.Error("final merge failed", "error", err)
		finish(StateRejected)
		return res, err
	}
	res.Final = merged

	if dupes := Duplicates(merged.Columns); len(dupes) > 0 {
		logger.Warn("merged table rejected", "duplicates", dupes)
		finish(StateRejected)
		return res, &FinalCollisionError{Names: dupes}
	}

	s.registry.ReplaceAll(staged)
	s.final = merged
	s.regRev++
	s.finalRev = s.regRev
	finish(StateCommitted)
	s.rev++

	logger.Info("renaming committed",
		"sources", len(staged),
		"columns", merged.Width(),
		"rows", merged.Len(),
	)
	return res, nil
}

// ExportTable returns the table to export: the committed final table, or the
// preview if renaming was never applied.
func (s *Session) ExportTable(ctx context.Context) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.reconcileLocked(ctx).ExportTable()
	if t.Empty() {
		return nil, ErrNothingToExport
	}
	return t, nil
}

// PushNotices queues notices for the next render.
func (s *Session) PushNotices(n ...Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = append(s.flash, n...)
}

// TakeNotices returns and clears the queued notices.
func (s *Session) TakeNotices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.flash
	s.flash = nil
	return out
}

// Reset clears the registry, every choice and the final table in one step,
// and starts a new upload generation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.Clear()
	s.resolver.Reset()
	s.final = nil
	s.finalRev = 0
	s.uploaded = false
	s.generation++
	s.lastApply = StateIdle
	s.flash = nil
	s.rev++
	s.regRev++
}

type choiceError struct {
	err   error
	value string
}

func (e *choiceError) Error() string {
	return e.err.Error() + ": " + e.value
}

func (e *choiceError) Unwrap() error {
	return e.err
}
