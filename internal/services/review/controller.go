package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"omraudit/internal/config"
	"omraudit/internal/domain"
	"omraudit/internal/logging"
	"omraudit/internal/ports"
	"omraudit/internal/services/audits"
)

var (
	ErrNoSelection     = errors.New("no audit item selected")
	ErrNoBatch         = errors.New("no batch selected")
	ErrNoNeighbor      = errors.New("no item in that direction")
	ErrNoPrompt        = errors.New("no pending navigation")
	ErrCleanupNotReady = errors.New("cleanup not confirmed yet")
	ErrBusy            = errors.New("another operation is in progress")
)

type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeNavigated
	OutcomePrompted
	OutcomeChanged
)

// Choice answers the unsaved-changes prompt.
type Choice int

const (
	ChoiceSave Choice = iota
	ChoiceDiscard
	ChoiceCancel
)

type SortMode int

const (
	SortPriority SortMode = iota
	SortServer
)

type Options struct {
	ListPageSize int
	GridPageSize int
	// ResolveImage maps a backend image reference to a displayable URL.
	ResolveImage func(string) string
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Controller owns the state of one review session: the active batch, the
// visible list, the selected item and its draft decision.
type Controller struct {
	audits       ports.Audits
	notify       ports.Notifier
	sink         ports.FileSink
	listPageSize int
	gridPageSize int
	resolveImage func(string) string
	clock        clockwork.Clock
	log          *slog.Logger

	mu         sync.Mutex
	batchID    string
	filter     domain.AuditStatus
	search     string
	sortMode   SortMode
	listResp   domain.AuditListResponse
	visible    []domain.AuditListItem
	selectedID int
	detail     *domain.AuditDetail

	draft         map[string]string
	baseline      map[string]string
	draftNotes    string
	baselineNotes string

	prompt     *navigation
	saving     bool
	exporting  bool
	textFocus  bool
	gridPage   int
	focused    string
	issuesOnly bool
	viewer     Viewer
	meta       *domain.ExportMetadata
	cleanup    *CleanupGate
}

// navigation is the action waiting on the unsaved-changes prompt: a move to
// target, or a filter or search change.
type navigation struct {
	target int
	filter *domain.AuditStatus
	search *string
}

func New(a ports.Audits, notify ports.Notifier, sink ports.FileSink, opts Options) *Controller {
	if opts.GridPageSize < 1 {
		opts.GridPageSize = config.DefaultGridPageSize
	}
	if opts.ResolveImage == nil {
		opts.ResolveImage = func(s string) string { return s }
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Controller{
		audits:       a,
		notify:       notify,
		sink:         sink,
		listPageSize: config.ClampPageSize(opts.ListPageSize),
		gridPageSize: opts.GridPageSize,
		resolveImage: opts.ResolveImage,
		clock:        opts.Clock,
		log:          opts.Logger,
		filter:       domain.StatusPending,
	}
}

// SetBatch makes batchID the active batch and selects firstID, or the first
// visible item when firstID is zero.
func (c *Controller) SetBatch(ctx context.Context, batchID string, firstID int) error {
	c.mu.Lock()
	c.resetLocked()
	c.batchID = batchID
	c.selectedID = firstID
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	if c.selectedID == 0 && len(c.visible) > 0 {
		c.selectedID = c.visible[0].ID
	}
	id := c.selectedID
	load := id != 0 && (c.detail == nil || c.detail.ID != id)
	c.mu.Unlock()
	if load {
		if err := c.loadDetail(ctx, id); err != nil {
			return err
		}
	}
	c.refreshMeta(ctx)
	return nil
}

// ClearBatch forgets the active batch together with selection, filter and
// draft state.
func (c *Controller) ClearBatch() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

func (c *Controller) resetLocked() {
	c.batchID = ""
	c.filter = domain.StatusPending
	c.search = ""
	c.listResp = domain.AuditListResponse{}
	c.visible = nil
	c.selectedID = 0
	c.clearDetailLocked()
	c.prompt = nil
	c.meta = nil
	c.cleanup = nil
}

func (c *Controller) clearDetailLocked() {
	c.detail = nil
	c.draft = map[string]string{}
	c.baseline = map[string]string{}
	c.draftNotes = ""
	c.baselineNotes = ""
	c.viewer = Viewer{}
	c.gridPage = 0
	c.focused = ""
}

// SetFilter changes the status filter; empty shows every status. When the
// draft is dirty and the new list would drop the selected item, the change
// waits on the unsaved-changes prompt instead.
func (c *Controller) SetFilter(ctx context.Context, status domain.AuditStatus) (Outcome, error) {
	c.mu.Lock()
	batch := c.batchID
	c.mu.Unlock()

	resp, err := c.fetchList(ctx, batch, status)
	if err != nil {
		return OutcomeIgnored, err
	}

	c.mu.Lock()
	if c.batchID != batch {
		c.mu.Unlock()
		return OutcomeIgnored, nil
	}
	if c.hasChangesLocked() && !listed(resp.Items, c.search, c.selectedID) {
		c.prompt = &navigation{filter: &status}
		c.mu.Unlock()
		return OutcomePrompted, nil
	}
	c.filter = status
	c.listResp = resp
	return c.reselect(ctx)
}

// SetSearch filters the visible list by file id substring. Like SetFilter it
// asks first when the search would hide an item with unsaved changes.
func (c *Controller) SetSearch(ctx context.Context, q string) (Outcome, error) {
	q = strings.TrimSpace(q)
	c.mu.Lock()
	if c.hasChangesLocked() && !listed(c.listResp.Items, q, c.selectedID) {
		c.prompt = &navigation{search: &q}
		c.mu.Unlock()
		return OutcomePrompted, nil
	}
	c.search = q
	return c.reselect(ctx)
}

// reselect recomputes the visible list and loads the detail of the new
// selection, if it changed. It releases c.mu.
func (c *Controller) reselect(ctx context.Context) (Outcome, error) {
	c.recomputeLocked()
	load, id := c.reselectLocked()
	c.mu.Unlock()
	if load {
		return OutcomeNavigated, c.loadDetail(ctx, id)
	}
	return OutcomeChanged, nil
}

// listed reports whether item id survives a file id search over items.
func listed(items []domain.AuditListItem, search string, id int) bool {
	needle := strings.ToLower(search)
	for _, it := range items {
		if it.ID == id {
			return strings.Contains(strings.ToLower(it.FileID), needle)
		}
	}
	return false
}

func (c *Controller) ToggleSort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sortMode == SortPriority {
		c.sortMode = SortServer
	} else {
		c.sortMode = SortPriority
	}
	c.recomputeLocked()
}

// Refresh refetches the list for the active batch. When the selected item
// is no longer visible the first visible item is selected instead, or none.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	batch, filter := c.batchID, c.filter
	c.mu.Unlock()

	resp, err := c.fetchList(ctx, batch, filter)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.batchID != batch {
		c.mu.Unlock()
		return nil
	}
	c.listResp = resp
	_, err = c.reselect(ctx)
	return err
}

func (c *Controller) fetchList(ctx context.Context, batch string, status domain.AuditStatus) (domain.AuditListResponse, error) {
	if batch == "" {
		return domain.AuditListResponse{}, nil
	}
	resp, err := c.audits.List(ctx, domain.ListParams{BatchID: batch, Status: status, PageSize: c.listPageSize})
	if err != nil {
		return resp, fmt.Errorf("list audits: %w", err)
	}
	return resp, nil
}

func (c *Controller) recomputeLocked() {
	items := c.listResp.Items
	if c.search != "" {
		needle := strings.ToLower(c.search)
		filtered := make([]domain.AuditListItem, 0, len(items))
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.FileID), needle) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	if c.sortMode == SortPriority {
		items = domain.SortByPriority(items)
	} else {
		items = append([]domain.AuditListItem(nil), items...)
	}
	c.visible = items
}

// reselectLocked keeps the selection inside the visible list and reports
// whether a detail has to be loaded for the (possibly new) selection.
func (c *Controller) reselectLocked() (bool, int) {
	if c.selectedID != 0 && c.indexLocked() < 0 {
		c.selectedID = 0
		if len(c.visible) > 0 {
			c.selectedID = c.visible[0].ID
		}
	}
	if c.selectedID == 0 {
		if c.detail != nil {
			c.clearDetailLocked()
		}
		return false, 0
	}
	if c.detail == nil || c.detail.ID != c.selectedID {
		c.clearDetailLocked()
		return true, c.selectedID
	}
	return false, 0
}

func (c *Controller) indexLocked() int {
	for i, it := range c.visible {
		if it.ID == c.selectedID {
			return i
		}
	}
	return -1
}

func (c *Controller) loadDetail(ctx context.Context, id int) error {
	d, err := c.audits.Detail(ctx, id)
	if err != nil {
		return fmt.Errorf("load audit %d: %w", id, err)
	}
	c.mu.Lock()
	if c.selectedID == id {
		c.applyDetailLocked(d)
	}
	c.mu.Unlock()
	return nil
}

// applyDetailLocked replaces draft and baseline with the server's values.
func (c *Controller) applyDetailLocked(d domain.AuditDetail) {
	sameItem := c.detail != nil && c.detail.ID == d.ID
	variant := c.viewer.Variant
	c.detail = &d
	c.draft = initialAnswers(d)
	c.baseline = maps.Clone(c.draft)
	notes := ""
	if d.Notes != nil {
		notes = *d.Notes
	}
	c.draftNotes = domain.NormalizeRaw(notes)
	c.baselineNotes = c.draftNotes
	c.viewer = newViewer(c.resolveImage, d.ImageURL, d.MarkedImageURL)
	if sameItem {
		if variant == VariantMarked && c.viewer.Marked == "" {
			variant = VariantOriginal
		}
		c.viewer.Variant = variant
	} else {
		c.gridPage = 0
		c.focused = ""
	}
}

func initialAnswers(d domain.AuditDetail) map[string]string {
	out := make(map[string]string, len(d.Responses))
	for _, r := range d.Responses {
		out[r.Question] = domain.NormalizeAnswer(r.Effective())
	}
	return out
}

// HasChanges reports whether the draft differs from the loaded decision.
func (c *Controller) HasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasChangesLocked()
}

func (c *Controller) hasChangesLocked() bool {
	if c.detail == nil {
		return false
	}
	if domain.NormalizeRaw(c.draftNotes) != domain.NormalizeRaw(c.baselineNotes) {
		return true
	}
	for q, v := range c.draft {
		if domain.NormalizeAnswer(v) != domain.NormalizeAnswer(c.baseline[q]) {
			return true
		}
	}
	for q, v := range c.baseline {
		if _, ok := c.draft[q]; !ok && domain.NormalizeAnswer(v) != domain.Blank {
			return true
		}
	}
	return false
}

// Select moves to item id, asking first when the draft has unsaved changes.
func (c *Controller) Select(ctx context.Context, id int) (Outcome, error) {
	c.mu.Lock()
	if id == c.selectedID {
		c.mu.Unlock()
		return OutcomeIgnored, nil
	}
	return c.guardLocked(ctx, id)
}

func (c *Controller) Prev(ctx context.Context) (Outcome, error) { return c.step(ctx, -1) }

func (c *Controller) Next(ctx context.Context) (Outcome, error) { return c.step(ctx, 1) }

func (c *Controller) step(ctx context.Context, delta int) (Outcome, error) {
	c.mu.Lock()
	idx := c.indexLocked()
	target := idx + delta
	if idx < 0 || target < 0 || target >= len(c.visible) {
		c.mu.Unlock()
		return OutcomeIgnored, ErrNoNeighbor
	}
	return c.guardLocked(ctx, c.visible[target].ID)
}

// guardLocked runs the navigation now, or stores it behind the
// unsaved-changes prompt. It releases c.mu.
func (c *Controller) guardLocked(ctx context.Context, target int) (Outcome, error) {
	if c.hasChangesLocked() {
		c.prompt = &navigation{target: target}
		c.mu.Unlock()
		return OutcomePrompted, nil
	}
	c.prompt = nil
	c.mu.Unlock()
	return OutcomeNavigated, c.navigate(ctx, target)
}

func (c *Controller) navigate(ctx context.Context, target int) error {
	c.mu.Lock()
	c.selectedID = target
	c.clearDetailLocked()
	c.mu.Unlock()
	if err := c.loadDetail(ctx, target); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// PromptOpen reports whether a navigation waits on the unsaved-changes prompt.
func (c *Controller) PromptOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt != nil
}

// Resolve answers the unsaved-changes prompt. On a failed save the prompt
// stays open and the deferred action is kept.
func (c *Controller) Resolve(ctx context.Context, choice Choice) (Outcome, error) {
	c.mu.Lock()
	if c.prompt == nil {
		c.mu.Unlock()
		return OutcomeIgnored, ErrNoPrompt
	}
	nav := *c.prompt
	switch choice {
	case ChoiceCancel:
		c.prompt = nil
		c.mu.Unlock()
		return OutcomeIgnored, nil
	case ChoiceDiscard:
		c.prompt = nil
		c.draft = maps.Clone(c.baseline)
		c.draftNotes = c.baselineNotes
		c.mu.Unlock()
		return OutcomeNavigated, c.proceed(ctx, nav)
	}
	c.mu.Unlock()

	if err := c.Save(ctx); err != nil {
		return OutcomePrompted, err
	}
	c.mu.Lock()
	c.prompt = nil
	c.mu.Unlock()
	return OutcomeNavigated, c.proceed(ctx, nav)
}

// proceed runs an action that waited on the prompt.
func (c *Controller) proceed(ctx context.Context, nav navigation) error {
	switch {
	case nav.filter != nil:
		c.mu.Lock()
		c.filter = *nav.filter
		c.mu.Unlock()
		return c.Refresh(ctx)
	case nav.search != nil:
		c.mu.Lock()
		c.search = *nav.search
		_, err := c.reselect(ctx)
		return err
	}
	return c.navigate(ctx, nav.target)
}

func (c *Controller) SetAnswer(question, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil {
		return
	}
	c.draft[question] = value
}

func (c *Controller) ClearAnswer(question string) { c.SetAnswer(question, "") }

func (c *Controller) SetNotes(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil {
		return
	}
	c.draftNotes = text
}

func (c *Controller) Notes() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draftNotes
}

// Payload builds the decision for the current draft.
func (c *Controller) Payload() domain.DecisionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloadLocked()
}

func (c *Controller) payloadLocked() domain.DecisionRequest {
	req := domain.DecisionRequest{Answers: domain.NormalizeAnswers(c.draft)}
	if notes := strings.TrimSpace(c.draftNotes); notes != "" {
		req.Notes = &notes
	}
	return req
}

// Save submits the draft. Only one save runs at a time; on success draft and
// baseline both take the server's response and the list and export
// metadata are refreshed.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.detail == nil {
		c.mu.Unlock()
		c.notify.Error("Nothing to save", ErrNoSelection.Error())
		return ErrNoSelection
	}
	if c.saving {
		c.mu.Unlock()
		return audits.ErrSubmitInFlight
	}
	id := c.detail.ID
	req := c.payloadLocked()
	c.saving = true
	c.mu.Unlock()

	detail, err := c.audits.SubmitDecision(ctx, id, req)

	c.mu.Lock()
	c.saving = false
	if err != nil {
		c.mu.Unlock()
		c.notify.Error("Could not save the decision", err.Error())
		return err
	}
	if c.selectedID == id {
		c.applyDetailLocked(detail)
	}
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Refresh(gctx) })
	g.Go(func() error { c.refreshMeta(gctx); return nil })
	if err := g.Wait(); err != nil {
		c.log.Warn("refresh after save failed", "audit", id, "err", err)
	}
	c.notify.Success("Decision saved", fmt.Sprintf("%s is now %s", detail.FileID, detail.Status))
	return nil
}

// Saving reports whether a save is outstanding.
func (c *Controller) Saving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saving
}

func (c *Controller) refreshMeta(ctx context.Context) {
	c.mu.Lock()
	batch := c.batchID
	c.mu.Unlock()
	if batch == "" {
		return
	}
	meta, err := c.audits.ExportMetadata(ctx, batch)
	if err != nil {
		c.log.Debug("export metadata unavailable", "batch", batch, "err", err)
	}
	c.mu.Lock()
	if c.batchID == batch {
		c.meta = meta
	}
	c.mu.Unlock()
}

func (c *Controller) SetTextFocus(v bool) {
	c.mu.Lock()
	c.textFocus = v
	c.mu.Unlock()
}

func (c *Controller) ToggleIssuesOnly() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issuesOnly = !c.issuesOnly
	c.gridPage = 0
	c.focused = ""
}

func (c *Controller) ToggleImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewer.Toggle()
}

// SetGridPage moves the question grid to page (zero-based, clamped).
func (c *Controller) SetGridPage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.gridLocked()
	c.gridPage = clampPage(page, g.Pages)
	c.focused = ""
}

// FocusQuestion focuses a question card, switching to its page.
func (c *Controller) FocusQuestion(question string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil {
		return false
	}
	ordered := orderResponses(c.detail.Responses, issueKinds(c.detail.Issues), c.issuesOnly)
	for i, r := range ordered {
		if r.Question == question {
			c.gridPage = i / c.gridPageSize
			c.focused = question
			return true
		}
	}
	return false
}

func (c *Controller) moveFocusLocked(delta int) {
	if c.detail == nil {
		return
	}
	ordered := orderResponses(c.detail.Responses, issueKinds(c.detail.Issues), c.issuesOnly)
	if len(ordered) == 0 {
		return
	}
	current := c.gridLocked().FocusedQuestion()
	idx := 0
	for i, r := range ordered {
		if r.Question == current {
			idx = i
			break
		}
	}
	idx = max(0, min(len(ordered)-1, idx+delta))
	c.focused = ordered[idx].Question
	c.gridPage = idx / c.gridPageSize
}

func (c *Controller) gridLocked() Grid {
	return buildGrid(c.detail, c.draft, c.issuesOnly, c.gridPage, c.gridPageSize, c.focused)
}
