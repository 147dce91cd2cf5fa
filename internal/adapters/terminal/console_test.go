package terminal

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"

	"omraudit/internal/domain"
	"omraudit/internal/services/review"
)

func init() { color.NoColor = true }

func strp(s string) *string { return &s }

type fakeAudits struct {
	mu        sync.Mutex
	details   map[int]domain.AuditDetail
	submitted []domain.DecisionRequest
	cleaned   []string
	// gate, when set, holds SubmitDecision until it is closed.
	gate chan struct{}
}

func (f *fakeAudits) List(_ context.Context, p domain.ListParams) (domain.AuditListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := domain.AuditListResponse{Items: []domain.AuditListItem{}}
	for id := 1; id <= len(f.details); id++ {
		d, ok := f.details[id]
		if !ok || d.BatchID != p.BatchID || (p.Status != "" && d.Status != p.Status) {
			continue
		}
		resp.Items = append(resp.Items, d.ListItem())
	}
	resp.Total = len(resp.Items)
	return resp, nil
}

func (f *fakeAudits) Detail(_ context.Context, id int) (domain.AuditDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok {
		return d, fmt.Errorf("audit %d not found", id)
	}
	return d, nil
}

func (f *fakeAudits) SubmitDecision(_ context.Context, id int, req domain.DecisionRequest) (domain.AuditDetail, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	d := f.details[id]
	for i, r := range d.Responses {
		if v, ok := req.Answers[r.Question]; ok {
			d.Responses[i].CorrectedValue = strp(v)
		}
	}
	d.Notes = req.Notes
	d.Status = domain.StatusResolved
	f.details[id] = d
	return d, nil
}

func (f *fakeAudits) ExportFile(context.Context, string) (domain.Blob, error) {
	return domain.Blob{Data: []byte("file_id\n")}, nil
}

func (f *fakeAudits) ExportMetadata(context.Context, string) (*domain.ExportMetadata, error) {
	return nil, nil
}

func (f *fakeAudits) Cleanup(_ context.Context, batchID string) (domain.CleanupResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, batchID)
	return domain.CleanupResponse{BatchID: batchID, Status: domain.BatchCleaned}, nil
}

type nopSink struct{}

func (nopSink) Save(_ context.Context, name string, _ []byte) (string, error) { return name, nil }

type fixture struct {
	console *Console
	ctrl    *review.Controller
	audits  *fakeAudits
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	fa := &fakeAudits{details: map[int]domain.AuditDetail{}}
	for id, name := range []string{"a.png", "b.png"} {
		fa.details[id+1] = domain.AuditDetail{
			ID: id + 1, FileID: name, BatchID: "b1", Template: "default",
			Status: domain.StatusPending,
			Issues: domain.ParseIssues("q1: multi"),
			Responses: []domain.AuditResponse{
				{Question: "q1", ReadValue: strp("AB")},
				{Question: "q2", ReadValue: strp("C")},
			},
			ImageURL:       strp("http://x/static/b1/original/" + name),
			MarkedImageURL: strp("http://x/static/b1/marked/" + name),
		}
	}
	toasts := NewToasts(clock)
	ctrl := review.New(fa, toasts, nopSink{}, review.Options{Clock: clock})
	if err := ctrl.SetBatch(context.Background(), "b1", 0); err != nil {
		t.Fatal(err)
	}
	c := New(ctrl, Options{Toasts: toasts, Clock: clock})
	return fixture{console: c, ctrl: ctrl, audits: fa, clock: clock}
}

func (f fixture) press(t *testing.T, raw string) {
	t.Helper()
	for _, k := range decodeKeys([]byte(raw)) {
		if f.console.handle(context.Background(), k) {
			t.Fatalf("unexpected quit on %q", raw)
		}
	}
}

func (f fixture) wait(t *testing.T) {
	t.Helper()
	select {
	case res := <-f.console.done:
		f.console.finish(res)
	case <-time.After(2 * time.Second):
		t.Fatal("background task did not finish")
	}
}

func TestNotesAnswerAndSave(t *testing.T) {
	f := newFixture(t)
	f.press(t, "\x0echecked\x7f\x7fed\r")
	if got := f.ctrl.Notes(); got != "checked" {
		t.Fatalf("notes = %q", got)
	}
	f.press(t, "b")
	if !f.ctrl.HasChanges() {
		t.Fatal("answer key did not change the draft")
	}
	f.press(t, "\x13")
	if f.console.busy != "saving" {
		t.Fatalf("busy = %q", f.console.busy)
	}
	f.wait(t)

	if len(f.audits.submitted) != 1 {
		t.Fatalf("submitted = %+v", f.audits.submitted)
	}
	req := f.audits.submitted[0]
	if req.Answers["q1"] != "B" || req.Answers["q2"] != "C" || *req.Notes != "checked" {
		t.Fatalf("decision = %+v", req)
	}
	if toasts := f.console.toasts.Active(); len(toasts) != 1 || toasts[0].Title != "Decision saved" {
		t.Fatalf("toasts = %+v", toasts)
	}
}

func TestUnsavedChangesPrompt(t *testing.T) {
	f := newFixture(t)
	f.press(t, "a\x1b[C")
	f.wait(t)
	if !f.ctrl.PromptOpen() {
		t.Fatal("navigating with a dirty draft did not prompt")
	}
	f.press(t, "x") // ignored while the prompt is open
	f.press(t, "c")
	if f.ctrl.PromptOpen() || f.ctrl.View().SelectedID != 1 {
		t.Fatalf("cancel: %+v", f.ctrl.View())
	}
	f.press(t, "\x1b[C")
	f.wait(t)
	f.press(t, "d")
	f.wait(t)
	if v := f.ctrl.View(); v.SelectedID != 2 || v.Dirty {
		t.Fatalf("discard: selected %d dirty %v", v.SelectedID, v.Dirty)
	}
	if len(f.audits.submitted) != 0 {
		t.Fatal("discard submitted a decision")
	}
}

func TestPromptIgnoresKeysWhileSaving(t *testing.T) {
	f := newFixture(t)
	f.audits.gate = make(chan struct{})
	f.press(t, "a\x1b[C")
	f.wait(t)
	f.press(t, "\r")
	if f.console.busy != "saving" {
		t.Fatalf("Enter did not save, busy = %q", f.console.busy)
	}
	f.press(t, "d")
	if !f.ctrl.PromptOpen() {
		t.Fatal("discard ran while the save was still running")
	}
	close(f.audits.gate)
	f.wait(t)
	if v := f.ctrl.View(); v.SelectedID != 2 || v.Prompt || v.Dirty {
		t.Fatalf("after save: selected %d prompt %v dirty %v", v.SelectedID, v.Prompt, v.Dirty)
	}
	if len(f.audits.submitted) != 1 {
		t.Fatalf("submitted = %d", len(f.audits.submitted))
	}
}

func TestSearchAndFilter(t *testing.T) {
	f := newFixture(t)
	f.press(t, "/b.p\r")
	if f.console.busy != "loading" {
		t.Fatalf("search ran on the loop, busy = %q", f.console.busy)
	}
	f.wait(t)
	if v := f.ctrl.View(); v.Search != "b.p" || len(v.Items) != 1 || v.SelectedID != 2 {
		t.Fatalf("search view = %+v", v)
	}
	f.press(t, "/\x1b")
	if f.console.mode != modeReview || f.ctrl.View().Search != "b.p" {
		t.Fatal("escape changed the search")
	}
	f.press(t, "\x06")
	f.wait(t)
	if got := f.ctrl.View().Filter; got != domain.StatusResolved {
		t.Fatalf("filter = %q", got)
	}
	for range 2 {
		f.press(t, "\x06")
		f.wait(t)
	}
	if got := f.ctrl.View().Filter; got != "" {
		t.Fatalf("filter after full cycle = %q", got)
	}
}

func TestFilterChangeAsksAboutUnsavedDraft(t *testing.T) {
	f := newFixture(t)
	f.press(t, "a\x06")
	f.wait(t)
	if !f.ctrl.PromptOpen() || !f.ctrl.HasChanges() || f.ctrl.View().Filter != domain.StatusPending {
		t.Fatalf("filter change dropped the draft: %+v", f.ctrl.View())
	}
	f.press(t, "d")
	f.wait(t)
	if v := f.ctrl.View(); v.Filter != domain.StatusResolved || v.SelectedID != 0 || v.Dirty {
		t.Fatalf("after discard: filter %q selected %d dirty %v", v.Filter, v.SelectedID, v.Dirty)
	}
}

func TestCleanupDialog(t *testing.T) {
	f := newFixture(t)
	f.press(t, "\x18")
	if f.ctrl.Cleanup() == nil {
		t.Fatal("Ctrl-X did not open the cleanup dialog")
	}
	f.press(t, "\r")
	if f.console.busy != "" {
		t.Fatal("cleanup started before acknowledgement")
	}
	f.press(t, " ")
	f.clock.Advance(review.CleanupCountdown)
	f.press(t, "\r")
	f.wait(t)
	if len(f.audits.cleaned) != 1 || f.audits.cleaned[0] != "b1" {
		t.Fatalf("cleaned = %v", f.audits.cleaned)
	}
	if v := f.ctrl.View(); v.BatchID != "" || v.Cleanup != nil {
		t.Fatalf("after cleanup = %+v", v)
	}
}

func TestRunDrawsAndQuits(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	if err := f.console.Run(context.Background(), iotest.OneByteReader(strings.NewReader("?\x11")), &out); err != nil {
		t.Fatal(err)
	}
	screen := out.String()
	for _, want := range []string{"OMR review", "batch b1", "a.png", "card 1 of 2", "Shortcuts", "Ctrl-S"} {
		if !strings.Contains(screen, want) {
			t.Errorf("screen lacks %q", want)
		}
	}
}

func TestRunJoinsSplitArrow(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	in := iotest.OneByteReader(strings.NewReader("\x1b[D\x11"))
	if err := f.console.Run(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}
	if f.ctrl.HasChanges() {
		t.Fatalf("an arrow read in pieces changed an answer: %+v", f.ctrl.Payload())
	}
}

func TestRenderCard(t *testing.T) {
	got := cardLine(review.Card{Question: "q3", Read: "", Value: domain.Blank, Edited: true, HasIssue: true, IssueKind: domain.IssueUnmarked, Focused: true})
	want := "> q3     .....   read: - • current: blank  unmarked  edited"
	if got != want {
		t.Fatalf("cardLine = %q\nwant       %q", got, want)
	}
}
