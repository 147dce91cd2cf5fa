package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"omraudit/internal/domain"
	"omraudit/internal/logging"
	"omraudit/internal/services/review"
	"omraudit/internal/services/upload"
)

type mode int

const (
	modeReview mode = iota
	modeNotes
	modeSearch
	modeUpload
)

// escapeWait is how long a lone ESC is held back in case the rest of an
// escape sequence arrives in a later read.
const escapeWait = 50 * time.Millisecond

var filterCycle = []domain.AuditStatus{domain.StatusPending, domain.StatusResolved, domain.StatusReopened, ""}

type Uploader interface {
	Submit(ctx context.Context, up domain.Upload) (domain.ProcessResponse, error)
}

type TemplateSource interface {
	Templates(ctx context.Context) ([]string, error)
}

type uploadForm struct {
	templates []string
	selected  int
}

func (f uploadForm) Template() string {
	if len(f.templates) == 0 {
		return ""
	}
	return f.templates[f.selected]
}

func (f *uploadForm) cycle(delta int) {
	if n := len(f.templates); n > 0 {
		f.selected = (f.selected + delta + n) % n
	}
}

type Options struct {
	Toasts    *Toasts
	Uploader  Uploader
	Templates TemplateSource
	// Size reports the terminal's width and height.
	Size   func() (int, int)
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Console is the interactive review screen. All state is owned by the Run
// goroutine; background work reports back through done.
type Console struct {
	ctrl      *review.Controller
	toasts    *Toasts
	uploader  Uploader
	templates TemplateSource
	size      func() (int, int)
	clock     clockwork.Clock
	log       *slog.Logger

	mode       mode
	input      []rune
	form       uploadForm
	busy       string
	showLegend bool
	done       chan taskResult
}

type taskResult struct {
	label string
	err   error
	// apply runs on the Run goroutine once the task is done.
	apply func()
}

func New(ctrl *review.Controller, opts Options) *Console {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Toasts == nil {
		opts.Toasts = NewToasts(opts.Clock)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Size == nil {
		opts.Size = func() (int, int) { return 100, 40 }
	}
	return &Console{
		ctrl:      ctrl,
		toasts:    opts.Toasts,
		uploader:  opts.Uploader,
		templates: opts.Templates,
		size:      opts.Size,
		clock:     opts.Clock,
		log:       opts.Logger,
		done:      make(chan taskResult, 4),
	}
}

// Run draws the console on out and processes key presses from in until the
// auditor quits, in reaches EOF or ctx is cancelled.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				select {
				case chunks <- append([]byte(nil), buf[:n]...):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	var (
		keys     keyReader
		escTimer clockwork.Timer
		escC     <-chan time.Time
	)
	stopEsc := func() {
		if escTimer != nil {
			escTimer.Stop()
			escTimer, escC = nil, nil
		}
	}
	defer stopEsc()

	c.draw(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read keys: %w", err)
		case chunk := <-chunks:
			stopEsc()
			if c.handleAll(ctx, keys.feed(chunk)) {
				return nil
			}
			if keys.waiting() {
				escTimer = c.clock.NewTimer(escapeWait)
				escC = escTimer.Chan()
			}
		case <-escC:
			escTimer, escC = nil, nil
			if c.handleAll(ctx, keys.flush()) {
				return nil
			}
		case <-ticker.Chan():
		case res := <-c.done:
			c.finish(res)
		}
		c.draw(out)
	}
}

func (c *Console) handleAll(ctx context.Context, keys []review.Key) bool {
	for _, k := range keys {
		if c.handle(ctx, k) {
			return true
		}
	}
	return false
}

func (c *Console) draw(out io.Writer) {
	_, height := c.size()
	lines := render(c.screen(height))
	fmt.Fprint(out, "\x1b[H\x1b[2J"+strings.Join(lines, "\r\n"))
}

func (c *Console) screen(height int) screen {
	return screen{
		View:       c.ctrl.View(),
		Toasts:     c.toasts.Active(),
		Mode:       c.mode,
		Input:      string(c.input),
		Upload:     c.form,
		Busy:       c.busy,
		ShowLegend: c.showLegend,
		Height:     height,
	}
}

// async runs fn off the loop. Only one background task runs at a time.
func (c *Console) async(ctx context.Context, label string, fn func(context.Context) error) {
	c.asyncApply(ctx, label, func(ctx context.Context) (func(), error) { return nil, fn(ctx) })
}

// asyncApply is async for tasks whose result changes console state; the
// returned func is applied by finish.
func (c *Console) asyncApply(ctx context.Context, label string, fn func(context.Context) (func(), error)) {
	if c.busy != "" {
		c.toasts.Error("Busy", c.busy+" is still running")
		return
	}
	c.busy = label
	go func() {
		apply, err := fn(ctx)
		select {
		case c.done <- taskResult{label: label, err: err, apply: apply}:
		case <-ctx.Done():
		}
	}()
}

func (c *Console) finish(res taskResult) {
	c.busy = ""
	if res.err != nil {
		c.log.Warn("task failed", "task", res.label, "err", res.err)
	}
	if res.apply != nil {
		res.apply()
	}
}

// handle applies one key press and reports whether the console should quit.
func (c *Console) handle(ctx context.Context, k review.Key) bool {
	if k.Code == review.KeyCtrl && (k.Rune == 'q' || k.Rune == 'c') {
		return true
	}
	switch c.mode {
	case modeNotes, modeSearch:
		c.handleText(ctx, k)
		return false
	case modeUpload:
		c.handleUpload(ctx, k)
		return false
	}
	if gate := c.ctrl.Cleanup(); gate != nil {
		c.handleCleanup(ctx, gate, k)
		return false
	}
	if c.ctrl.PromptOpen() {
		c.handlePrompt(ctx, k)
		return false
	}

	switch {
	case k.Code == review.KeyCtrl:
		c.handleCommand(ctx, k.Rune)
	case k.Code == review.KeyTab:
		c.ctrl.ToggleIssuesOnly()
	case k == review.RuneKey('?'):
		c.showLegend = !c.showLegend
	case k == review.RuneKey('/'):
		c.openText(modeSearch, c.ctrl.View().Search)
	case k.Code == review.KeyLeft || k.Code == review.KeyRight:
		if c.busy != "" {
			return false
		}
		c.async(ctx, "loading", func(ctx context.Context) error {
			_, err := c.ctrl.HandleKey(ctx, k)
			if err != nil {
				c.toasts.Error("Navigation failed", err.Error())
			}
			return err
		})
	default:
		if _, err := c.ctrl.HandleKey(ctx, k); err != nil {
			c.toasts.Error("Navigation failed", err.Error())
		}
	}
	return false
}

func (c *Console) handleCommand(ctx context.Context, r rune) {
	switch r {
	case 's':
		if c.ctrl.Saving() {
			return
		}
		c.async(ctx, "saving", c.ctrl.Save)
	case 'n':
		if c.ctrl.View().Detail == nil {
			c.toasts.Error("No item selected", review.ErrNoSelection.Error())
			return
		}
		c.openText(modeNotes, c.ctrl.Notes())
	case 'e':
		c.async(ctx, "exporting", func(ctx context.Context) error {
			_, err := c.ctrl.Export(ctx)
			return err
		})
	case 'x':
		_, _ = c.ctrl.OpenCleanup()
	case 'o':
		c.ctrl.ToggleImage()
	case 'f':
		c.cycleFilter(ctx)
	case 't':
		c.ctrl.ToggleSort()
	case 'r':
		c.async(ctx, "refreshing", func(ctx context.Context) error {
			err := c.ctrl.Refresh(ctx)
			if err != nil {
				c.toasts.Error("Refresh failed", err.Error())
			}
			return err
		})
	case 'u':
		c.openUpload(ctx)
	}
}

func (c *Console) cycleFilter(ctx context.Context) {
	current := c.ctrl.View().Filter
	next := filterCycle[0]
	for i, st := range filterCycle {
		if st == current {
			next = filterCycle[(i+1)%len(filterCycle)]
			break
		}
	}
	c.async(ctx, "loading", func(ctx context.Context) error {
		_, err := c.ctrl.SetFilter(ctx, next)
		if err != nil {
			c.toasts.Error("Could not load the list", err.Error())
		}
		return err
	})
}

func (c *Console) openText(m mode, initial string) {
	c.mode = m
	c.input = []rune(initial)
	c.ctrl.SetTextFocus(true)
}

func (c *Console) closeText() {
	c.mode = modeReview
	c.input = nil
	c.ctrl.SetTextFocus(false)
}

func (c *Console) handleText(ctx context.Context, k review.Key) {
	switch k.Code {
	case review.KeyEsc:
		c.closeText()
	case review.KeyEnter:
		text := string(c.input)
		m := c.mode
		c.closeText()
		if m == modeNotes {
			c.ctrl.SetNotes(text)
			return
		}
		c.async(ctx, "loading", func(ctx context.Context) error {
			_, err := c.ctrl.SetSearch(ctx, text)
			if err != nil {
				c.toasts.Error("Search failed", err.Error())
			}
			return err
		})
	default:
		c.input = editInput(c.input, k)
	}
}

// editInput applies a printable rune or a backspace to a text field.
func editInput(input []rune, k review.Key) []rune {
	switch k.Code {
	case review.KeyBackspace:
		if len(input) > 0 {
			return input[:len(input)-1]
		}
	case review.KeyRune:
		return append(input, k.Rune)
	}
	return input
}

// handlePrompt answers the unsaved-changes prompt. Keys are ignored while
// an answer is still being carried out.
func (c *Console) handlePrompt(ctx context.Context, k review.Key) {
	if c.busy != "" {
		return
	}
	var choice review.Choice
	label := "loading"
	switch {
	case k == review.RuneKey('s') || k.Code == review.KeyEnter:
		choice, label = review.ChoiceSave, "saving"
	case k == review.RuneKey('d'):
		choice = review.ChoiceDiscard
	case k == review.RuneKey('c') || k.Code == review.KeyEsc:
		if _, err := c.ctrl.Resolve(ctx, review.ChoiceCancel); err != nil {
			c.toasts.Error("Navigation failed", err.Error())
		}
		return
	default:
		return
	}
	c.async(ctx, label, func(ctx context.Context) error {
		_, err := c.ctrl.Resolve(ctx, choice)
		if err != nil && choice == review.ChoiceDiscard {
			c.toasts.Error("Navigation failed", err.Error())
		}
		return err
	})
}

func (c *Console) handleCleanup(ctx context.Context, gate *review.CleanupGate, k review.Key) {
	switch {
	case k.Code == review.KeyEsc:
		c.ctrl.CancelCleanup()
	case k == review.RuneKey(' '):
		gate.ToggleAcknowledged()
	case k.Code == review.KeyEnter:
		if !gate.Ready() {
			return
		}
		c.async(ctx, "cleaning up", c.ctrl.ConfirmCleanup)
	}
}

func (c *Console) openUpload(ctx context.Context) {
	if c.uploader == nil || c.templates == nil {
		return
	}
	c.asyncApply(ctx, "loading templates", func(ctx context.Context) (func(), error) {
		templates, err := c.templates.Templates(ctx)
		if err != nil {
			c.toasts.Error("Could not load templates", err.Error())
			return nil, err
		}
		return func() {
			c.form = uploadForm{templates: templates}
			c.mode = modeUpload
			c.input = nil
			c.ctrl.SetTextFocus(true)
		}, nil
	})
}

func (c *Console) handleUpload(ctx context.Context, k review.Key) {
	switch k.Code {
	case review.KeyEsc:
		c.closeText()
	case review.KeyUp:
		c.form.cycle(-1)
	case review.KeyDown:
		c.form.cycle(1)
	case review.KeyEnter:
		path := strings.TrimSpace(string(c.input))
		template := c.form.Template()
		c.closeText()
		c.async(ctx, "processing", func(ctx context.Context) error {
			return c.submitUpload(ctx, template, path)
		})
	default:
		c.input = editInput(c.input, k)
	}
}

// submitUpload sends the ZIP at path and makes the new batch active.
func (c *Console) submitUpload(ctx context.Context, template, path string) error {
	up := domain.Upload{Template: template}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			c.toasts.Error("Upload failed", err.Error())
			return err
		}
		defer f.Close()
		up.FileName = filepath.Base(path)
		up.Content = f
	}
	resp, err := c.uploader.Submit(ctx, up)
	if err != nil {
		c.toasts.Error("Upload failed", err.Error())
		return err
	}
	flagged := 0
	if resp.Audit != nil {
		flagged = resp.Audit.Total
	}
	c.toasts.Success("Batch processed", fmt.Sprintf("%d of %d sheets read, %d flagged for review",
		resp.Summary.Processed, resp.Summary.Total, flagged))
	if resp.Summary.BatchID == "" {
		return nil
	}
	if err := c.ctrl.SetBatch(ctx, resp.Summary.BatchID, upload.FirstItemID(resp)); err != nil {
		c.toasts.Error("Could not open the batch", err.Error())
		return err
	}
	return nil
}
