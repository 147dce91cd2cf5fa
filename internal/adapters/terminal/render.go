package terminal

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"omraudit/internal/domain"
	"omraudit/internal/services/review"
)

var (
	titleStyle  = color.New(color.FgCyan, color.Bold)
	dimStyle    = color.New(color.Faint)
	okStyle     = color.New(color.FgGreen)
	warnStyle   = color.New(color.FgYellow)
	errStyle    = color.New(color.FgRed, color.Bold)
	focusStyle  = color.New(color.ReverseVideo)
	editedStyle = color.New(color.FgMagenta)
)

type shortcut struct{ key, action string }

var legend = []shortcut{
	{"←/→", "previous/next item"},
	{"↑/↓", "focus question"},
	{"PgUp/PgDn", "question page"},
	{"A-E 1-5", "answer"},
	{"0 Bksp", "clear answer"},
	{"Tab", "issues only"},
	{"Ctrl-S", "save"},
	{"Ctrl-N", "notes"},
	{"Ctrl-O", "marked/original image"},
	{"Ctrl-F", "status filter"},
	{"/", "search"},
	{"Ctrl-T", "sort"},
	{"Ctrl-R", "refresh"},
	{"Ctrl-E", "export CSV"},
	{"Ctrl-X", "clean up batch"},
	{"Ctrl-U", "upload"},
	{"?", "shortcuts"},
	{"Ctrl-Q", "quit"},
}

// screen is everything drawn in one frame.
type screen struct {
	View       review.View
	Toasts     []Toast
	Mode       mode
	Input      string
	Upload     uploadForm
	Busy       string
	ShowLegend bool
	Height     int
}

const listWindow = 8

// render lays out one frame as lines, without trailing newlines.
func render(s screen) []string {
	var lines []string
	add := func(format string, args ...any) { lines = append(lines, fmt.Sprintf(format, args...)) }
	v := s.View

	add("%s  %s", titleStyle.Sprint("OMR review"), summaryLine(v.Summary))
	if v.BatchID == "" {
		lines = append(lines, dimStyle.Sprint("No batch selected. Press Ctrl-U to upload a ZIP of answer sheets."))
	} else {
		filter := string(v.Filter)
		if filter == "" {
			filter = "all"
		}
		sortMode := "priority"
		if v.SortMode == review.SortServer {
			sortMode = "newest"
		}
		search := ""
		if v.Search != "" {
			search = "  search: " + v.Search
		}
		add("filter: %s  sort: %s%s", filter, sortMode, search)
		lines = append(lines, "")
		lines = append(lines, listLines(v, s.listHeight())...)
	}

	if v.Detail != nil {
		lines = append(lines, "")
		lines = append(lines, detailLines(v)...)
	}

	lines = append(lines, "")
	switch {
	case s.Mode == modeUpload:
		lines = append(lines, uploadLines(s.Upload, s.Input)...)
	case v.Cleanup != nil:
		lines = append(lines, cleanupLines(v.Cleanup)...)
	case v.Prompt:
		lines = append(lines, warnStyle.Sprint("Unsaved changes.") + "  [s/Enter] save  [d] discard  [c/Esc] cancel")
	case s.Mode == modeNotes:
		add("notes> %s_  %s", s.Input, dimStyle.Sprint("[Enter] keep  [Esc] cancel"))
	case s.Mode == modeSearch:
		add("search> %s_  %s", s.Input, dimStyle.Sprint("[Enter] apply  [Esc] cancel"))
	}
	if s.Busy != "" {
		lines = append(lines, warnStyle.Sprint(s.Busy+"..."))
	}
	for _, t := range s.Toasts {
		if t.Error {
			add("%s %s", errStyle.Sprint("✗ "+t.Title+":"), t.Message)
		} else {
			add("%s %s", okStyle.Sprint("✓ "+t.Title+":"), t.Message)
		}
	}
	if s.ShowLegend {
		lines = append(lines, "")
		lines = append(lines, legendLines()...)
	} else {
		lines = append(lines, dimStyle.Sprint("? shortcuts  Ctrl-Q quit"))
	}
	return lines
}

func (s screen) listHeight() int {
	if s.Height <= 0 {
		return listWindow
	}
	return max(3, min(listWindow, s.Height/4))
}

func summaryLine(s review.Summary) string {
	if s.BatchID == "" {
		return ""
	}
	line := fmt.Sprintf("batch %s  total %d • pending %d • resolved %d • reopened %d",
		s.BatchID, s.Total, s.Pending, s.Resolved, s.Reopened)
	if s.LastExport != "" {
		line += "  last export " + s.LastExport
	} else {
		line += dimStyle.Sprint("  not exported")
	}
	return line
}

// listLines shows a window of the visible items around the selection.
func listLines(v review.View, height int) []string {
	if len(v.Items) == 0 {
		return []string{dimStyle.Sprint("No items match the current filter.")}
	}
	start := 0
	if v.Position > height {
		start = v.Position - height
	}
	end := min(len(v.Items), start+height)
	var lines []string
	for _, it := range v.Items[start:end] {
		marker := "  "
		if it.ID == v.SelectedID {
			marker = "> "
		}
		line := fmt.Sprintf("%s#%-5d %-32s %s %s", marker, it.ID, it.FileID, statusLabel(it.Status), severityLabel(domain.SeverityOf(it.Issues), len(it.Issues)))
		if it.ID == v.SelectedID {
			line = focusStyle.Sprint(line)
		}
		lines = append(lines, line)
	}
	if end < len(v.Items) {
		lines = append(lines, dimStyle.Sprintf("  … %d more", len(v.Items)-end))
	}
	return lines
}

func statusLabel(s domain.AuditStatus) string {
	switch s {
	case domain.StatusResolved:
		return okStyle.Sprintf("%-8s", s)
	case domain.StatusReopened:
		return warnStyle.Sprintf("%-8s", s)
	default:
		return fmt.Sprintf("%-8s", s)
	}
}

func severityLabel(sev domain.Severity, n int) string {
	label := fmt.Sprintf("%s (%d)", sev, n)
	switch sev {
	case domain.SeverityCritical:
		return errStyle.Sprint(label)
	case domain.SeverityWarning:
		return warnStyle.Sprint(label)
	case domain.SeverityNone:
		return dimStyle.Sprint("no issues")
	default:
		return label
	}
}

func detailLines(v review.View) []string {
	d := v.Detail
	var lines []string
	add := func(format string, args ...any) { lines = append(lines, fmt.Sprintf(format, args...)) }

	nav := ""
	if v.Position > 0 {
		nav = fmt.Sprintf("card %d of %d", v.Position, len(v.Items))
	}
	add("%s  %s  %s  %s", titleStyle.Sprint(d.FileID), statusLabel(d.Status), d.Template, dimStyle.Sprint(nav))
	if img := v.Image.Current(); img != "" {
		add("image (%s): %s  %s", v.Image.Variant, img, dimStyle.Sprint("[Ctrl-O switch]"))
	} else {
		lines = append(lines, dimStyle.Sprint("no image"))
	}
	if len(d.Issues) > 0 {
		texts := make([]string, 0, len(d.Issues))
		for _, is := range d.Issues {
			texts = append(texts, is.String())
		}
		add("issues: %s", strings.Join(texts, "; "))
	}

	g := v.Grid
	header := fmt.Sprintf("questions %s  issues %d", g.Indicator(), g.IssueCount)
	if g.IssuesOnly {
		header += "  [issues only]"
	}
	lines = append(lines, header)
	for _, card := range g.Cards {
		lines = append(lines, cardLine(card))
	}
	if g.Total == 0 {
		lines = append(lines, dimStyle.Sprint("  no questions to show"))
	}

	notes := v.Notes
	if notes == "" {
		notes = dimStyle.Sprint("(none)")
	}
	add("notes: %s", notes)
	switch {
	case v.Saving:
		lines = append(lines, warnStyle.Sprint("saving..."))
	case v.Dirty:
		lines = append(lines, warnStyle.Sprint("unsaved changes") + dimStyle.Sprint("  [Ctrl-S save]"))
	}
	return lines
}

func cardLine(c review.Card) string {
	read := c.Read
	if read == "" {
		read = "-"
	}
	value := c.Value
	if value == domain.Blank {
		value = "blank"
	}
	line := fmt.Sprintf("%-6s %-7s read: %s • current: %s", c.Question, optionsLine(c.Value), read, value)
	if c.HasIssue {
		line += "  " + warnStyle.Sprint(string(c.IssueKind))
	}
	if c.Edited {
		line += "  " + editedStyle.Sprint("edited")
	}
	if c.Focused {
		return focusStyle.Sprint("> ") + line
	}
	return "  " + line
}

// optionsLine marks the selected answer among A-E, e.g. "..C..".
func optionsLine(value string) string {
	var b strings.Builder
	for _, opt := range review.AnswerOptions[:5] {
		if opt == value {
			b.WriteString(opt)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func cleanupLines(g *review.CleanupGate) []string {
	box := "[ ]"
	if g.Acknowledged() {
		box = "[x]"
	}
	confirm := dimStyle.Sprintf("[Enter] confirm in %ds", g.SecondsLeft())
	if g.Ready() {
		confirm = errStyle.Sprint("[Enter] delete now")
	} else if g.SecondsLeft() == 0 {
		confirm = dimStyle.Sprint("[Enter] confirm once acknowledged")
	}
	return []string{
		errStyle.Sprintf("Clean up batch %s?", g.BatchID),
		fmt.Sprintf("This deletes %d audit items and every stored image and export of the batch.", g.TotalItems),
		fmt.Sprintf("%s I understand this cannot be undone  [space]", box),
		confirm + "  [Esc] cancel",
	}
}

func uploadLines(f uploadForm, path string) []string {
	tpl := f.Template()
	if tpl == "" {
		tpl = dimStyle.Sprint("(no templates)")
	}
	return []string{
		titleStyle.Sprint("Upload answer sheets"),
		fmt.Sprintf("template: < %s >  %s", tpl, dimStyle.Sprint("[↑/↓]")),
		fmt.Sprintf("ZIP file: %s_", path),
		dimStyle.Sprint("[Enter] process  [Esc] cancel"),
	}
}

func legendLines() []string {
	lines := []string{titleStyle.Sprint("Shortcuts")}
	for i := 0; i < len(legend); i += 2 {
		line := fmt.Sprintf("  %-10s %-24s", legend[i].key, legend[i].action)
		if i+1 < len(legend) {
			line += fmt.Sprintf("%-10s %s", legend[i+1].key, legend[i+1].action)
		}
		lines = append(lines, strings.TrimRight(line, " "))
	}
	return lines
}
