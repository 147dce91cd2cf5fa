package review

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"omraudit/internal/domain"
)

// Summary is the batch header: counts and the last export.
type Summary struct {
	BatchID    string
	Total      int
	Pending    int
	Resolved   int
	Reopened   int
	LastExport string
}

// View is an immutable snapshot of everything the console draws.
type View struct {
	BatchID    string
	Filter     domain.AuditStatus
	Search     string
	SortMode   SortMode
	Items      []domain.AuditListItem
	SelectedID int
	Position   int // 1-based index of the selection in Items, 0 when none
	Detail     *domain.AuditDetail
	Grid       Grid
	Image      Viewer
	Notes      string
	Dirty      bool
	Saving     bool
	Prompt     bool
	TextFocus  bool
	Summary    Summary
	Cleanup    *CleanupGate
	CanPrev    bool
	CanNext    bool
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexLocked()
	v := View{
		BatchID:    c.batchID,
		Filter:     c.filter,
		Search:     c.search,
		SortMode:   c.sortMode,
		Items:      append([]domain.AuditListItem(nil), c.visible...),
		SelectedID: c.selectedID,
		Position:   idx + 1,
		Grid:       c.gridLocked(),
		Image:      c.viewer,
		Notes:      c.draftNotes,
		Dirty:      c.hasChangesLocked(),
		Saving:     c.saving,
		Prompt:     c.prompt != nil,
		TextFocus:  c.textFocus,
		Cleanup:    c.cleanup,
		CanPrev:    idx > 0,
		CanNext:    idx >= 0 && idx < len(c.visible)-1,
		Summary:    c.summaryLocked(),
	}
	if c.detail != nil {
		d := *c.detail
		v.Detail = &d
	}
	return v
}

func (c *Controller) summaryLocked() Summary {
	r := c.listResp
	s := Summary{
		BatchID:  c.batchID,
		Total:    r.Total,
		Pending:  r.Pending,
		Resolved: r.Resolved,
		Reopened: r.Reopened,
	}
	if s.Total == 0 {
		s.Total = len(r.Items)
	}
	if s.Pending == 0 {
		for _, it := range r.Items {
			if it.Status == domain.StatusPending {
				s.Pending++
			}
		}
	}
	if m := c.meta; m != nil && !m.ExportedAt.IsZero() {
		when := humanize.RelTime(m.ExportedAt.Time, c.clock.Now(), "ago", "from now")
		if m.ExportedBy != nil && *m.ExportedBy != "" {
			s.LastExport = fmt.Sprintf("%s by %s", when, *m.ExportedBy)
		} else {
			s.LastExport = when
		}
	}
	return s
}
