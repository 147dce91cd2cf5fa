package review

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"omraudit/internal/domain"
)

// AnswerOptions are the choices offered on every question card.
var AnswerOptions = []string{"A", "B", "C", "D", "E", domain.Blank}

// Card is one question as shown in the grid.
type Card struct {
	Question  string
	Read      string
	Value     string // normalized current draft value
	Edited    bool   // differs from the server's corrected/read value
	IssueKind domain.IssueKind
	HasIssue  bool
	Focused   bool
}

type Grid struct {
	Cards      []Card // cards on the current page
	Total      int    // questions after the issues-only filter
	IssueCount int
	Page       int // zero-based
	Pages      int
	IssuesOnly bool
}

// Indicator renders the page position as "page/pages", e.g. "1/2".
func (g Grid) Indicator() string {
	if g.Pages == 0 {
		return "0/0"
	}
	return fmt.Sprintf("%d/%d", g.Page+1, g.Pages)
}

var questionNumber = regexp.MustCompile(`\d+`)

func questionIndex(label string) int {
	m := questionNumber.FindString(label)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// orderResponses puts questions with issues first, then orders by the number
// in the question label.
func orderResponses(responses []domain.AuditResponse, issues map[string]domain.IssueKind, issuesOnly bool) []domain.AuditResponse {
	out := make([]domain.AuditResponse, 0, len(responses))
	for _, r := range responses {
		if _, has := issues[r.Question]; issuesOnly && !has {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		_, ai := issues[out[i].Question]
		_, bi := issues[out[j].Question]
		if ai != bi {
			return ai
		}
		return questionIndex(out[i].Question) < questionIndex(out[j].Question)
	})
	return out
}

func issueKinds(issues []domain.Issue) map[string]domain.IssueKind {
	out := make(map[string]domain.IssueKind, len(issues))
	for _, is := range issues {
		if is.Question != "" {
			out[is.Question] = is.Kind
		}
	}
	return out
}

func pageCount(n, perPage int) int {
	if n == 0 {
		return 0
	}
	return (n + perPage - 1) / perPage
}

func clampPage(page, pages int) int {
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}
	return page
}

// buildGrid lays out the detail's questions for one page. focused names the
// focused question; empty means the first card on the page.
func buildGrid(detail *domain.AuditDetail, draft map[string]string, issuesOnly bool, page, perPage int, focused string) Grid {
	if detail == nil {
		return Grid{IssuesOnly: issuesOnly}
	}
	kinds := issueKinds(detail.Issues)
	ordered := orderResponses(detail.Responses, kinds, issuesOnly)
	pages := pageCount(len(ordered), perPage)
	page = clampPage(page, pages)

	g := Grid{Total: len(ordered), Page: page, Pages: pages, IssuesOnly: issuesOnly}
	for _, r := range detail.Responses {
		if _, has := kinds[r.Question]; has {
			g.IssueCount++
		}
	}
	if pages == 0 {
		return g
	}
	start := page * perPage
	end := min(start+perPage, len(ordered))
	for _, r := range ordered[start:end] {
		current, ok := draft[r.Question]
		if !ok && r.ReadValue != nil {
			current = *r.ReadValue
		}
		value := domain.NormalizeAnswer(current)
		kind, has := kinds[r.Question]
		read := ""
		if r.ReadValue != nil {
			read = *r.ReadValue
		}
		g.Cards = append(g.Cards, Card{
			Question:  r.Question,
			Read:      read,
			Value:     value,
			Edited:    value != domain.NormalizeAnswer(r.Effective()),
			IssueKind: kind,
			HasIssue:  has,
		})
	}
	idx := 0
	for i, card := range g.Cards {
		if card.Question == focused {
			idx = i
			break
		}
	}
	g.Cards[idx].Focused = true
	return g
}

// FocusedQuestion returns the focused card's question, if any.
func (g Grid) FocusedQuestion() string {
	for _, c := range g.Cards {
		if c.Focused {
			return c.Question
		}
	}
	return ""
}
