package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

type IssueKind string

const (
	IssueMultiMarked IssueKind = "multi-marked"
	IssueUnmarked    IssueKind = "unmarked"
	IssueInvalid     IssueKind = "invalid"
	IssueUnknown     IssueKind = "unknown"
)

// Issue is a problem detected on a single sheet. Free-text issues from the
// backend are classified once, when decoded; nothing else reads Text to decide
// what an issue means.
type Issue struct {
	Question string    `json:"question,omitempty"`
	Kind     IssueKind `json:"kind"`
	Text     string    `json:"text"`
}

// ParseIssue classifies a free-text issue such as "q3: multiple marks".
// The question is the text before the first colon; when there is no colon the
// issue is not attached to a question.
func ParseIssue(text string) Issue {
	issue := Issue{Text: text, Kind: classify(text)}
	if i := strings.Index(text, ":"); i >= 0 {
		issue.Question = strings.TrimSpace(text[:i])
	}
	return issue
}

func classify(text string) IssueKind {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "multi"):
		return IssueMultiMarked
	case strings.Contains(lower, "unmarked"), strings.Contains(lower, "not marked"):
		return IssueUnmarked
	case strings.Contains(lower, "invalid"):
		return IssueInvalid
	default:
		return IssueUnknown
	}
}

func (i Issue) String() string {
	if i.Text != "" {
		return i.Text
	}
	if i.Question != "" {
		return i.Question + ": " + string(i.Kind)
	}
	return string(i.Kind)
}

// UnmarshalJSON accepts either the structured form or a bare string.
func (i *Issue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		*i = ParseIssue(text)
		return nil
	}
	type plain Issue
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	switch p.Kind {
	case IssueMultiMarked, IssueUnmarked, IssueInvalid, IssueUnknown:
	case "":
		if p.Text != "" {
			p.Kind = classify(p.Text)
		} else {
			p.Kind = IssueUnknown
		}
	default:
		p.Kind = IssueUnknown
	}
	*i = Issue(p)
	return nil
}

// ParseIssues classifies a list of free-text issues.
func ParseIssues(texts ...string) []Issue {
	out := make([]Issue, 0, len(texts))
	for _, t := range texts {
		out = append(out, ParseIssue(t))
	}
	return out
}

// IssueQuestions returns the set of question labels that carry an issue.
func IssueQuestions(issues []Issue) map[string]bool {
	out := make(map[string]bool, len(issues))
	for _, is := range issues {
		if is.Question != "" {
			out[is.Question] = true
		}
	}
	return out
}
