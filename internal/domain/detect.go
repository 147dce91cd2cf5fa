package domain

import "strings"

var (
	unmarkedValues = map[string]bool{"": true, Blank: true, "BLANK": true, "EMPTY": true, "NA": true}
	multiValues    = map[string]bool{"MULTI": true, "MULTIPLE": true}
	invalidValues  = map[string]bool{"INVALID": true, "?": true}
)

// ClassifyAnswer reports what is wrong with a read answer, if anything. A
// valid answer is exactly one of the letters A to E.
func ClassifyAnswer(v string) (IssueKind, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	switch {
	case unmarkedValues[v]:
		return IssueUnmarked, true
	case multiValues[v]:
		return IssueMultiMarked, true
	case invalidValues[v]:
		return IssueInvalid, true
	}
	letters := map[rune]bool{}
	for _, r := range v {
		if r >= 'A' && r <= 'Z' {
			letters[r] = true
		}
	}
	switch {
	case len(letters) > 1:
		return IssueMultiMarked, true
	case len(letters) == 0, len(v) != 1, v[0] < 'A' || v[0] > 'E':
		return IssueInvalid, true
	}
	return "", false
}

// DetectIssues checks every question of a read sheet, in order.
func DetectIssues(questions []string, answers map[string]string) []Issue {
	var out []Issue
	for _, q := range questions {
		raw := strings.TrimSpace(answers[q])
		kind, bad := ClassifyAnswer(raw)
		if !bad {
			continue
		}
		shown := raw
		if shown == "" {
			shown = "blank"
		}
		out = append(out, Issue{Question: q, Kind: kind, Text: q + ": " + shown})
	}
	return out
}
