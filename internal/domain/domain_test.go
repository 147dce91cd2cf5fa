package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeAnswer(t *testing.T) {
	cases := map[string]string{
		" a ":      "A",
		"":         Blank,
		"   ":      Blank,
		"unmarked": "UNMARKED",
		"Ab":       "AB",
	}
	for in, want := range cases {
		got := NormalizeAnswer(in)
		if got != want {
			t.Errorf("NormalizeAnswer(%q) = %q, want %q", in, got, want)
		}
		if again := NormalizeAnswer(got); again != got {
			t.Errorf("NormalizeAnswer not idempotent for %q: %q", in, again)
		}
	}
	if got := NormalizeRaw("  keep Case \n"); got != "keep Case" {
		t.Fatalf("NormalizeRaw = %q", got)
	}
}

func TestParseIssue(t *testing.T) {
	cases := []struct {
		text     string
		question string
		kind     IssueKind
	}{
		{"q1: MULTI", "q1", IssueMultiMarked},
		{"q2: multiple marks", "q2", IssueMultiMarked},
		{"q3: unmarked", "q3", IssueUnmarked},
		{"q4: not marked", "q4", IssueUnmarked},
		{"q5: Invalid value", "q5", IssueInvalid},
		{"q6: smudge", "q6", IssueUnknown},
		{"sheet rotated", "", IssueUnknown},
	}
	for _, c := range cases {
		got := ParseIssue(c.text)
		if got.Question != c.question || got.Kind != c.kind {
			t.Errorf("ParseIssue(%q) = %+v", c.text, got)
		}
	}
}

func TestIssueUnmarshalAcceptsBothForms(t *testing.T) {
	var issues []Issue
	raw := `["q1: multi", {"question":"q2","kind":"unmarked"}, {"text":"q3: invalid"}, {"kind":"weird"}]`
	if err := json.Unmarshal([]byte(raw), &issues); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(issues) != 4 {
		t.Fatalf("len = %d", len(issues))
	}
	if issues[0].Kind != IssueMultiMarked || issues[0].Question != "q1" {
		t.Errorf("string form: %+v", issues[0])
	}
	if issues[1].Kind != IssueUnmarked || issues[1].Question != "q2" {
		t.Errorf("object form: %+v", issues[1])
	}
	if issues[2].Kind != IssueInvalid {
		t.Errorf("text-only object: %+v", issues[2])
	}
	if issues[3].Kind != IssueUnknown {
		t.Errorf("unknown kind should collapse: %+v", issues[3])
	}
}

func TestSeverityOf(t *testing.T) {
	cases := []struct {
		issues []string
		want   Severity
	}{
		{nil, SeverityNone},
		{[]string{"q1: unmarked", "q2: multi"}, SeverityCritical},
		{[]string{"q1: unmarked", "q2: invalid"}, SeverityWarning},
		{[]string{"q2: invalid"}, SeverityInfo},
		{[]string{"page torn"}, SeverityOther},
	}
	for _, c := range cases {
		if got := SeverityOf(ParseIssues(c.issues...)); got != c.want {
			t.Errorf("SeverityOf(%v) = %s, want %s", c.issues, got, c.want)
		}
	}
}

func TestSortByPriority(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	at := func(min int) Timestamp { return NewTimestamp(base.Add(time.Duration(min) * time.Minute)) }
	items := []AuditListItem{
		{ID: 1, Status: StatusPending, CreatedAt: at(0)},
		{ID: 2, Status: StatusResolved, Issues: ParseIssues("q1: unmarked"), CreatedAt: at(1)},
		{ID: 3, Status: StatusPending, Issues: ParseIssues("q1: multi"), CreatedAt: at(5)},
		{ID: 4, Status: StatusPending, Issues: ParseIssues("q1: unmarked"), CreatedAt: at(3)},
		{ID: 5, Status: StatusReopened, Issues: ParseIssues("q1: unmarked"), CreatedAt: at(0)},
		{ID: 6, Status: "archived", Issues: ParseIssues("q1: unmarked"), CreatedAt: at(0)},
		{ID: 7, Status: StatusPending, Issues: ParseIssues("q1: unmarked"), CreatedAt: at(2)},
	}
	got := SortByPriority(items)
	want := []int{3, 7, 4, 5, 2, 6, 1}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
	if items[0].ID != 1 || items[2].ID != 3 {
		t.Fatalf("input slice was reordered: %v", ids(items))
	}
}

func TestSortByPriorityStableOnTies(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	items := []AuditListItem{
		{ID: 9, Status: StatusPending, CreatedAt: ts},
		{ID: 8, Status: StatusPending, CreatedAt: ts},
		{ID: 7, Status: StatusPending, CreatedAt: ts},
	}
	got := SortByPriority(items)
	if got[0].ID != 9 || got[1].ID != 8 || got[2].ID != 7 {
		t.Fatalf("ties reordered: %v", ids(got))
	}
}

func TestTimestampAcceptsNaiveISO(t *testing.T) {
	var v struct {
		At Timestamp `json:"at"`
	}
	if err := json.Unmarshal([]byte(`{"at":"2024-03-04T05:06:07.123456"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.At.Year() != 2024 || v.At.Location() != time.UTC || v.At.Second() != 7 {
		t.Fatalf("parsed %v", v.At)
	}
	if err := json.Unmarshal([]byte(`{"at":"2024-03-04T05:06:07+02:00"}`), &v); err != nil {
		t.Fatalf("unmarshal zoned: %v", err)
	}
	if v.At.UTC().Hour() != 3 {
		t.Fatalf("zoned parsed %v", v.At)
	}
}

func ids(items []AuditListItem) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
