package domain

import "testing"

func TestClassifyAnswer(t *testing.T) {
	cases := []struct {
		in   string
		kind IssueKind
		bad  bool
	}{
		{"A", "", false},
		{" e ", "", false},
		{"", IssueUnmarked, true},
		{"unmarked", IssueUnmarked, true},
		{"AB", IssueMultiMarked, true},
		{"a,c", IssueMultiMarked, true},
		{"MULTIPLE", IssueMultiMarked, true},
		{"F", IssueInvalid, true},
		{"?", IssueInvalid, true},
		{"AA", IssueInvalid, true},
		{"INVALID", IssueInvalid, true},
	}
	for _, c := range cases {
		kind, bad := ClassifyAnswer(c.in)
		if kind != c.kind || bad != c.bad {
			t.Errorf("ClassifyAnswer(%q) = %q, %v; want %q, %v", c.in, kind, bad, c.kind, c.bad)
		}
	}
}

func TestDetectIssuesKeepsQuestionOrder(t *testing.T) {
	got := DetectIssues([]string{"q1", "q2", "q3", "q4"}, map[string]string{"q1": "A", "q2": "BD", "q3": "c", "q4": " "})
	if len(got) != 2 {
		t.Fatalf("issues = %+v", got)
	}
	if got[0] != (Issue{Question: "q2", Kind: IssueMultiMarked, Text: "q2: BD"}) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1] != (Issue{Question: "q4", Kind: IssueUnmarked, Text: "q4: blank"}) {
		t.Errorf("second = %+v", got[1])
	}
}
