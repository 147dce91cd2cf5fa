package domain

import "sort"

type Severity int

const (
	SeverityCritical Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityOther
	SeverityNone
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityOther:
		return "other"
	default:
		return "none"
	}
}

// SeverityOf buckets an item by its worst issue.
func SeverityOf(issues []Issue) Severity {
	if len(issues) == 0 {
		return SeverityNone
	}
	has := func(k IssueKind) bool {
		for _, is := range issues {
			if is.Kind == k {
				return true
			}
		}
		return false
	}
	switch {
	case has(IssueMultiMarked):
		return SeverityCritical
	case has(IssueUnmarked):
		return SeverityWarning
	case has(IssueInvalid):
		return SeverityInfo
	default:
		return SeverityOther
	}
}

func statusRank(s AuditStatus) int {
	switch s {
	case StatusPending:
		return 0
	case StatusReopened:
		return 1
	case StatusResolved:
		return 2
	default:
		return 3
	}
}

// SortByPriority returns a copy of items ordered by severity, then status
// (pending, reopened, resolved, anything else), then oldest first.
func SortByPriority(items []AuditListItem) []AuditListItem {
	out := make([]AuditListItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if sa, sb := SeverityOf(a.Issues), SeverityOf(b.Issues); sa != sb {
			return sa < sb
		}
		if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
			return ra < rb
		}
		return a.CreatedAt.Before(b.CreatedAt.Time)
	})
	return out
}
