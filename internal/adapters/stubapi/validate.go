package stubapi

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	userPattern = regexp.MustCompile(`^[a-zA-Z0-9@._-]+$`)
	unsafeText  = regexp.MustCompile(`[<>"'/\\]`)
)

var dangerous = []string{"..", "~", "/etc", "/root", "/sys", "/proc"}

var validAnswers = map[string]bool{"A": true, "B": true, "C": true, "D": true, "E": true, "": true, "UNMARKED": true}

const maxNotes = 512

func safeName(v string, limit int) bool {
	if v == "" || len(v) > limit {
		return false
	}
	lower := strings.ToLower(v)
	for _, d := range dangerous {
		if strings.Contains(lower, d) {
			return false
		}
	}
	return namePattern.MatchString(v)
}

func validBatchID(v string) bool  { return safeName(v, 128) }
func validTemplate(v string) bool { return safeName(v, 64) }

func validUser(v string) bool {
	return v != "" && len(v) <= 64 && userPattern.MatchString(v)
}

// sanitizeNotes truncates notes and strips markup characters. It returns
// nil when nothing is left.
func sanitizeNotes(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	if len(v) > maxNotes {
		v = v[:maxNotes]
		for !utf8.ValidString(v) {
			v = v[:len(v)-1]
		}
	}
	v = strings.TrimSpace(unsafeText.ReplaceAllString(v, ""))
	if v == "" {
		return nil
	}
	return &v
}
