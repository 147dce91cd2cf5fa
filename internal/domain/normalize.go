package domain

import "strings"

// Blank is the canonical value of an answer with no mark.
const Blank = "UNMARKED"

// NormalizeAnswer trims and uppercases an answer; empty becomes Blank.
func NormalizeAnswer(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return Blank
	}
	return v
}

func NormalizeRaw(v string) string { return strings.TrimSpace(v) }

// NormalizeAnswers applies NormalizeAnswer to every value of m.
func NormalizeAnswers(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = NormalizeAnswer(v)
	}
	return out
}
