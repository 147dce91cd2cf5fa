package terminal

import (
	"reflect"
	"testing"

	"omraudit/internal/services/review"
)

func TestDecodeKeys(t *testing.T) {
	ctrl := func(r rune) review.Key { return review.Key{Code: review.KeyCtrl, Rune: r} }
	code := func(c review.KeyCode) review.Key { return review.Key{Code: c} }
	cases := []struct {
		name string
		in   string
		want []review.Key
	}{
		{"letters and digits", "b3", []review.Key{review.RuneKey('b'), review.RuneKey('3')}},
		{"arrows", "\x1b[A\x1b[B\x1b[C\x1b[D", []review.Key{code(review.KeyUp), code(review.KeyDown), code(review.KeyRight), code(review.KeyLeft)}},
		{"application mode arrows", "\x1bOC", []review.Key{code(review.KeyRight)}},
		{"page keys", "\x1b[5~\x1b[6~", []review.Key{code(review.KeyPageUp), code(review.KeyPageDown)}},
		{"lone escape", "\x1b", []review.Key{code(review.KeyEsc)}},
		{"escape then rune", "\x1bx", []review.Key{code(review.KeyEsc), review.RuneKey('x')}},
		{"unknown sequence", "\x1b[15~a", []review.Key{code(review.KeyEsc), review.RuneKey('a')}},
		{"enter tab backspace", "\r\t\x7f", []review.Key{code(review.KeyEnter), code(review.KeyTab), code(review.KeyBackspace)}},
		{"control letters", "\x13\x11\x18", []review.Key{ctrl('s'), ctrl('q'), ctrl('x')}},
		{"multibyte rune", "é", []review.Key{review.RuneKey('é')}},
		{"invalid utf8 dropped", "\xffa", []review.Key{review.RuneKey('a')}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeKeys([]byte(tc.in))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("decodeKeys(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestKeyReaderJoinsSplitSequences(t *testing.T) {
	code := func(c review.KeyCode) review.Key { return review.Key{Code: c} }
	cases := []struct {
		name   string
		chunks []string
		want   []review.Key
	}{
		{"arrow split after escape", []string{"\x1b", "[D"}, []review.Key{code(review.KeyLeft)}},
		{"arrow split after bracket", []string{"a\x1b[", "C"}, []review.Key{review.RuneKey('a'), code(review.KeyRight)}},
		{"page key split in three", []string{"\x1b", "[5", "~b"}, []review.Key{code(review.KeyPageUp), review.RuneKey('b')}},
		{"escape then rune in next chunk", []string{"\x1b", "x"}, []review.Key{code(review.KeyEsc), review.RuneKey('x')}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var r keyReader
			var got []review.Key
			for _, c := range tc.chunks {
				got = append(got, r.feed([]byte(c))...)
			}
			if r.waiting() {
				t.Fatalf("bytes still held back: %q", r.pending)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("keys = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestKeyReaderFlushesLoneEscape(t *testing.T) {
	var r keyReader
	if keys := r.feed([]byte("\x1b")); len(keys) != 0 || !r.waiting() {
		t.Fatalf("lone escape decoded early: %+v", keys)
	}
	keys := r.flush()
	if len(keys) != 1 || keys[0].Code != review.KeyEsc || r.waiting() {
		t.Fatalf("flush = %+v", keys)
	}
}
