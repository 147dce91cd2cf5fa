package terminal

import (
	"bytes"
	"unicode/utf8"

	"omraudit/internal/services/review"
)

const (
	esc = 0x1b
	// maxEscape bounds how long an unfinished escape sequence is held back.
	maxEscape = 8
)

var csiKeys = map[string]review.KeyCode{
	"A":  review.KeyUp,
	"B":  review.KeyDown,
	"C":  review.KeyRight,
	"D":  review.KeyLeft,
	"5~": review.KeyPageUp,
	"6~": review.KeyPageDown,
}

// decodeKeys turns a chunk of raw terminal input into key events. A lone
// ESC (or one followed by an unknown sequence) is reported as KeyEsc.
func decodeKeys(b []byte) []review.Key {
	var keys []review.Key
	for len(b) > 0 {
		switch c := b[0]; {
		case c == esc:
			k, n := decodeEscape(b)
			keys = append(keys, k)
			b = b[n:]
			continue
		case c == '\r' || c == '\n':
			keys = append(keys, review.Key{Code: review.KeyEnter})
		case c == '\t':
			keys = append(keys, review.Key{Code: review.KeyTab})
		case c == 0x7f || c == 0x08:
			keys = append(keys, review.Key{Code: review.KeyBackspace})
		case c >= 1 && c <= 26:
			keys = append(keys, review.Key{Code: review.KeyCtrl, Rune: rune('a' + c - 1)})
		case c < 0x20:
			// other control bytes carry nothing we bind
		default:
			r, n := utf8.DecodeRune(b)
			if r == utf8.RuneError && n <= 1 {
				b = b[1:]
				continue
			}
			keys = append(keys, review.RuneKey(r))
			b = b[n:]
			continue
		}
		b = b[1:]
	}
	return keys
}

// decodeEscape reads one escape sequence at the start of b and returns the
// key and the number of bytes consumed.
func decodeEscape(b []byte) (review.Key, int) {
	if len(b) < 2 || (b[1] != '[' && b[1] != 'O') {
		return review.Key{Code: review.KeyEsc}, 1
	}
	for i := 2; i < len(b); i++ {
		c := b[i]
		if c == esc {
			return review.Key{Code: review.KeyEsc}, i
		}
		if (c >= 'A' && c <= 'Z') || c == '~' {
			if code, ok := csiKeys[string(b[2:i+1])]; ok {
				return review.Key{Code: code}, i + 1
			}
			return review.Key{Code: review.KeyEsc}, i + 1
		}
	}
	return review.Key{Code: review.KeyEsc}, len(b)
}

// keyReader decodes a stream of input chunks. An escape sequence cut at the
// end of a chunk is held until the next chunk completes it or flush gives up
// on it.
type keyReader struct {
	pending []byte
}

func (r *keyReader) feed(b []byte) []review.Key {
	buf := append(r.pending, b...)
	r.pending = nil
	if cut := unfinishedEscape(buf); cut >= 0 {
		r.pending = append([]byte(nil), buf[cut:]...)
		buf = buf[:cut]
	}
	return decodeKeys(buf)
}

// flush decodes whatever is held back, a lone ESC becoming KeyEsc.
func (r *keyReader) flush() []review.Key {
	keys := decodeKeys(r.pending)
	r.pending = nil
	return keys
}

func (r *keyReader) waiting() bool { return len(r.pending) > 0 }

// unfinishedEscape returns the offset of a trailing escape sequence that may
// still be incomplete, or -1.
func unfinishedEscape(b []byte) int {
	i := bytes.LastIndexByte(b, esc)
	if i < 0 || len(b)-i >= maxEscape {
		return -1
	}
	seq := b[i:]
	if len(seq) == 1 {
		return i
	}
	if seq[1] != '[' && seq[1] != 'O' {
		return -1
	}
	for _, c := range seq[2:] {
		if (c >= 'A' && c <= 'Z') || c == '~' {
			return -1
		}
	}
	return i
}
