package terminal

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

var ErrNotTerminal = errors.New("the review console needs an interactive terminal")

func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// EnterRaw switches in to raw mode and out to the alternate screen. The
// returned func restores both.
func EnterRaw(in, out *os.File) (func(), error) {
	if !IsTerminal(in) || !IsTerminal(out) {
		return nil, ErrNotTerminal
	}
	fd := int(in.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw mode: %w", err)
	}
	fmt.Fprint(out, "\x1b[?1049h\x1b[?25l")
	return func() {
		fmt.Fprint(out, "\x1b[?25h\x1b[?1049l")
		_ = term.Restore(fd, state)
	}, nil
}

// SizeOf reports the terminal size of f, or 100x40 when unknown.
func SizeOf(f *os.File) func() (int, int) {
	return func() (int, int) {
		w, h, err := term.GetSize(int(f.Fd()))
		if err != nil {
			return 100, 40
		}
		return w, h
	}
}
