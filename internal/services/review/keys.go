package review

import (
	"context"
	"errors"
	"unicode"
)

type KeyCode int

const (
	KeyRune KeyCode = iota
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyPageUp
	KeyPageDown
	KeyBackspace
	KeyEnter
	KeyEsc
	KeyTab
	KeyCtrl // Rune holds the lower-case letter
)

type Key struct {
	Code KeyCode
	Rune rune
}

func RuneKey(r rune) Key { return Key{Code: KeyRune, Rune: r} }

var digitAnswers = map[rune]string{'1': "A", '2': "B", '3': "C", '4': "D", '5': "E"}

// HandleKey applies the review shortcuts. Keys are ignored while a prompt or
// dialog is open, while text input has focus, or while a save is running.
//
//	Left/Right        previous/next item (through the unsaved-changes guard)
//	Up/Down           focus previous/next question
//	PageUp/PageDown   previous/next grid page
//	A-E, 1-5          answer the focused question (1-5 map to A-E)
//	0, Backspace      clear the focused question
func (c *Controller) HandleKey(ctx context.Context, k Key) (Outcome, error) {
	c.mu.Lock()
	if c.prompt != nil || c.cleanup != nil || c.textFocus || c.saving {
		c.mu.Unlock()
		return OutcomeIgnored, nil
	}
	c.mu.Unlock()

	switch k.Code {
	case KeyLeft, KeyRight:
		var out Outcome
		var err error
		if k.Code == KeyLeft {
			out, err = c.Prev(ctx)
		} else {
			out, err = c.Next(ctx)
		}
		if errors.Is(err, ErrNoNeighbor) {
			return OutcomeIgnored, nil
		}
		return out, err
	case KeyUp, KeyDown, KeyPageUp, KeyPageDown:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.detail == nil {
			return OutcomeIgnored, nil
		}
		switch k.Code {
		case KeyUp:
			c.moveFocusLocked(-1)
		case KeyDown:
			c.moveFocusLocked(1)
		case KeyPageUp, KeyPageDown:
			g := c.gridLocked()
			delta := 1
			if k.Code == KeyPageUp {
				delta = -1
			}
			c.gridPage = clampPage(g.Page+delta, g.Pages)
			c.focused = ""
		}
		return OutcomeChanged, nil
	case KeyBackspace:
		return c.answerFocused("")
	case KeyRune:
		r := unicode.ToUpper(k.Rune)
		switch {
		case r >= 'A' && r <= 'E':
			return c.answerFocused(string(r))
		case digitAnswers[r] != "":
			return c.answerFocused(digitAnswers[r])
		case r == '0':
			return c.answerFocused("")
		}
	}
	return OutcomeIgnored, nil
}

func (c *Controller) answerFocused(value string) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil {
		return OutcomeIgnored, nil
	}
	q := c.gridLocked().FocusedQuestion()
	if q == "" {
		return OutcomeIgnored, nil
	}
	c.draft[q] = value
	c.focused = q
	return OutcomeChanged, nil
}
