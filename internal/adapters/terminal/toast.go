package terminal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	ToastTTL  = 4 * time.Second
	maxToasts = 3
)

type Toast struct {
	Title   string
	Message string
	Error   bool
	expires time.Time
}

// Toasts is the console's notifier. Messages disappear after ToastTTL; only
// the newest few are kept.
type Toasts struct {
	clock clockwork.Clock

	mu    sync.Mutex
	items []Toast
}

func NewToasts(clock clockwork.Clock) *Toasts {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Toasts{clock: clock}
}

func (t *Toasts) Success(title, msg string) { t.push(Toast{Title: title, Message: msg}) }

func (t *Toasts) Error(title, msg string) { t.push(Toast{Title: title, Message: msg, Error: true}) }

func (t *Toasts) push(toast Toast) {
	toast.expires = t.clock.Now().Add(ToastTTL)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, toast)
	if len(t.items) > maxToasts {
		t.items = t.items[len(t.items)-maxToasts:]
	}
}

// Active drops expired toasts and returns the rest, oldest first.
func (t *Toasts) Active() []Toast {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.items[:0]
	for _, toast := range t.items {
		if now.Before(toast.expires) {
			kept = append(kept, toast)
		}
	}
	t.items = kept
	return append([]Toast(nil), kept...)
}
