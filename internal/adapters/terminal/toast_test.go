package terminal

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestToastsExpire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	toasts := NewToasts(clock)
	toasts.Success("Decision saved", "a.png is now resolved")
	clock.Advance(2 * time.Second)
	toasts.Error("Export failed", "boom")

	if got := toasts.Active(); len(got) != 2 || got[1].Title != "Export failed" || !got[1].Error {
		t.Fatalf("active = %+v", got)
	}
	clock.Advance(ToastTTL - time.Second)
	if got := toasts.Active(); len(got) != 1 || got[0].Title != "Export failed" {
		t.Fatalf("after first expiry = %+v", got)
	}
	clock.Advance(time.Second)
	if got := toasts.Active(); len(got) != 0 {
		t.Fatalf("after second expiry = %+v", got)
	}
}

func TestToastsKeepNewest(t *testing.T) {
	toasts := NewToasts(clockwork.NewFakeClock())
	for _, title := range []string{"1", "2", "3", "4"} {
		toasts.Success(title, "")
	}
	got := toasts.Active()
	if len(got) != maxToasts || got[0].Title != "2" || got[2].Title != "4" {
		t.Fatalf("active = %+v", got)
	}
}
