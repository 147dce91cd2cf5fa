package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func counter(n *int32, v string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		atomic.AddInt32(n, 1)
		return v, nil
	}
}

func TestFetchHonoursStaleTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCache(clock)
	key := Key{Kind: KindTemplates}
	var calls int32
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if v, err := Fetch(ctx, c, key, 10*time.Minute, counter(&calls, "a")); err != nil || v != "a" {
			t.Fatalf("Fetch = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	clock.Advance(10 * time.Minute)
	if _, err := Fetch(ctx, c, key, 10*time.Minute, counter(&calls, "b")); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("calls after expiry = %d, want 2", calls)
	}
}

func TestInvalidateAndRemove(t *testing.T) {
	c := NewCache(clockwork.NewFakeClock())
	ctx := context.Background()
	var calls int32
	list := Key{Kind: KindAuditList, ID: "b1", Variant: "pending"}
	detail := Key{Kind: KindAuditDetail, ID: "7"}
	other := Key{Kind: KindAuditDetail, ID: "8"}
	tpl := Key{Kind: KindTemplates}
	for _, k := range []Key{list, detail, other, tpl} {
		Fetch(ctx, c, k, time.Hour, counter(&calls, k.ID))
	}

	n := c.Invalidate(func(k Key) bool { return k.Kind == KindAuditDetail && k.ID == "7" })
	if n != 1 || !c.IsStale(detail) || c.IsStale(other) {
		t.Fatalf("invalidate matched %d; detail stale %v other stale %v", n, c.IsStale(detail), c.IsStale(other))
	}
	before := calls
	Fetch(ctx, c, detail, time.Hour, counter(&calls, "7"))
	if calls != before+1 || c.IsStale(detail) {
		t.Fatalf("stale entry not refetched")
	}

	if n := c.Remove(OfKind(KindAuditList, KindAuditDetail)); n != 3 {
		t.Fatalf("removed %d, want 3", n)
	}
	if _, ok := Peek[string](c, tpl); !ok || c.Len() != 1 {
		t.Fatalf("templates entry should survive; len = %d", c.Len())
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	c := NewCache(clockwork.NewFakeClock())
	key := Key{Kind: KindAuditDetail, ID: "1"}
	boom := errors.New("boom")
	_, err := Fetch(context.Background(), c, key, time.Hour, func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("error result cached")
	}
}

func TestConcurrentFetchSharesCall(t *testing.T) {
	c := NewCache(clockwork.NewFakeClock())
	key := Key{Kind: KindAuditList, ID: "b1"}
	release := make(chan struct{})
	var calls int32
	fn := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "ok", nil
	}
	var wg sync.WaitGroup
	started := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			Fetch(context.Background(), c, key, time.Hour, fn)
		}()
	}
	for i := 0; i < 5; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestInvalidateDuringFetchLeavesEntryStale(t *testing.T) {
	c := NewCache(clockwork.NewFakeClock())
	key := Key{Kind: KindBatchSummary, ID: "b1"}
	_, err := Fetch(context.Background(), c, key, time.Hour, func(context.Context) (string, error) {
		c.Invalidate(OfKind(KindBatchSummary))
		return "old", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsStale(key) {
		t.Fatal("result fetched before invalidation stored as fresh")
	}
}
