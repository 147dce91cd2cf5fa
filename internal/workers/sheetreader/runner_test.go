package sheetreader

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"

	"omraudit/internal/adapters/memory"
	"omraudit/internal/ports"
)

// scripted reads answers from the file name: "bad" sheets get a blank q2.
type scripted struct{}

func (scripted) Read(_ context.Context, job ports.SheetJob) (ports.SheetRead, error) {
	if job.Filename == "broken.png" {
		return ports.SheetRead{}, errors.New("cannot find anchors")
	}
	answers := map[string]string{"q1": "A", "q2": "B"}
	if job.Filename[:3] == "bad" {
		answers["q2"] = ""
	}
	return ports.SheetRead{Questions: []string{"q1", "q2"}, Answers: answers}, nil
}

func TestDrain(t *testing.T) {
	ctx := context.Background()
	store := memory.New(clockwork.NewFakeClock(), nil)
	batchID, _ := store.CreateBatch(ctx, "default")
	names := []string{"ok1.png", "bad1.png", "broken.png", "ok2.png", "bad2.png", "ok3.png", "ok4.png"}
	for _, n := range names {
		if _, err := store.EnqueueSheet(ctx, ports.SheetJob{BatchID: batchID, Filename: n, Data: []byte(n)}); err != nil {
			t.Fatal(err)
		}
	}

	results := Drain(ctx, store, scripted{}, batchID, 3, nil)
	if len(results) != len(names) {
		t.Fatalf("got %d results", len(results))
	}
	var audits, failed int
	for i, r := range results {
		if r.Job.Filename != names[i] {
			t.Errorf("result %d is %s, want %s", i, r.Job.Filename, names[i])
		}
		if r.Err != nil {
			failed++
		}
		if r.Audit != nil {
			audits++
			if r.Job.Filename[:3] != "bad" {
				t.Errorf("%s flagged", r.Job.Filename)
			}
		}
	}
	if failed != 1 || audits != 2 {
		t.Fatalf("failed %d audits %d", failed, audits)
	}
	if _, found, _ := store.ClaimNext(ctx, batchID); found {
		t.Fatal("queue not drained")
	}
	sum, _ := store.Batch(ctx, batchID)
	if sum.Total != 2 {
		t.Fatalf("batch has %d audit items", sum.Total)
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	store := memory.New(nil, nil)
	if got := Drain(context.Background(), store, scripted{}, "nothing", 0, nil); len(got) != 0 {
		t.Fatalf("results = %v", got)
	}
}

func TestSyntheticIsDeterministic(t *testing.T) {
	s := Synthetic{Questions: 40}
	job := ports.SheetJob{Filename: "Sheet.PNG", Data: []byte("scan bytes")}
	a, err := s.Read(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.Read(context.Background(), job)
	if len(a.Questions) != 40 || a.Questions[39] != "q40" {
		t.Fatalf("questions = %v", a.Questions)
	}
	for _, q := range a.Questions {
		if a.Answers[q] != b.Answers[q] {
			t.Fatalf("%s read %q then %q", q, a.Answers[q], b.Answers[q])
		}
	}
}

func TestSyntheticRejects(t *testing.T) {
	s := Synthetic{Questions: 5}
	cases := map[string]struct {
		job  ports.SheetJob
		want error
	}{
		"text file": {ports.SheetJob{Filename: "notes.txt", Data: []byte("x")}, ErrUnsupported},
		"empty":     {ports.SheetJob{Filename: "a.jpg"}, ErrEmpty},
	}
	for name, c := range cases {
		if _, err := s.Read(context.Background(), c.job); !errors.Is(err, c.want) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestMarkCoversEveryOutcome(t *testing.T) {
	seen := map[string]bool{}
	for b := 0; b < 256; b++ {
		v := mark(byte(b))
		switch len(v) {
		case 0:
			seen["blank"] = true
		case 1:
			seen["single"] = true
		case 2:
			seen["double"] = true
		default:
			t.Fatalf("mark(%d) = %q", b, v)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("outcomes = %v", seen)
	}
}
