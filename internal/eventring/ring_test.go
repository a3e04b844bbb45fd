package eventring

import (
	"testing"
	"time"

	"github.com/rzbill/flare/internal/event"
)

func TestAppendAssignsSequential(t *testing.T) {
	r := New(8)
	a := r.Append(event.NewFileChangeEvent("watcher", "/a", "created"))
	b := r.Append(event.NewFileChangeEvent("watcher", "/b", "created"))
	if !(a < b) {
		t.Fatalf("expected increasing seqs: %d %d", a, b)
	}
	if r.LastSeq() != b {
		t.Fatalf("last seq %d, want %d", r.LastSeq(), b)
	}
	if r.Len() != 2 {
		t.Fatalf("len %d, want 2", r.Len())
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Append(event.NewFileChangeEvent("watcher", "/f", "modified"))
	}
	if r.Len() != 3 {
		t.Fatalf("len %d, want capacity 3", r.Len())
	}
	entries := r.ReadSince(0, 0)
	if len(entries) != 3 {
		t.Fatalf("read %d entries, want 3", len(entries))
	}
	if entries[0].Seq != 3 || entries[2].Seq != 5 {
		t.Fatalf("expected seqs 3..5, got %d..%d", entries[0].Seq, entries[2].Seq)
	}
}

func TestCountSince(t *testing.T) {
	r := New(16)
	r.Append(event.NewFileChangeEvent("watcher", "/a", "created"))
	r.Append(event.NewFileChangeEvent("watcher", "/b", "created"))
	mid := time.Now()
	time.Sleep(5 * time.Millisecond)
	r.Append(event.NewFileChangeEvent("watcher", "/c", "created"))
	r.Append(event.NewFileChangeEvent("watcher", "/d", "created"))

	if got := r.CountSince(mid); got != 2 {
		t.Fatalf("count since mid: %d, want 2", got)
	}
	if got := r.CountSince(time.Now().Add(time.Hour)); got != 0 {
		t.Fatalf("count since future: %d, want 0", got)
	}
	if got := r.CountSince(time.Unix(0, 0)); got != 4 {
		t.Fatalf("count since epoch: %d, want 4", got)
	}
}

func TestReadSinceLimit(t *testing.T) {
	r := New(16)
	for i := 0; i < 6; i++ {
		r.Append(event.NewFileChangeEvent("watcher", "/f", "modified"))
	}
	got := r.ReadSince(0, 4)
	if len(got) != 4 {
		t.Fatalf("limit ignored: got %d entries", len(got))
	}
	if got[0].Seq != 1 {
		t.Fatalf("expected oldest-first, got first seq %d", got[0].Seq)
	}
}

func TestWaitForAppendWakes(t *testing.T) {
	r := New(4)
	done := make(chan bool, 1)
	go func() { done <- r.WaitForAppend(2 * time.Second) }()

	time.Sleep(10 * time.Millisecond)
	r.Append(event.NewFileChangeEvent("watcher", "/a", "created"))

	select {
	case woke := <-done:
		if !woke {
			t.Fatalf("wait returned timeout despite append")
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter never woke")
	}
}

func TestWaitForAppendTimeout(t *testing.T) {
	r := New(4)
	if r.WaitForAppend(20 * time.Millisecond) {
		t.Fatalf("expected timeout with no appends")
	}
}
