package eventring

import (
	"sort"
	"sync"
	"time"

	"github.com/rzbill/flare/internal/event"
)

// DefaultCapacity bounds the ring when the configured capacity is zero.
const DefaultCapacity = 1024

// Entry is one recorded emission. AtMs is the append time in Unix
// milliseconds and is nondecreasing across entries.
type Entry struct {
	Seq   uint64
	AtMs  int64
	Event event.Event
}

// Ring is a fixed-capacity index of recent emissions. Appends assign a
// strictly increasing sequence and evict the oldest entry once the ring is
// full. It backs missed-event counts for reconnecting clients and the
// recent-events API; it is not a durable log.
type Ring struct {
	mu       sync.Mutex
	capacity int
	buf      []Entry
	start    int
	size     int
	lastSeq  uint64
	lastMs   int64
	notifyCh chan struct{}
}

// New creates a Ring with the given capacity (DefaultCapacity when <= 0).
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		capacity: capacity,
		buf:      make([]Entry, capacity),
		notifyCh: make(chan struct{}),
	}
}

// Append records an emission and returns its assigned sequence. Waiters
// blocked in WaitForAppend are woken.
func (r *Ring) Append(ev event.Event) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeq++
	ms := time.Now().UnixMilli()
	if ms < r.lastMs {
		ms = r.lastMs
	}
	r.lastMs = ms

	e := Entry{Seq: r.lastSeq, AtMs: ms, Event: ev}
	if r.size < r.capacity {
		r.buf[(r.start+r.size)%r.capacity] = e
		r.size++
	} else {
		r.buf[r.start] = e
		r.start = (r.start + 1) % r.capacity
	}

	// notify waiters
	close(r.notifyCh)
	r.notifyCh = make(chan struct{})
	return r.lastSeq
}

// LastSeq returns the most recently assigned sequence (0 before any append).
func (r *Ring) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// CountSince returns how many retained emissions happened strictly after t.
// The count saturates at the ring capacity: once the oldest retained entry
// is itself newer than t, older evicted emissions are unaccounted for.
func (r *Ring) CountSince(t time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size - r.searchLocked(t.UnixMilli())
}

// ReadSince returns up to limit entries appended strictly after sinceMs, in
// append order. limit <= 0 means no limit.
func (r *Ring) ReadSince(sinceMs int64, limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := r.searchLocked(sinceMs)
	n := r.size - first
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(r.start+first+i)%r.capacity])
	}
	return out
}

// searchLocked returns the offset of the first retained entry with
// AtMs > sinceMs. AtMs is nondecreasing, so binary search applies.
func (r *Ring) searchLocked(sinceMs int64) int {
	return sort.Search(r.size, func(i int) bool {
		return r.buf[(r.start+i)%r.capacity].AtMs > sinceMs
	})
}

// WaitForAppend blocks until either a new append occurs or timeout elapses.
// It returns true if woken by an append, false on timeout.
func (r *Ring) WaitForAppend(timeout time.Duration) bool {
	r.mu.Lock()
	ch := r.notifyCh
	r.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
