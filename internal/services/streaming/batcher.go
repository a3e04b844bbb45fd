package streamingsvc

import (
	"sync"
	"time"

	"github.com/rzbill/flare/internal/event"
)

// defaultBatchInterval applies when batching is enabled but the client
// left the interval unset.
const defaultBatchInterval = 500 * time.Millisecond

// pendingBatch buffers filtered events for one client until the flush
// timer fires or the size cap is reached. At most one timer is
// outstanding per client, anchored to the first buffered event and never
// reset by later adds.
type pendingBatch struct {
	events []event.Event
	timer  *time.Timer
}

// eventBatcher owns per-client pending batches. Timers never touch batch
// state themselves; they push the client id into flushCh and the delivery
// loop performs the flush, so ready batches always leave through the same
// code path.
type eventBatcher struct {
	flushCh   chan<- string
	done      <-chan struct{}
	maxEvents int

	mu      sync.Mutex
	pending map[string]*pendingBatch
}

func newEventBatcher(flushCh chan<- string, done <-chan struct{}, maxEvents int) *eventBatcher {
	if maxEvents <= 0 {
		maxEvents = 20
	}
	return &eventBatcher{
		flushCh:   flushCh,
		done:      done,
		maxEvents: maxEvents,
		pending:   map[string]*pendingBatch{},
	}
}

// add buffers ev for clientID per prefs. A non-nil return is a batch that
// must be delivered now; nil means the event was buffered and will flush
// when the window closes.
func (b *eventBatcher) add(clientID string, ev event.Event, prefs ClientPreferences) []event.Event {
	if !prefs.EnableBatching {
		return []event.Event{ev}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pb := b.pending[clientID]
	if pb == nil {
		pb = &pendingBatch{}
		b.pending[clientID] = pb
	}
	pb.events = append(pb.events, ev)
	if len(pb.events) >= b.maxEvents {
		return b.takeLocked(clientID)
	}
	if pb.timer == nil {
		interval := prefs.BatchInterval
		if interval <= 0 {
			interval = defaultBatchInterval
		}
		id := clientID
		pb.timer = time.AfterFunc(interval, func() {
			select {
			case b.flushCh <- id:
			case <-b.done:
			}
		})
	}
	return nil
}

// take removes and returns the client's pending events, stopping any
// scheduled timer. It returns nil when nothing is pending, which makes
// stale flush signals harmless.
func (b *eventBatcher) take(clientID string) []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.takeLocked(clientID)
}

func (b *eventBatcher) takeLocked(clientID string) []event.Event {
	pb := b.pending[clientID]
	if pb == nil {
		return nil
	}
	if pb.timer != nil {
		pb.timer.Stop()
	}
	delete(b.pending, clientID)
	if len(pb.events) == 0 {
		return nil
	}
	return pb.events
}

// cancel drops the client's pending batch without delivering it.
func (b *eventBatcher) cancel(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pb := b.pending[clientID]
	if pb == nil {
		return
	}
	if pb.timer != nil {
		pb.timer.Stop()
	}
	delete(b.pending, clientID)
}

// cancelAll stops every outstanding timer and drops all pending batches.
// Called on shutdown.
func (b *eventBatcher) cancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, pb := range b.pending {
		if pb.timer != nil {
			pb.timer.Stop()
		}
		delete(b.pending, id)
	}
}

// pendingCount reports the number of buffered events for a client.
func (b *eventBatcher) pendingCount(clientID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	pb := b.pending[clientID]
	if pb == nil {
		return 0
	}
	return len(pb.events)
}
