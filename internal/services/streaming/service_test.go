package streamingsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/flare/internal/config"
	"github.com/rzbill/flare/internal/event"
	"github.com/rzbill/flare/internal/runtime"
)

func newStreamingForTest(t *testing.T, mutate func(*cfgpkg.Config)) *Service {
	t.Helper()
	cfg := cfgpkg.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	svc := New(rt)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

// fakeTransport records frames and can be scripted to fail.
type fakeTransport struct {
	mu        sync.Mutex
	text      [][]byte
	bin       [][]byte
	failTimes int
	err       error
}

func (f *fakeTransport) SendText(data []byte) error  { return f.record(data, false) }
func (f *fakeTransport) SendBytes(data []byte) error { return f.record(data, true) }

func (f *fakeTransport) record(data []byte, bin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.failTimes > 0 {
		f.failTimes--
		return errors.New("scripted send failure")
	}
	cp := append([]byte(nil), data...)
	if bin {
		f.bin = append(f.bin, cp)
	} else {
		f.text = append(f.text, cp)
	}
	return nil
}

func (f *fakeTransport) counts() (text, bin int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.text), len(f.bin)
}

func (f *fakeTransport) total() int {
	text, bin := f.counts()
	return text + bin
}

func (f *fakeTransport) textFrame(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text[i]
}

func (f *fakeTransport) binFrame(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bin[i]
}

// plainPrefs disables batching, compression, and rate limiting so delivery
// tests observe one frame per event.
func plainPrefs(clientID string) ClientPreferences {
	p := DefaultPreferences(clientID)
	p.EnableBatching = false
	p.EnableCompression = false
	p.MaxEventsPerSecond = 0
	return p
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func decodeMessage(t *testing.T, raw []byte) StreamingMessage {
	t.Helper()
	var msg StreamingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func TestEmitCountsStatsAtEmission(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	ctx := context.Background()
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "main.go", "modified")); err != nil {
		t.Fatalf("emit 1: %v", err)
	}
	if err := svc.EmitEvent(ctx, event.NewViolationEvent("linter", event.Violation{Rule: "no-print", Severity: "error", Path: "main.go"})); err != nil {
		t.Fatalf("emit 2: %v", err)
	}
	if err := svc.EmitEvent(ctx, event.NewSystemErrorEvent("core", "flush", "disk full")); err != nil {
		t.Fatalf("emit 3: %v", err)
	}

	st := svc.Stats()
	if st.TotalEventsSent != 3 {
		t.Fatalf("total_events_sent: want 3, got %d", st.TotalEventsSent)
	}
	if st.ConnectedClients != 0 {
		t.Fatalf("connected_clients: want 0, got %d", st.ConnectedClients)
	}
	if st.EventsByType["file_changed"] != 1 || st.EventsByType["violation_detected"] != 1 || st.EventsByType["system_error"] != 1 {
		t.Fatalf("events_by_type: %v", st.EventsByType)
	}
	if st.EventsByPriority["medium"] != 1 || st.EventsByPriority["high"] != 1 || st.EventsByPriority["critical"] != 1 {
		t.Fatalf("events_by_priority: %v", st.EventsByPriority)
	}
	if st.FailedDeliveries != 0 {
		t.Fatalf("failed_deliveries: want 0, got %d", st.FailedDeliveries)
	}
}

func TestSingleEventDelivery(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	if err := svc.RegisterClient("dash", tr, plainPrefs("dash")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.EmitEvent(context.Background(), event.NewFileChangeEvent("watcher", "pkg/a.go", "created")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	waitFor(t, 2*time.Second, "frame", func() bool { return tr.total() == 1 })

	msg := decodeMessage(t, tr.textFrame(0))
	if msg.MessageType != "notification" {
		t.Fatalf("message_type: %q", msg.MessageType)
	}
	if msg.EventType != "file_changed" {
		t.Fatalf("event_type: %q", msg.EventType)
	}
	if msg.SequenceNumber != 1 {
		t.Fatalf("sequence_number: want 1, got %d", msg.SequenceNumber)
	}
	var ev event.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if ev.ID == "" {
		t.Fatalf("event id not assigned")
	}
	fc, ok := ev.Data.(event.FileChange)
	if !ok {
		t.Fatalf("payload type: %T", ev.Data)
	}
	if fc.Path != "pkg/a.go" || fc.Change != "created" {
		t.Fatalf("payload: %+v", fc)
	}
}

func TestSequenceNumbersAdvancePerClient(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	if err := svc.RegisterClient("dash", tr, plainPrefs("dash")); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	waitFor(t, 2*time.Second, "3 frames", func() bool { return tr.total() == 3 })
	for i := 0; i < 3; i++ {
		msg := decodeMessage(t, tr.textFrame(i))
		if msg.SequenceNumber != uint64(i+1) {
			t.Fatalf("frame %d sequence: want %d, got %d", i, i+1, msg.SequenceNumber)
		}
	}
	info := svc.ClientInfo()["dash"]
	if info.SequenceNumber != 3 {
		t.Fatalf("committed sequence: want 3, got %d", info.SequenceNumber)
	}
}

func TestPriorityGate(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	prefs := plainPrefs("dash")
	prefs.MinPriority = event.PriorityHigh
	if err := svc.RegisterClient("dash", tr, prefs); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	// medium priority, below the floor
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
		t.Fatalf("emit medium: %v", err)
	}
	// critical, above it
	if err := svc.EmitEvent(ctx, event.NewSystemErrorEvent("core", "flush", "boom")); err != nil {
		t.Fatalf("emit critical: %v", err)
	}
	waitFor(t, 2*time.Second, "critical frame", func() bool { return tr.total() == 1 })
	msg := decodeMessage(t, tr.textFrame(0))
	if msg.EventType != "system_error" {
		t.Fatalf("event_type: %q", msg.EventType)
	}
	time.Sleep(50 * time.Millisecond)
	if tr.total() != 1 {
		t.Fatalf("medium event leaked through priority gate")
	}
}

func TestChannelSubscription(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	analysisOnly := &fakeTransport{}
	everything := &fakeTransport{}

	prefs := plainPrefs("analyst")
	prefs.EnabledChannels = []event.Channel{event.ChannelAnalysis}
	if err := svc.RegisterClient("analyst", analysisOnly, prefs); err != nil {
		t.Fatalf("register analyst: %v", err)
	}
	if err := svc.RegisterClient("firehose", everything, plainPrefs("firehose")); err != nil {
		t.Fatalf("register firehose: %v", err)
	}

	ctx := context.Background()
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
		t.Fatalf("emit file: %v", err)
	}
	if err := svc.EmitEvent(ctx, event.NewAnalysisEvent("analyzer", true, event.Analysis{Path: "a.go", Summary: "ok"})); err != nil {
		t.Fatalf("emit analysis: %v", err)
	}

	waitFor(t, 2*time.Second, "wildcard frames", func() bool { return everything.total() == 2 })
	waitFor(t, 2*time.Second, "analysis frame", func() bool { return analysisOnly.total() == 1 })
	msg := decodeMessage(t, analysisOnly.textFrame(0))
	if msg.EventType != "analysis_completed" {
		t.Fatalf("event_type: %q", msg.EventType)
	}
}

func TestRateLimitCapsWindow(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	prefs := plainPrefs("dash")
	prefs.MaxEventsPerSecond = 2
	if err := svc.RegisterClient("dash", tr, prefs); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	waitFor(t, 2*time.Second, "2 frames", func() bool { return tr.total() == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := tr.total(); got != 2 {
		t.Fatalf("rate limit: want 2 frames, got %d", got)
	}
	// stats count emissions, not deliveries
	if st := svc.Stats(); st.TotalEventsSent != 3 {
		t.Fatalf("total_events_sent: want 3, got %d", st.TotalEventsSent)
	}
}

func TestBatchTimerFlush(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	prefs := plainPrefs("dash")
	prefs.EnableBatching = true
	prefs.BatchInterval = 60 * time.Millisecond
	if err := svc.RegisterClient("dash", tr, prefs); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	waitFor(t, 2*time.Second, "batch frame", func() bool { return tr.total() == 1 })

	msg := decodeMessage(t, tr.textFrame(0))
	if msg.EventType != "batch" {
		t.Fatalf("event_type: %q", msg.EventType)
	}
	if msg.SequenceNumber != 1 {
		t.Fatalf("batch sequence: want 1, got %d", msg.SequenceNumber)
	}
	var bd BatchData
	if err := json.Unmarshal(msg.Data, &bd); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if bd.Count != 3 || len(bd.Events) != 3 {
		t.Fatalf("batch count: want 3, got count=%d len=%d", bd.Count, len(bd.Events))
	}
}

func TestBatchCapFlushesSynchronously(t *testing.T) {
	svc := newStreamingForTest(t, func(c *cfgpkg.Config) { c.Streaming.BatchMaxEvents = 3 })
	tr := &fakeTransport{}
	prefs := plainPrefs("dash")
	prefs.EnableBatching = true
	prefs.BatchInterval = 10 * time.Second // timer must not be what flushes
	if err := svc.RegisterClient("dash", tr, prefs); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	waitFor(t, time.Second, "cap flush", func() bool { return tr.total() == 1 })
	msg := decodeMessage(t, tr.textFrame(0))
	var bd BatchData
	if err := json.Unmarshal(msg.Data, &bd); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if bd.Count != 3 {
		t.Fatalf("batch count: want 3, got %d", bd.Count)
	}
	if n := svc.batcher.pendingCount("dash"); n != 0 {
		t.Fatalf("pending after cap flush: want 0, got %d", n)
	}
}

func TestBatchingDisabledSendsSingles(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	if err := svc.RegisterClient("dash", tr, plainPrefs("dash")); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
		t.Fatalf("emit 1: %v", err)
	}
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "b.go", "modified")); err != nil {
		t.Fatalf("emit 2: %v", err)
	}
	waitFor(t, 2*time.Second, "2 frames", func() bool { return tr.total() == 2 })
	for i := 0; i < 2; i++ {
		if msg := decodeMessage(t, tr.textFrame(i)); msg.EventType != "file_changed" {
			t.Fatalf("frame %d event_type: %q", i, msg.EventType)
		}
	}
}

func TestCompressedDeliveryUsesBinaryFrames(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	prefs := plainPrefs("dash")
	prefs.EnableCompression = true
	if err := svc.RegisterClient("dash", tr, prefs); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()

	// small payload stays a text frame
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
		t.Fatalf("emit small: %v", err)
	}
	waitFor(t, 2*time.Second, "text frame", func() bool {
		text, _ := tr.counts()
		return text == 1
	})

	// large repetitive payload compresses and ships binary
	big := event.NewAnalysisEvent("analyzer", true, event.Analysis{
		Path:    "a.go",
		Summary: strings.Repeat("all checks passed without findings; ", 200),
	})
	if err := svc.EmitEvent(ctx, big); err != nil {
		t.Fatalf("emit big: %v", err)
	}
	waitFor(t, 2*time.Second, "binary frame", func() bool {
		_, bin := tr.counts()
		return bin == 1
	})

	raw, err := NewCompressionManager(0, 0).Decompress(tr.binFrame(0))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	msg := decodeMessage(t, raw)
	if msg.EventType != "analysis_completed" {
		t.Fatalf("event_type: %q", msg.EventType)
	}
	if msg.SequenceNumber != 2 {
		t.Fatalf("sequence: want 2, got %d", msg.SequenceNumber)
	}
}

func TestSendFailureIsolatesClient(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	bad := &fakeTransport{err: errors.New("connection reset")}
	good := &fakeTransport{}
	if err := svc.RegisterClient("bad", bad, plainPrefs("bad")); err != nil {
		t.Fatalf("register bad: %v", err)
	}
	if err := svc.RegisterClient("good", good, plainPrefs("good")); err != nil {
		t.Fatalf("register good: %v", err)
	}
	ctx := context.Background()
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	waitFor(t, 2*time.Second, "healthy delivery", func() bool { return good.total() == 1 })
	waitFor(t, 2*time.Second, "bad client deactivated", func() bool {
		return !svc.ClientInfo()["bad"].Active
	})

	st := svc.Stats()
	if st.FailedDeliveries != 1 {
		t.Fatalf("failed_deliveries: want 1, got %d", st.FailedDeliveries)
	}
	if st.ConnectedClients != 1 {
		t.Fatalf("connected_clients: want 1, got %d", st.ConnectedClients)
	}

	// an inactive client is skipped, not retried
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "b.go", "modified")); err != nil {
		t.Fatalf("emit 2: %v", err)
	}
	waitFor(t, 2*time.Second, "second healthy delivery", func() bool { return good.total() == 2 })
	if st := svc.Stats(); st.FailedDeliveries != 1 {
		t.Fatalf("failed_deliveries after skip: want 1, got %d", st.FailedDeliveries)
	}
}

func TestUnregisterClearsPendingBatch(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	prefs := plainPrefs("dash")
	prefs.EnableBatching = true
	prefs.BatchInterval = 10 * time.Second
	if err := svc.RegisterClient("dash", tr, prefs); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.EmitEvent(context.Background(), event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	waitFor(t, 2*time.Second, "pending batch", func() bool { return svc.batcher.pendingCount("dash") == 1 })

	svc.UnregisterClient("dash")
	if n := svc.batcher.pendingCount("dash"); n != 0 {
		t.Fatalf("pending after unregister: want 0, got %d", n)
	}
	if len(svc.ClientInfo()) != 0 {
		t.Fatalf("client info not cleared")
	}
	if tr.total() != 0 {
		t.Fatalf("unexpected frame after unregister")
	}
}

func TestUpdateClientPreferences(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	if err := svc.RegisterClient("dash", tr, plainPrefs("dash")); err != nil {
		t.Fatalf("register: %v", err)
	}
	next := plainPrefs("dash")
	next.MinPriority = event.PriorityCritical
	if err := svc.UpdateClientPreferences("dash", next); err != nil {
		t.Fatalf("update: %v", err)
	}
	ctx := context.Background()
	if err := svc.EmitEvent(ctx, event.NewViolationEvent("linter", event.Violation{Rule: "r", Severity: "error", Path: "a.go"})); err != nil {
		t.Fatalf("emit high: %v", err)
	}
	if err := svc.EmitEvent(ctx, event.NewSystemErrorEvent("core", "flush", "boom")); err != nil {
		t.Fatalf("emit critical: %v", err)
	}
	waitFor(t, 2*time.Second, "critical frame", func() bool { return tr.total() == 1 })
	if msg := decodeMessage(t, tr.textFrame(0)); msg.EventType != "system_error" {
		t.Fatalf("event_type: %q", msg.EventType)
	}

	if err := svc.UpdateClientPreferences("ghost", plainPrefs("ghost")); err == nil {
		t.Fatalf("expected error for unknown client")
	}
}

func TestRegisterReplacesExistingClient(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	first := &fakeTransport{}
	second := &fakeTransport{}
	if err := svc.RegisterClient("dash", first, plainPrefs("dash")); err != nil {
		t.Fatalf("register 1: %v", err)
	}
	session1 := svc.ClientInfo()["dash"].SessionID
	if err := svc.RegisterClient("dash", second, plainPrefs("dash")); err != nil {
		t.Fatalf("register 2: %v", err)
	}
	info := svc.ClientInfo()
	if len(info) != 1 {
		t.Fatalf("want 1 client, got %d", len(info))
	}
	if info["dash"].SessionID == session1 {
		t.Fatalf("session id not rotated on re-register")
	}
	if err := svc.EmitEvent(context.Background(), event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	waitFor(t, 2*time.Second, "frame on new transport", func() bool { return second.total() == 1 })
	if first.total() != 0 {
		t.Fatalf("frame leaked to replaced transport")
	}
}

func TestCustomFilterExcludePatterns(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	prefs := plainPrefs("dash")
	prefs.CustomFilters = map[string]any{"exclude_file_patterns": []string{".log", "vendor/"}}
	if err := svc.RegisterClient("dash", tr, prefs); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "app.log", "modified")); err != nil {
		t.Fatalf("emit excluded: %v", err)
	}
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "vendor/dep/a.go", "modified")); err != nil {
		t.Fatalf("emit vendored: %v", err)
	}
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "main.go", "modified")); err != nil {
		t.Fatalf("emit kept: %v", err)
	}
	waitFor(t, 2*time.Second, "kept frame", func() bool { return tr.total() == 1 })
	var ev event.Event
	msg := decodeMessage(t, tr.textFrame(0))
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if path, _ := ev.FilePath(); path != "main.go" {
		t.Fatalf("delivered path: %q", path)
	}
}

func TestCustomFilterMinConfidence(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	prefs := plainPrefs("dash")
	prefs.CustomFilters = map[string]any{"min_confidence": 0.8}
	if err := svc.RegisterClient("dash", tr, prefs); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	low := event.NewViolationEvent("linter", event.Violation{Rule: "r", Severity: "error", Path: "a.go", Confidence: 0.4})
	high := event.NewViolationEvent("linter", event.Violation{Rule: "r", Severity: "error", Path: "b.go", Confidence: 0.9})
	// no confidence on file events, so the gate does not apply
	plain := event.NewFileChangeEvent("watcher", "c.go", "modified")
	for i, ev := range []event.Event{low, high, plain} {
		if err := svc.EmitEvent(ctx, ev); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	waitFor(t, 2*time.Second, "2 frames", func() bool { return tr.total() == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := tr.total(); got != 2 {
		t.Fatalf("want 2 frames, got %d", got)
	}
}

func TestCustomFilterExpression(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	tr := &fakeTransport{}
	prefs := plainPrefs("dash")
	prefs.CustomFilters = map[string]any{"expression": `channel == "analysis" && priority >= 2`}
	if err := svc.RegisterClient("dash", tr, prefs); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	if err := svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
		t.Fatalf("emit file: %v", err)
	}
	if err := svc.EmitEvent(ctx, event.NewAnalysisEvent("analyzer", true, event.Analysis{Path: "a.go", Summary: "ok"})); err != nil {
		t.Fatalf("emit analysis: %v", err)
	}
	waitFor(t, 2*time.Second, "analysis frame", func() bool { return tr.total() == 1 })
	if msg := decodeMessage(t, tr.textFrame(0)); msg.EventType != "analysis_completed" {
		t.Fatalf("event_type: %q", msg.EventType)
	}
}

func TestRegisterRejectsBadExpression(t *testing.T) {
	svc := newStreamingForTest(t, nil)
	prefs := plainPrefs("dash")
	prefs.CustomFilters = map[string]any{"expression": `channel ==`}
	if err := svc.RegisterClient("dash", &fakeTransport{}, prefs); err == nil {
		t.Fatalf("expected compile error")
	}
	if len(svc.ClientInfo()) != 0 {
		t.Fatalf("rejected client was registered")
	}
}

func TestStopRejectsEmit(t *testing.T) {
	cfg := cfgpkg.Default()
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	svc := New(rt)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	err = svc.EmitEvent(context.Background(), event.NewFileChangeEvent("watcher", "a.go", "modified"))
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("want ErrQueueClosed, got %v", err)
	}
	// idempotent
	if err := svc.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestEmitBackpressureRespectsContext(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Streaming.QueueCapacity = 1
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	// never started: nothing drains the queue
	svc := New(rt)
	t.Cleanup(func() { _ = svc.Stop() })

	if err := svc.EmitEvent(context.Background(), event.NewFileChangeEvent("watcher", "a.go", "modified")); err != nil {
		t.Fatalf("emit 1: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "b.go", "modified"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want context deadline, got %v", err)
	}
}
