// Package streamingsvc implements the event delivery engine: typed events
// flow through a bounded ingestion queue into a single delivery loop that
// filters, batches, compresses, and sends to each registered client's
// transport. Disconnected sessions are retained for a grace period and can
// be restored with Reconnect.
//
// Example:
//
//	svc := streamingsvc.New(rt)
//	_ = svc.Start(ctx)
//	_ = svc.RegisterClient("dash-1", conn, streamingsvc.DefaultPreferences("dash-1"))
//	_ = svc.EmitEvent(ctx, event.NewFileChangeEvent("watcher", "main.go", "modified"))
//	// ...
//	_ = svc.Stop()
package streamingsvc

// Tuning notes
//
// Ingestion
//   - FLARE_QUEUE_CAPACITY: ingestion queue length. Emitters block when it
//     fills, so size it for the burstiest producer. Depth is exported as
//     the flare_event_queue_depth gauge.
//
// Batching
//   - FLARE_BATCH_MAX_EVENTS: synchronous flush threshold per client. The
//     flush timer is armed by the first event of a batch and never reset
//     by later ones, so worst-case latency stays at one batch interval.
//   - Per-client interval comes from ClientPreferences.BatchInterval.
//
// Compression
//   - FLARE_COMPRESS_MIN_BYTES / FLARE_COMPRESS_MIN_SAVINGS: payloads below
//     the size floor, or that zstd cannot shrink by the savings ratio, go
//     out uncompressed. Realized savings feed the
//     flare_compression_savings_ratio histogram.
//
// Reconnection
//   - FLARE_RECONNECT_ATTEMPTS / FLARE_RECONNECT_BACKOFF_MS: attempt budget
//     and backoff base for Reconnect.
//   - FLARE_RECONNECT_GRACE_MS: how long disconnected state is retained
//     before the sweeper evicts it.
