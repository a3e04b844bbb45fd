// Package httpserver provides the REST and streaming gateway for Flare:
// JSON endpoints for event ingestion, stats, client sessions and the
// upstream strategy surface, plus WebSocket and SSE delivery transports
// and the Prometheus scrape endpoint.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	streaming := streamingsvc.New(rt)
//	_ = streaming.Start(context.Background())
//	s := httpserver.New(rt, streaming, upstream)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
