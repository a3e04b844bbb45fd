// Package runtime wires config, logging, ID generation, and the shared
// event ring into a single-node Flare instance. It exposes Open/Close,
// basic health checks, and accessors used by higher-level services.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	// Health
//	_ = rt.CheckHealth(context.Background())
//	// Assign an event ID
//	id := rt.NextID()
package runtime
