// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the Flare runtime with its delivery services and HTTP server, handling
// lifecycle and shutdown.
//
// Example:
//
//	opts := serverrun.Options{HTTPAddr: ":8080", ConfigPath: "./flare.yaml"}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
