// Package client provides the `flare` command-line client.
//
// The CLI talks to the Flare HTTP API to emit events, follow the live
// delivery stream, and inspect service state from a terminal. It is
// primarily intended for developers and operators.
//
// Installation
//
//	go install github.com/rzbill/flare/cmd/flare@latest
//
// Or build from this repo and use the embedded `flare` binary.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it is
// read from the FLARE_HTTP environment variable and defaults to
// http://127.0.0.1:8080.
//
// Usage
//
//	flare events emit --kind file --path src/main.go --change modified
//
//	flare events emit --kind violation \
//	    --rule no-unused-vars --severity error \
//	    --path src/main.go --line 42 --message "x is unused"
//
//	flare events emit --kind analysis --failed --path src/main.go
//
//	# Follow deliveries as a subscribed client (SSE)
//	flare events tail --client-id dev --channels violations,analysis \
//	    --min-priority medium --rate 20
//
//	# Batched deliveries with a 250ms flush window
//	flare events tail --client-id dev --batch --batch-ms 250
//
//	# Resume the previous session after a drop
//	flare events tail --client-id dev --reconnect
//
//	flare events recent --since 2026-08-30T12:00:00Z --limit 50
//
//	flare stats
//	flare clients
//	flare health
//
//	flare upstream status
//	flare upstream switch --strategy secondary
//	flare upstream generate --prompt "summarize the last violation"
//
// Notes
//
//   - tail attaches to the server's SSE transport as a normal delivery
//     client, so filtering, rate limiting, and batching all apply to what
//     it prints. Each line is one wire envelope.
//   - emit sends typed events; priority and channel are fixed server-side
//     by the event constructors and cannot be overridden from the CLI.
//   - tail with --reconnect restores the session registered under the same
//     --client-id, including its sequence numbering.
package client
