package client

import (
	"encoding/json"
	"os"

	transports "github.com/rzbill/flare/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// BaseURLFromEnv returns the HTTP API base URL from FLARE_HTTP or a default.
func BaseURLFromEnv() string {
	if v := os.Getenv("FLARE_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

func getTransport(baseURL BaseURLFunc) transports.APITransport {
	return transports.NewHTTPTransport(baseURL)
}

// printJSON re-indents a raw JSON response for terminal output. Non-JSON
// bodies are written through unchanged.
func printJSON(cmd *cobra.Command, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		_, werr := cmd.OutOrStdout().Write(raw)
		return werr
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
