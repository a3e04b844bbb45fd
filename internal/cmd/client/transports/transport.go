package transports

import "context"

// EmitRequest carries the fields of one typed event emission. Kind selects
// the event constructor server-side; only that kind's fields are read.
type EmitRequest struct {
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`

	Path   string `json:"path,omitempty"`
	Change string `json:"change,omitempty"`

	Success    *bool   `json:"success,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`

	Rule     string `json:"rule,omitempty"`
	Severity string `json:"severity,omitempty"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message,omitempty"`

	AgentType string `json:"agent_type,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Strategy  string `json:"strategy,omitempty"`

	Op string `json:"op,omitempty"`
}

// EmitResult echoes the identity the server assigned to the event.
type EmitResult struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	Priority string `json:"priority"`
}

// TailRequest describes a delivery subscription for the tail command.
type TailRequest struct {
	ClientID      string
	Channels      []string
	MinPriority   string
	Rate          int
	Batch         bool
	BatchMs       int
	Exclude       []string
	MinConfidence float64
	Expression    string
	Reconnect     bool
}

// GenerateResult carries one upstream generation outcome.
type GenerateResult struct {
	Output   string `json:"output"`
	Strategy string `json:"strategy"`
}

// APITransport abstracts the server API used by the CLI.
type APITransport interface {
	Emit(ctx context.Context, req EmitRequest) (EmitResult, error)
	Tail(ctx context.Context, req TailRequest, onMessage func(payload []byte) error) error
	Recent(ctx context.Context, since string, limit int) ([]byte, error)
	Stats(ctx context.Context) ([]byte, error)
	Clients(ctx context.Context) ([]byte, error)
	UpstreamStatus(ctx context.Context) ([]byte, error)
	UpstreamSwitch(ctx context.Context, strategy string) (string, error)
	Generate(ctx context.Context, prompt string) (GenerateResult, error)
	Health(ctx context.Context) (string, error)
}
