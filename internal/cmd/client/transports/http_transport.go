// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	streamingsvc "github.com/rzbill/flare/internal/services/streaming"
)

// HTTPTransport implements APITransport over the server's REST and SSE
// surface.
type HTTPTransport struct {
	baseURL func() string
	client  *http.Client
}

// NewHTTPTransport constructs a new HTTPTransport using the provided base
// URL source.
func NewHTTPTransport(baseURL func() string) *HTTPTransport {
	return &HTTPTransport{baseURL: baseURL, client: http.DefaultClient}
}

func (t *HTTPTransport) postJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL()+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (t *HTTPTransport) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL()+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

// apiError lifts the server's JSON error body into an error value.
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
		return fmt.Errorf("http %s: %s", resp.Status, body.Error)
	}
	return fmt.Errorf("http error: %s", resp.Status)
}

// Emit posts one typed event.
func (t *HTTPTransport) Emit(ctx context.Context, req EmitRequest) (EmitResult, error) {
	var res EmitResult
	if err := t.postJSON(ctx, "/v1/events/emit", req, &res); err != nil {
		return EmitResult{}, err
	}
	return res, nil
}

// Tail subscribes over SSE and invokes onMessage for each delivered
// envelope until ctx ends or the callback returns an error.
func (t *HTTPTransport) Tail(ctx context.Context, req TailRequest, onMessage func(payload []byte) error) error {
	q := url.Values{}
	q.Set("client_id", req.ClientID)
	if len(req.Channels) > 0 {
		q.Set("channels", strings.Join(req.Channels, ","))
	}
	if req.MinPriority != "" {
		q.Set("min_priority", req.MinPriority)
	}
	q.Set("rate", strconv.Itoa(req.Rate))
	q.Set("batch", strconv.FormatBool(req.Batch))
	if req.BatchMs > 0 {
		q.Set("batch_ms", strconv.Itoa(req.BatchMs))
	}
	if len(req.Exclude) > 0 {
		q.Set("exclude", strings.Join(req.Exclude, ","))
	}
	if req.MinConfidence > 0 {
		q.Set("min_confidence", strconv.FormatFloat(req.MinConfidence, 'f', -1, 64))
	}
	if req.Expression != "" {
		q.Set("expression", req.Expression)
	}
	if req.Reconnect {
		q.Set("reconnect", "true")
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL()+"/v1/stream/sse?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(hreq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	reader := bufio.NewReader(resp.Body)
	eventName := ""
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			eventName = ""
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			switch eventName {
			case "error":
				return fmt.Errorf("stream error: %s", data)
			case "compressed":
				raw, err := base64.StdEncoding.DecodeString(string(data))
				if err != nil {
					return fmt.Errorf("decode compressed frame: %w", err)
				}
				if data, err = streamingsvc.NewCompressionManager(0, 0).Decompress(raw); err != nil {
					return fmt.Errorf("decompress frame: %w", err)
				}
			}
			if err := onMessage(data); err != nil {
				return err
			}
		}
	}
}

// Recent fetches the recent-event index.
func (t *HTTPTransport) Recent(ctx context.Context, since string, limit int) ([]byte, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/events/recent"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	return t.getRaw(ctx, path)
}

// Stats fetches the delivery statistics snapshot.
func (t *HTTPTransport) Stats(ctx context.Context) ([]byte, error) {
	return t.getRaw(ctx, "/v1/stats")
}

// Clients fetches the client session snapshot.
func (t *HTTPTransport) Clients(ctx context.Context) ([]byte, error) {
	return t.getRaw(ctx, "/v1/clients")
}

// UpstreamStatus fetches the breaker and strategy snapshot.
func (t *HTTPTransport) UpstreamStatus(ctx context.Context) ([]byte, error) {
	return t.getRaw(ctx, "/v1/upstream/health")
}

// UpstreamSwitch forces the active strategy and returns the new one.
func (t *HTTPTransport) UpstreamSwitch(ctx context.Context, strategy string) (string, error) {
	var res struct {
		Active string `json:"active"`
	}
	if err := t.postJSON(ctx, "/v1/upstream/switch", map[string]string{"strategy": strategy}, &res); err != nil {
		return "", err
	}
	return res.Active, nil
}

// Generate runs one generation through the active strategy.
func (t *HTTPTransport) Generate(ctx context.Context, prompt string) (GenerateResult, error) {
	var res GenerateResult
	if err := t.postJSON(ctx, "/v1/upstream/generate", map[string]string{"prompt": prompt}, &res); err != nil {
		return GenerateResult{}, err
	}
	return res, nil
}

// Health checks the server health endpoint.
func (t *HTTPTransport) Health(ctx context.Context) (string, error) {
	var res struct {
		Status string `json:"status"`
	}
	raw, err := t.getRaw(ctx, "/v1/healthz")
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", err
	}
	return res.Status, nil
}
