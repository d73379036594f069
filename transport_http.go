package agentwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go/packages/ssestream"
)

// HTTPTransport implements Transport over a single HTTP endpoint speaking
// newline-delimited "data: <json>" frames (text/event-stream). It is the
// default transport; the core works against any Transport implementation.
type HTTPTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPTransport(endpoint string, apiKey string) *HTTPTransport {
	return &HTTPTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

// SetClient replaces the underlying HTTP client, e.g. to set timeouts.
func (t *HTTPTransport) SetClient(client *http.Client) {
	t.client = client
}

// Open POSTs the turn request and returns the response event stream. The
// request context scopes the whole stream: canceling it rejects in-flight
// reads.
func (t *HTTPTransport) Open(ctx context.Context, req *TurnRequest) (EventStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode turn request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("backend status %d: %s", resp.StatusCode, string(raw))
	}
	return &sseEventStream{decoder: ssestream.NewDecoder(resp)}, nil
}

// sseEventStream adapts the SSE decoder to the EventStream interface. The
// decoder strips the "data:" framing, so Current yields bare payloads.
type sseEventStream struct {
	decoder ssestream.Decoder
	current string
}

func (s *sseEventStream) Next() bool {
	if !s.decoder.Next() {
		return false
	}
	s.current = string(s.decoder.Event().Data)
	return true
}

func (s *sseEventStream) Current() string {
	return s.current
}

func (s *sseEventStream) Err() error {
	return s.decoder.Err()
}

func (s *sseEventStream) Close() error {
	return s.decoder.Close()
}
