package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Generator opens the upstream token stream for one exchange. The returned
// body must be closed by the caller.
type Generator interface {
	OpenStream(ctx context.Context, query string, contextTexts []string) (io.ReadCloser, error)
}

// StatusError is returned when the generation service answers with a
// non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service returned status %d", e.StatusCode)
}

type generationRequest struct {
	Query   string   `json:"query"`
	Context []string `json:"context"`
}

// HTTPGenerator posts to {BaseURL}/api/v1/chat/stream and hands back the
// streamed body as is.
type HTTPGenerator struct {
	BaseURL string
	Client  *http.Client
}

var _ Generator = &HTTPGenerator{}

// NewHTTPGenerator builds a generator with no client-side timeout; the
// stream lives as long as the request context.
func NewHTTPGenerator(baseURL string, transport http.RoundTripper) *HTTPGenerator {
	return &HTTPGenerator{
		BaseURL: baseURL,
		Client:  &http.Client{Transport: transport},
	}
}

func (g *HTTPGenerator) OpenStream(ctx context.Context, query string, contextTexts []string) (io.ReadCloser, error) {
	if contextTexts == nil {
		contextTexts = []string{}
	}
	payload, err := json.Marshal(generationRequest{Query: query, Context: contextTexts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := g.BaseURL + "/api/v1/chat/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	return resp.Body, nil
}
