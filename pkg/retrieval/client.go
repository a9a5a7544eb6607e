package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"graphrag-gateway/internal/pkg/logger"
)

const (
	// ResultLimit is the number of results the chat flow asks for.
	ResultLimit = 5

	logModule = "RetrievalBridge"
)

// Citation identifies the document section behind one retrieved fragment.
type Citation struct {
	DocumentID string  `json:"document_id"`
	FileName   string  `json:"file_name"`
	Heading    string  `json:"heading"`
	Score      float64 `json:"score"`
}

// FailureObserver is told about every absorbed failure. Metrics hook in here.
type FailureObserver func(reason string)

type Client struct {
	BaseURL   string
	Client    *http.Client
	logger    logger.ILogger
	onFailure FailureObserver
}

func NewClient(baseURL string, timeout time.Duration, transport http.RoundTripper, log logger.ILogger) *Client {
	return &Client{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: log,
	}
}

func (c *Client) OnFailure(fn FailureObserver) {
	c.onFailure = fn
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Data struct {
		Results []json.RawMessage `json:"results"`
	} `json:"data"`
}

// FetchContext asks the retrieval service for at most limit results. It never
// fails: any problem is logged and answered with empty fragments and citations
// so the chat can go ahead without context.
func (c *Client) FetchContext(ctx context.Context, query string, limit int) ([]string, []Citation) {
	body, err := c.search(ctx, query, limit)
	if err != nil {
		c.logger.Warn(logModule, "Retrieval search failed, proceeding without context", map[string]interface{}{
			"error": err.Error(),
		})
		if c.onFailure != nil {
			c.onFailure(failureReason(err))
		}
		return []string{}, []Citation{}
	}

	fragments, citations := extractResults(body)
	c.logger.Debug(logModule, "Retrieved context", map[string]interface{}{
		"fragments": len(fragments),
		"citations": len(citations),
	})
	return fragments, citations
}

type unavailableError struct{ err error }

func (e *unavailableError) Error() string { return e.err.Error() }
func (e *unavailableError) Unwrap() error { return e.err }

type malformedError struct{ err error }

func (e *malformedError) Error() string { return e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

func failureReason(err error) string {
	switch err.(type) {
	case *malformedError:
		return "malformed"
	default:
		return "unavailable"
	}
}

func (c *Client) search(ctx context.Context, query string, limit int) (*searchResponse, error) {
	payload, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, &malformedError{fmt.Errorf("marshal search request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/search", bytes.NewReader(payload))
	if err != nil {
		return nil, &unavailableError{fmt.Errorf("create search request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &unavailableError{fmt.Errorf("search request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &unavailableError{fmt.Errorf("read search response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &unavailableError{fmt.Errorf("search returned status %d", resp.StatusCode)}
	}

	var body searchResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, &malformedError{fmt.Errorf("decode search response: %w", err)}
	}
	return &body, nil
}

// extractResults pulls text fragments and citations out of a search body.
// Items are decoded one at a time: an item without a payload key is
// skipped, missing or mistyped fields fall back to zero values, and empty
// text adds a citation but no fragment.
func extractResults(body *searchResponse) ([]string, []Citation) {
	fragments := []string{}
	citations := []Citation{}
	if body == nil {
		return fragments, citations
	}

	for _, rawItem := range body.Data.Results {
		var item map[string]json.RawMessage
		if err := json.Unmarshal(rawItem, &item); err != nil {
			continue
		}
		rawPayload, ok := item["payload"]
		if !ok {
			continue
		}
		// null or a non-object payload leaves every field at its zero value.
		var payload map[string]json.RawMessage
		_ = json.Unmarshal(rawPayload, &payload)

		if text := stringField(payload, "text"); text != "" {
			fragments = append(fragments, text)
		}

		citations = append(citations, Citation{
			DocumentID: stringField(payload, "document_id"),
			FileName:   stringField(payload, "file_name"),
			Heading:    stringField(payload, "heading"),
			Score:      numberField(item, "score"),
		})
	}

	return fragments, citations
}

func stringField(obj map[string]json.RawMessage, key string) string {
	var s string
	if err := json.Unmarshal(obj[key], &s); err != nil {
		return ""
	}
	return s
}

func numberField(obj map[string]json.RawMessage, key string) float64 {
	var f float64
	if err := json.Unmarshal(obj[key], &f); err != nil {
		return 0
	}
	return f
}
