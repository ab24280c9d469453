package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/answerflow/types"
)

// HTTPSearcherConfig configures an HTTPSearcher.
type HTTPSearcherConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPSearcher queries a remote search service over HTTP. The service
// receives a JSON body {query, filters} via POST and responds with
// {"sections": [...]} using the RetrievedSection wire shape.
type HTTPSearcher struct {
	cfg    HTTPSearcherConfig
	client *http.Client
}

type httpSearchRequest struct {
	Query   string  `json:"query"`
	Filters Filters `json:"filters,omitempty"`
}

type httpSearchResponse struct {
	Sections []types.RetrievedSection `json:"sections"`
}

// NewHTTPSearcher creates a searcher for the given endpoint.
func NewHTTPSearcher(cfg HTTPSearcherConfig) *HTTPSearcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSearcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSearcher) Search(ctx context.Context, query string, filters Filters) ([]types.RetrievedSection, error) {
	payload, err := json.Marshal(httpSearchRequest{Query: query, Filters: filters})
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrRetrieval, err.Error()).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		e := types.NewError(types.ErrRetrieval, string(body))
		if resp.StatusCode >= 500 {
			e = e.WithRetryable(true)
		}
		return nil, e
	}

	var out httpSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrRetrieval, err.Error()).WithCause(err)
	}
	return out.Sections, nil
}
