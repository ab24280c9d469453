package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/answerflow/types"
)

// TestHTTPSearcherRoundTrip verifies the request body carries the query and
// filters and the response sections decode into the canonical shape.
func TestHTTPSearcherRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body httpSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "who made excel", body.Query)
		assert.Equal(t, []string{"doc"}, body.Filters.SourceTypes)

		fmt.Fprint(w, `{"sections":[
			{"document_id":"doc-excel","chunk":0,"content":"Microsoft released Excel in 1985.","score":0.91,"title":"Excel"},
			{"document_id":"doc-office","chunk":2,"content":"Office bundles Word and PowerPoint.","score":0.55}
		]}`)
	}))
	defer srv.Close()

	s := NewHTTPSearcher(HTTPSearcherConfig{Endpoint: srv.URL, APIKey: "sk-test"})
	sections, err := s.Search(context.Background(), "who made excel", Filters{SourceTypes: []string{"doc"}})
	require.NoError(t, err)

	require.Len(t, sections, 2)
	assert.Equal(t, "doc-excel", sections[0].DocumentID)
	assert.Equal(t, 0.91, sections[0].Score)
	assert.Equal(t, 2, sections[1].Chunk)
}

// TestHTTPSearcherServerError verifies 5xx maps to a retryable retrieval
// error and 4xx to a non-retryable one.
func TestHTTPSearcherServerError(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := NewHTTPSearcher(HTTPSearcherConfig{Endpoint: srv.URL})

	_, err := s.Search(context.Background(), "q", Filters{})
	require.Error(t, err)
	assert.Equal(t, types.ErrRetrieval, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))

	status = http.StatusBadRequest
	_, err = s.Search(context.Background(), "q", Filters{})
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
}

// TestHTTPSearcherUnreachable verifies transport failures are retryable
// retrieval errors.
func TestHTTPSearcherUnreachable(t *testing.T) {
	s := NewHTTPSearcher(HTTPSearcherConfig{Endpoint: "http://127.0.0.1:1"})
	_, err := s.Search(context.Background(), "q", Filters{})
	require.Error(t, err)
	assert.Equal(t, types.ErrRetrieval, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}
