package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Success(t *testing.T) {
	t.Parallel()

	want := ReadResponse{
		Code: 200,
		Data: ReadData{
			Title:   "Raul Julia - Wikipedia",
			URL:     "https://en.wikipedia.org/wiki/Raul_Julia",
			Content: "# Raul Julia\n\nJulia died of complications from a stroke in 1994.",
			Usage:   ReadUsage{Tokens: 1840},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://en.wikipedia.org/wiki/Raul_Julia", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://en.wikipedia.org/wiki/Raul_Julia")

	require.NoError(t, err)
	assert.Equal(t, want.Data.Title, got.Data.Title)
	assert.Equal(t, want.Data.Content, got.Data.Content)
	assert.Equal(t, want.Data.Usage.Tokens, got.Data.Usage.Tokens)
}

func TestRead_RetryOn429ThenSuccess(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ReadResponse{Code: 200, Data: ReadData{Title: "John Candy"}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://en.wikipedia.org/wiki/John_Candy")

	require.NoError(t, err)
	assert.Equal(t, "John Candy", got.Data.Title)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRead_RetryExhausted(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://en.wikipedia.org/wiki/River_Phoenix")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRead_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://en.wikipedia.org/wiki/Raul_Julia")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestRead_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(ctx, "https://en.wikipedia.org/wiki/Raul_Julia")
	require.Error(t, err)
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	want := SearchResponse{
		Code: 200,
		Data: []SearchResult{
			{
				Title:       "John Candy obituary",
				URL:         "https://example.com/obituaries/john-candy",
				Content:     "Candy died of a heart attack in Durango, Mexico.",
				Description: "Obituary for the actor John Candy",
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-Return-Format"))
		assert.Equal(t, "John Candy death 1994", r.URL.Query().Get("q"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "John Candy death 1994")

	require.NoError(t, err)
	require.Len(t, got.Data, 1)
	assert.Equal(t, want.Data[0].Title, got.Data[0].Title)
	assert.Equal(t, want.Data[0].URL, got.Data[0].URL)
}

func TestSearch_SiteFilterScopesQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "site:findagrave.com John Candy death 1994", r.URL.Query().Get("q"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SearchResponse{Code: 200})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "John Candy death 1994", WithSiteFilter("findagrave.com"))
	require.NoError(t, err)
}

func TestSearch_NoResultsIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":422,"message":"no results"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "Completely Unknown Performer death")

	require.NoError(t, err)
	assert.Equal(t, 422, got.Code)
	assert.Empty(t, got.Data)
}

func TestSearch_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "Raul Julia death")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient("my-key")
	hc := c.(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, "https://r.jina.ai", hc.baseURL)
	assert.Equal(t, "https://s.jina.ai", hc.searchBaseURL)
	assert.Equal(t, 30*time.Second, hc.http.Timeout)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()

	custom := &http.Client{}
	c := NewClient("test-key", WithHTTPClient(custom))
	assert.Same(t, custom, c.(*httpClient).http)
}
