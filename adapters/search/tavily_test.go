package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestNewTavilySearcherRequiresKey(t *testing.T) {
	if _, err := NewTavilySearcher(TavilyConfig{}, zaptest.NewLogger(t)); err == nil {
		t.Error("expected error when API key is missing")
	}
}

func TestSearchReturnsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"天氣預報","url":"https://example.com/weather","content":"明天晴時多雲"},
			{"title":"氣象局","url":"https://example.com/cwa","content":"氣溫 28 度"}
		]}`))
	}))
	defer server.Close()

	s, err := NewTavilySearcher(TavilyConfig{APIKey: "test-key", APIBaseURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewTavilySearcher failed: %v", err)
	}

	results, err := s.Search(context.Background(), "明天天氣")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "天氣預報" || results[0].Content != "明天晴時多雲" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"results":[{"title":"t","url":"u","content":"c"}]}`))
	}))
	defer server.Close()

	s, err := NewTavilySearcher(TavilyConfig{APIKey: "test-key", APIBaseURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewTavilySearcher failed: %v", err)
	}

	results, err := s.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("Search failed after retry: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestSearchGivesUpAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s, err := NewTavilySearcher(TavilyConfig{APIKey: "test-key", APIBaseURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewTavilySearcher failed: %v", err)
	}

	if _, err := s.Search(context.Background(), "query"); err == nil {
		t.Error("expected error after exhausting retries")
	}
}
