package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/repositories"
)

const (
	defaultAPIBaseURL = "https://api.tavily.com"
	defaultMaxResults = 3
)

// TavilyConfig holds configuration for the Tavily search adapter.
type TavilyConfig struct {
	APIKey     string
	APIBaseURL string
	MaxResults int
}

// TavilySearcher implements WebSearcher using the Tavily search API
type TavilySearcher struct {
	apiKey     string
	apiBaseURL string
	maxResults int
	client     *http.Client
	logger     *zap.Logger
}

var _ repositories.WebSearcher = (*TavilySearcher)(nil)

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// NewTavilySearcher creates a new Tavily search adapter
func NewTavilySearcher(config TavilyConfig, logger *zap.Logger) (*TavilySearcher, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("tavily API key is required")
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}
	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	return &TavilySearcher{
		apiKey:     config.APIKey,
		apiBaseURL: apiBaseURL,
		maxResults: maxResults,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}, nil
}

// Search queries the web and returns the top results. Transient failures
// are retried with exponential backoff before giving up.
func (s *TavilySearcher) Search(ctx context.Context, query string) ([]repositories.SearchResult, error) {
	var results []repositories.SearchResult

	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		found, err := s.searchOnce(ctx, query)
		if err != nil {
			s.logger.Warn("Web search attempt failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		results = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}

	s.logger.Info("Web search completed",
		zap.String("query", query),
		zap.Int("results", len(results)))

	return results, nil
}

func (s *TavilySearcher) searchOnce(ctx context.Context, query string) ([]repositories.SearchResult, error) {
	requestBody, err := json.Marshal(tavilyRequest{
		Query:      query,
		MaxResults: s.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/search", s.apiBaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search API returned error %d: %s", resp.StatusCode, string(errorBody))
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]repositories.SearchResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		results = append(results, repositories.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
		})
	}

	return results, nil
}
