package repositories

import "context"

// SearchResult is one document returned by a web search
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// WebSearcher abstracts a web search service used for retrieval-augmented
// answers
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}
