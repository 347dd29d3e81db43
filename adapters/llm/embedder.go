package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embed returns the embedding vector for a piece of text. The response
// cache uses these vectors to match semantically similar queries.
func (g *GeminiLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	model := g.config.EmbeddingModel
	if model == "" {
		model = "gemini-embedding-001"
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	response, err := g.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	if len(response.Embeddings) == 0 || len(response.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	return response.Embeddings[0].Values, nil
}
