package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/repositories"
)

// RagPipeline answers factual questions by searching the web and feeding
// the results to the language model as context.
type RagPipeline struct {
	searcher repositories.WebSearcher
	llm      repositories.LargeLanguageModel
	logger   *zap.Logger
}

func NewRagPipeline(searcher repositories.WebSearcher, llm repositories.LargeLanguageModel, logger *zap.Logger) *RagPipeline {
	return &RagPipeline{
		searcher: searcher,
		llm:      llm,
		logger:   logger,
	}
}

// Answer searches for the query and generates a grounded reply. When the
// search fails the model still answers, just without context.
func (r *RagPipeline) Answer(ctx context.Context, query string) (string, error) {
	results, err := r.searcher.Search(ctx, query)
	if err != nil {
		r.logger.Warn("Web search failed, answering without context", zap.Error(err))
		results = nil
	}

	prompt := buildRagPrompt(results, query)
	answer, err := r.llm.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	return answer, nil
}

func buildRagPrompt(results []repositories.SearchResult, query string) string {
	var contexts []string
	for _, result := range results {
		contexts = append(contexts, result.Title+"："+result.Content)
	}

	var b strings.Builder
	b.WriteString("你是一個問答助理，請根據提供的參考資料回答使用者的問題，")
	b.WriteString("用簡短、口語化的繁體中文回答，適合直接轉成語音播放。\n\n")
	b.WriteString("參考資料：\n<context>\n")
	b.WriteString(strings.Join(contexts, "\n"))
	b.WriteString("\n</context>\n\n")
	b.WriteString("請參考以上資料回答問題：\n<question>\n")
	b.WriteString(query)
	b.WriteString("\n</question>")
	return b.String()
}
