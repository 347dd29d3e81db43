package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/repositories"
)

type failingSearcher struct{}

func (f *failingSearcher) Search(ctx context.Context, query string) ([]repositories.SearchResult, error) {
	return nil, errors.New("search down")
}

func TestRagAnswerGroundsOnSearchResults(t *testing.T) {
	searcher := &fakeSearcher{results: []repositories.SearchResult{
		{Title: "氣象局", Content: "明天晴時多雲，氣溫 28 度"},
	}}
	llm := &fakeLLM{generated: "明天是晴天喔"}
	rag := NewRagPipeline(searcher, llm, zap.NewNop())

	answer, err := rag.Answer(context.Background(), "明天天氣如何")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if answer != "明天是晴天喔" {
		t.Errorf("unexpected answer %q", answer)
	}
	if searcher.calls != 1 {
		t.Errorf("expected one search, got %d", searcher.calls)
	}
}

func TestRagAnswerSurvivesSearchFailure(t *testing.T) {
	llm := &fakeLLM{generated: "我不太確定，不過..."}
	rag := NewRagPipeline(&failingSearcher{}, llm, zap.NewNop())

	answer, err := rag.Answer(context.Background(), "明天天氣如何")
	if err != nil {
		t.Fatalf("Answer should fall back without context: %v", err)
	}
	if answer == "" {
		t.Error("expected an answer even without search results")
	}
}

func TestBuildRagPrompt(t *testing.T) {
	prompt := buildRagPrompt([]repositories.SearchResult{
		{Title: "來源一", Content: "內容一"},
		{Title: "來源二", Content: "內容二"},
	}, "我的問題")

	for _, want := range []string{"來源一：內容一", "來源二：內容二", "<question>", "我的問題"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
