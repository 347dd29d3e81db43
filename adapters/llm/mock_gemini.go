package llm

import (
	"context"
	"fmt"

	"github.com/stobylabs/stoby/domain/repositories"
)

// MockGeminiClient is a placeholder implementation for offline development
type MockGeminiClient struct{}

// NewMockGeminiClient creates a new mock Gemini client
func NewMockGeminiClient() repositories.LargeLanguageModel {
	return &MockGeminiClient{}
}

// Generate implements repositories.LargeLanguageModel
func (g *MockGeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	return "COMMAND", nil
}

// GenerateChat implements repositories.LargeLanguageModel
func (g *MockGeminiClient) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &MockGeminiChatSession{
		history: history,
	}, nil
}

// MockGeminiChatSession implements repositories.ChatSession
type MockGeminiChatSession struct {
	history []repositories.ChatMessage
}

// SendMessage implements repositories.ChatSession
func (g *MockGeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	g.history = append(g.history, message)

	var response string
	switch {
	case len(message.Content) > 0:
		response = fmt.Sprintf("我聽到你說「%s」了，還有什麼想跟我聊的嗎？", message.Content)
	default:
		response = "嗨，我是史多比！今天想聊什麼呢？"
	}

	responseMessage := repositories.ChatMessage{
		Role:    repositories.RobotRole,
		Content: response,
	}

	g.history = append(g.history, responseMessage)

	return responseMessage, nil
}

// History implements repositories.ChatSession
func (g *MockGeminiChatSession) History() ([]repositories.ChatMessage, error) {
	return g.history, nil
}
