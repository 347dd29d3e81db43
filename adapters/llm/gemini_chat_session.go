package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/stobylabs/stoby/domain/repositories"
)

// GeminiChatSession implements the ChatSession interface
type GeminiChatSession struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	topP            float32
	topK            float32
	maxOutputTokens int
	timeoutSeconds  int
	safetySettings  []*genai.SafetySetting
	systemPrompt    string
	history         []*genai.Content
}

// NewGeminiChatSession creates a new chat session with config and history
func NewGeminiChatSession(client *genai.Client, config GeminiConfig, logger *zap.Logger, history []repositories.ChatMessage) (*GeminiChatSession, error) {
	geminiHistory := convertRepositoryToGeminiFormat(history)

	model := config.Model
	if model == "" {
		model = defaultModel
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = float32(defaultTemperature)
	}
	topP := config.TopP
	if topP == 0 {
		topP = float32(defaultTopP)
	}
	topK := config.TopK
	if topK == 0 {
		topK = float32(defaultTopK)
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
	}
	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiChatSession{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		topP:            topP,
		topK:            topK,
		maxOutputTokens: maxOutputTokens,
		timeoutSeconds:  timeoutSeconds,
		safetySettings:  geminiHardcodedConfig.SafetySettings,
		systemPrompt:    geminiHardcodedConfig.SystemPrompt,
		history:         geminiHistory,
	}, nil
}

// SendMessage sends a message and gets a response, updating the history
func (s *GeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	var contents []*genai.Content

	contents = append(contents, genai.NewContentFromText(s.systemPrompt, genai.RoleUser))
	contents = append(contents, s.history...)

	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)
	contents = append(contents, userContent)

	config := &genai.GenerateContentConfig{
		SafetySettings:  s.safetySettings,
		Temperature:     genai.Ptr(s.temperature),
		TopP:            genai.Ptr(s.topP),
		TopK:            genai.Ptr(s.topK),
		MaxOutputTokens: int32(s.maxOutputTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutSeconds)*time.Second)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		response, err = s.client.Models.GenerateContent(ctx, s.model, contents, config)
		if err == nil {
			break
		}

		s.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < 2 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}

	if err != nil {
		s.logger.Error("Failed to send message in chat session", zap.Error(err))
		return s.createFallbackResponse(), nil
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		s.logger.Warn("No content generated in chat session")
		return s.createFallbackResponse(), nil
	}

	var responseText string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			responseText += part.Text
		}
	}

	if responseText == "" {
		s.logger.Warn("Empty response in chat session")
		return s.createFallbackResponse(), nil
	}

	responseContent := genai.NewContentFromText(responseText, genai.RoleModel)
	s.history = append(s.history, userContent, responseContent)

	responseMessage := repositories.ChatMessage{
		Role:    repositories.RobotRole,
		Content: responseText,
	}

	s.logger.Info("Chat session message processed",
		zap.String("user_message", message.Content[:min(50, len(message.Content))]),
		zap.String("response_preview", responseText[:min(50, len(responseText))]),
		zap.Int("history_length", len(s.history)))

	return responseMessage, nil
}

// History returns the current conversation history
func (s *GeminiChatSession) History() ([]repositories.ChatMessage, error) {
	return convertGeminiToRepositoryFormat(s.history), nil
}

// createFallbackResponse creates a fallback response message
func (s *GeminiChatSession) createFallbackResponse() repositories.ChatMessage {
	fallbacks := geminiHardcodedConfig.Fallbacks
	index := int(time.Now().UnixNano()) % len(fallbacks)

	fallbackMessage := repositories.ChatMessage{
		Role:    repositories.RobotRole,
		Content: fallbacks[index],
	}

	fallbackContent := genai.NewContentFromText(fallbacks[index], genai.RoleModel)
	s.history = append(s.history, fallbackContent)

	return fallbackMessage
}

// convertRepositoryToGeminiFormat converts repository messages to Gemini format
func convertRepositoryToGeminiFormat(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.UserRole:
			role = genai.RoleUser
		case repositories.RobotRole:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}

		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}

// convertGeminiToRepositoryFormat converts Gemini content to repository messages
func convertGeminiToRepositoryFormat(contents []*genai.Content) []repositories.ChatMessage {
	var messages []repositories.ChatMessage

	for _, content := range contents {
		var role repositories.Role
		switch content.Role {
		case genai.RoleUser:
			role = repositories.UserRole
		case genai.RoleModel:
			role = repositories.RobotRole
		default:
			role = repositories.UserRole
		}

		var text string
		for _, part := range content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}

		if text != "" {
			messages = append(messages, repositories.ChatMessage{
				Role:    role,
				Content: text,
			})
		}
	}

	return messages
}
