package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/entities"
	"github.com/stobylabs/stoby/domain/repositories"
)

// ResultSink receives everything a command produces: status changes, the
// recognized query, the text reply, and the spoken audio. The websocket
// client implements this to forward results to the device.
type ResultSink interface {
	Status(state string)
	UserQuery(text string)
	TextResponse(text string)
	AudioStart()
	AudioChunk(data []byte)
	AudioEnd()
}

const greetingText = "嗨，我在聽！"

// TaskExecutor routes a spoken command to the right pipeline: small talk
// goes to the chat model, factual questions through web search, and action
// requests to the motion planner. Replies are spoken back through TTS.
type TaskExecutor struct {
	taskClassifier repositories.TaskClassifier
	llm            repositories.LargeLanguageModel
	rag            *RagPipeline
	decomposer     repositories.ActionDecomposer
	tts            repositories.TextToSpeech
	cache          repositories.ResponseCache
	sessions       repositories.SessionRepository
	language       string
	logger         *zap.Logger
}

func NewTaskExecutor(
	taskClassifier repositories.TaskClassifier,
	llm repositories.LargeLanguageModel,
	rag *RagPipeline,
	decomposer repositories.ActionDecomposer,
	tts repositories.TextToSpeech,
	cache repositories.ResponseCache,
	sessions repositories.SessionRepository,
	language string,
	logger *zap.Logger,
) *TaskExecutor {
	return &TaskExecutor{
		taskClassifier: taskClassifier,
		llm:            llm,
		rag:            rag,
		decomposer:     decomposer,
		tts:            tts,
		cache:          cache,
		sessions:       sessions,
		language:       language,
		logger:         logger,
	}
}

// Execute handles one command utterance end to end. Cancelling the context
// aborts whatever stage is in flight; nothing further reaches the sink.
func (e *TaskExecutor) Execute(ctx context.Context, deviceID, utterance string, sink ResultSink) error {
	sink.UserQuery(utterance)
	sink.Status("thinking")

	kind := e.classifyTask(ctx, utterance)
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		response  string
		fromCache bool
		err       error
	)

	switch kind {
	case entities.TaskSearch:
		response, fromCache, err = e.cache.GetOrGenerate(ctx, utterance, func(ctx context.Context) (string, error) {
			return e.rag.Answer(ctx, utterance)
		})
	case entities.TaskAction:
		response, err = e.decomposer.Decompose(ctx, utterance)
	default:
		response, fromCache, err = e.cache.GetOrGenerate(ctx, utterance, func(ctx context.Context) (string, error) {
			return e.chat(ctx, deviceID, utterance)
		})
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("command execution failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sink.TextResponse(response)

	if persistErr := e.appendExchange(ctx, deviceID, utterance, response, kind, fromCache); persistErr != nil {
		e.logger.Warn("Failed to persist exchange", zap.Error(persistErr))
	}

	// Action plans are handed to the motion controller, not spoken.
	if kind == entities.TaskAction {
		sink.Status("idle")
		return nil
	}

	if err := e.speak(ctx, response, sink); err != nil {
		return err
	}

	sink.Status("idle")
	return nil
}

// Greet speaks a short acknowledgement when the robot wakes up.
func (e *TaskExecutor) Greet(ctx context.Context, sink ResultSink) error {
	sink.TextResponse(greetingText)
	return e.speak(ctx, greetingText, sink)
}

// classifyTask labels the utterance, retrying transient failures. A task
// that cannot be classified is treated as chat so the user still gets an
// answer.
func (e *TaskExecutor) classifyTask(ctx context.Context, utterance string) entities.TaskKind {
	var kind entities.TaskKind

	backoff := retry.WithMaxRetries(2, retry.NewExponential(300*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		k, extra, err := e.taskClassifier.ClassifyTask(ctx, utterance)
		if err != nil {
			return retry.RetryableError(err)
		}
		kind = k
		e.logger.Info("task classified",
			zap.String("utterance", utterance),
			zap.String("kind", string(k)),
			zap.String("extra", extra))
		return nil
	})
	if err != nil {
		e.logger.Warn("Task classification failed, defaulting to chat", zap.Error(err))
		return entities.TaskChat
	}

	return kind
}

// chat answers small talk with the session's conversation history.
func (e *TaskExecutor) chat(ctx context.Context, deviceID, utterance string) (string, error) {
	history := e.loadHistory(ctx, deviceID)

	session, err := e.llm.GenerateChat(ctx, history)
	if err != nil {
		return "", fmt.Errorf("failed to start chat session: %w", err)
	}

	reply, err := session.SendMessage(ctx, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: utterance,
	})
	if err != nil {
		return "", fmt.Errorf("chat failed: %w", err)
	}

	return reply.Content, nil
}

func (e *TaskExecutor) speak(ctx context.Context, text string, sink ResultSink) error {
	audioChan, err := e.tts.ConvertTextToSpeech(ctx, text)
	if err != nil {
		return fmt.Errorf("text to speech failed: %w", err)
	}

	sink.AudioStart()
	for chunk := range audioChan {
		if err := ctx.Err(); err != nil {
			return err
		}
		sink.AudioChunk(chunk)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sink.AudioEnd()
	return nil
}

// loadHistory converts the device's current session messages into chat
// history. Missing or stale sessions just mean an empty history.
func (e *TaskExecutor) loadHistory(ctx context.Context, deviceID string) []repositories.ChatMessage {
	session, err := e.sessions.GetLastByDeviceID(ctx, deviceID)
	if err != nil {
		e.logger.Warn("Failed to load session history", zap.Error(err))
		return nil
	}
	if session == nil || session.IsExpired() || session.ShouldCreateNewSession() {
		return nil
	}

	history := make([]repositories.ChatMessage, 0, len(session.Messages))
	for _, msg := range session.Messages {
		role := repositories.UserRole
		if msg.Role == entities.MessageRoleRobot {
			role = repositories.RobotRole
		}
		history = append(history, repositories.ChatMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return history
}

// appendExchange records the query and reply on the device's session,
// starting a fresh session after 30 minutes of silence.
func (e *TaskExecutor) appendExchange(ctx context.Context, deviceID, query, response string, kind entities.TaskKind, fromCache bool) error {
	session, err := e.sessions.GetLastByDeviceID(ctx, deviceID)
	if err != nil {
		return err
	}

	metadata := entities.SessionMessageMetadata{Task: kind, FromCache: fromCache}

	if session == nil || session.IsExpired() || session.ShouldCreateNewSession() {
		session = entities.NewSession(deviceID, e.language)
		session.AddMessage(entities.MessageRoleUser, query, metadata)
		session.AddMessage(entities.MessageRoleRobot, response, metadata)
		return e.sessions.Create(ctx, session)
	}

	session.AddMessage(entities.MessageRoleUser, query, metadata)
	session.AddMessage(entities.MessageRoleRobot, response, metadata)
	return e.sessions.Update(ctx, session)
}
