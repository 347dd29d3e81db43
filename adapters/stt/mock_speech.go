package stt

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/entities"
	"github.com/stobylabs/stoby/domain/repositories"
)

// MockSpeechToText is a placeholder implementation for offline development
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// StartStream creates a new mock streaming session
func (s *MockSpeechToText) StartStream(ctx context.Context, config repositories.AudioConfig) (repositories.TranscriptStream, error) {
	s.logger.Info("Initializing mock streaming transcription",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))

	return &MockTranscriptStream{
		logger:    s.logger,
		fragments: make(chan entities.TranscriptFragment, 16),
	}, nil
}

// MockTranscriptStream emits a canned transcript fragment for every audio
// chunk it receives.
type MockTranscriptStream struct {
	logger    *zap.Logger
	fragments chan entities.TranscriptFragment

	mu     sync.Mutex
	closed bool
}

// Send implements mock streaming audio processing
func (m *MockTranscriptStream) Send(data []byte) error {
	m.logger.Debug("Processing mock audio chunk", zap.Int("size", len(data)))

	if len(data) == 0 {
		return nil
	}

	var text string
	switch {
	case len(data) > 10000:
		text = "你好史多比，今天過得怎麼樣？"
	case len(data) > 1000:
		text = "你好史多比"
	default:
		text = "嗨"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.fragments <- entities.TranscriptFragment{Text: text, IsFinal: true}
	return nil
}

func (m *MockTranscriptStream) CloseSend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.fragments)
	}
	return nil
}

func (m *MockTranscriptStream) Fragments() <-chan entities.TranscriptFragment {
	return m.fragments
}

func (m *MockTranscriptStream) Err() error {
	return nil
}
