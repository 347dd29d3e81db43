package repositories

import (
	"context"

	"github.com/stobylabs/stoby/domain/entities"
)

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// TranscriptStream is one live streaming-recognition session. Fragments are
// delivered in arrival order on Fragments; the channel closes when the
// upstream stream ends or fails, after which Err reports the cause.
type TranscriptStream interface {
	// Send pushes a chunk of raw audio into the stream.
	Send(data []byte) error
	// CloseSend signals the end of audio input.
	CloseSend() error
	// Fragments yields partial and final recognition results.
	Fragments() <-chan entities.TranscriptFragment
	// Err returns the terminal stream error, if any, once Fragments closes.
	Err() error
}

// SpeechToText abstracts streaming speech recognition services
type SpeechToText interface {
	StartStream(ctx context.Context, config AudioConfig) (TranscriptStream, error)
}
