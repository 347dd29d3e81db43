package stt

import (
	"context"
	"fmt"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/stobylabs/stoby/domain/entities"
	"github.com/stobylabs/stoby/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct{}

func NewGoogleSpeechToText() *GoogleSpeechToText {
	return &GoogleSpeechToText{}
}

func (g *GoogleSpeechToText) StartStream(ctx context.Context, config repositories.AudioConfig) (repositories.TranscriptStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("unsupported audio encoding: %s", config.Encoding)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:        encoding,
		SampleRateHertz: int32(config.SampleRate),
		LanguageCode:    config.Language,
	}

	// Interim results are requested so clients can show live captions.
	// The control loop itself only reacts to final fragments.
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognitionConfig,
				InterimResults: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	streamInstance := &GoogleTranscriptStream{
		client:    client,
		stream:    stream,
		ctx:       ctx,
		fragments: make(chan entities.TranscriptFragment, 16),
	}
	go streamInstance.receiveResults()

	return streamInstance, nil
}

// GoogleTranscriptStream carries one live recognition session. Fragments
// arrive on the channel until the upstream stream ends or fails.
type GoogleTranscriptStream struct {
	client    *speech.Client
	stream    speechpb.Speech_StreamingRecognizeClient
	ctx       context.Context
	fragments chan entities.TranscriptFragment
	err       error
}

func (g *GoogleTranscriptStream) Send(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}

	return nil
}

func (g *GoogleTranscriptStream) CloseSend() error {
	if err := g.stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send stream: %w", err)
	}
	return nil
}

func (g *GoogleTranscriptStream) Fragments() <-chan entities.TranscriptFragment {
	return g.fragments
}

// Err reports why the fragment channel closed. Nil means a normal end of
// stream. Only valid after Fragments() is drained.
func (g *GoogleTranscriptStream) Err() error {
	return g.err
}

func (g *GoogleTranscriptStream) receiveResults() {
	defer close(g.fragments)
	defer g.client.Close()

	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			g.err = fmt.Errorf("failed to receive response: %w", err)
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			fragment := entities.TranscriptFragment{
				Text:    result.Alternatives[0].Transcript,
				IsFinal: result.IsFinal,
			}
			select {
			case g.fragments <- fragment:
			case <-g.ctx.Done():
				g.err = g.ctx.Err()
				return
			}
		}
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
