package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the assistant server.
type Config struct {
	Port string

	Listening ListeningConfig
	STT       STTConfig
	Gemini    GeminiConfig
	Search    SearchConfig
	Mongo     MongoConfig

	JWTSecret string
}

// ListeningConfig tunes the utterance control loop.
type ListeningConfig struct {
	// SilenceTimeout is the quiet period after which buffered transcript
	// fragments are flushed as one utterance.
	SilenceTimeout time.Duration
	// MinUtteranceRunes rejects fragments shorter than this before buffering.
	// Zero disables the filter.
	MinUtteranceRunes int
	// MaxUtteranceAge forces a flush when a buffer has been accumulating this
	// long without a quiet period. Zero disables the safeguard.
	MaxUtteranceAge time.Duration
	// MaxStreamRestarts bounds transcription reconnect attempts before the
	// failure is surfaced to the client.
	MaxStreamRestarts int
}

type STTConfig struct {
	SampleRate int
	Encoding   string
	Language   string
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
}

type SearchConfig struct {
	APIKey     string
	APIBaseURL string
	MaxResults int
}

type MongoConfig struct {
	URI      string
	Database string
}

// Load resolves configuration from environment variables and defaults.
func Load() Config {
	cfg := Config{
		Port: envOrDefault("PORT", "8080"),
		Listening: ListeningConfig{
			SilenceTimeout:    envOrDefaultSeconds("SILENCE_TIMEOUT_SECONDS", 2.0),
			MinUtteranceRunes: envOrDefaultInt("MIN_UTTERANCE_RUNES", 1),
			MaxUtteranceAge:   envOrDefaultSeconds("MAX_UTTERANCE_AGE_SECONDS", 15.0),
			MaxStreamRestarts: envOrDefaultInt("STT_MAX_RESTARTS", 2),
		},
		STT: STTConfig{
			SampleRate: envOrDefaultInt("STT_SAMPLE_RATE", 16000),
			Encoding:   envOrDefault("STT_ENCODING", "WEBM_OPUS"),
			Language:   envOrDefault("STT_LANGUAGE", "cmn-Hant-TW"),
		},
		Gemini: GeminiConfig{
			APIKey:         strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:          envOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
			EmbeddingModel: envOrDefault("GEMINI_EMBEDDING_MODEL", "gemini-embedding-001"),
		},
		Search: SearchConfig{
			APIKey:     strings.TrimSpace(os.Getenv("TAVILY_API_KEY")),
			APIBaseURL: envOrDefault("TAVILY_API_BASE_URL", "https://api.tavily.com"),
			MaxResults: envOrDefaultInt("SEARCH_MAX_RESULTS", 3),
		},
		Mongo: MongoConfig{
			URI:      envOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
			Database: envOrDefault("MONGODB_DATABASE", "stoby"),
		},
		JWTSecret: envOrDefault("JWT_SECRET", "development-secret"),
	}

	if cfg.Listening.SilenceTimeout <= 0 {
		cfg.Listening.SilenceTimeout = 2 * time.Second
	}
	if cfg.STT.SampleRate <= 0 {
		cfg.STT.SampleRate = 16000
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 3
	}

	return cfg
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultSeconds(key string, fallback float64) time.Duration {
	seconds := fallback
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			seconds = f
		}
	}
	return time.Duration(seconds * float64(time.Second))
}
