package usecase

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"github.com/stobylabs/stoby/domain/entities"
)

// ListenerConfig tunes utterance aggregation.
type ListenerConfig struct {
	// SilenceTimeout is the quiet period that ends an utterance.
	SilenceTimeout time.Duration
	// MinUtteranceRunes discards fragments shorter than this. Zero disables.
	MinUtteranceRunes int
	// MaxUtteranceAge forces a flush when the buffer has been open this
	// long. Zero disables the safeguard.
	MaxUtteranceAge time.Duration
}

// UtteranceListener groups final transcript fragments into utterances.
// A fragment restarts the silence timer; when the timer fires, everything
// buffered since the last flush is emitted as a single utterance. Partial
// fragments and noise never reach the buffer and never touch the timer.
type UtteranceListener struct {
	config    ListenerConfig
	onFlush   func(string)
	logger    *zap.Logger
	debounced func(func())

	mu      sync.Mutex
	buffer  []string
	startAt time.Time
}

// NewUtteranceListener creates a listener that calls onFlush with each
// completed utterance.
func NewUtteranceListener(config ListenerConfig, onFlush func(string), logger *zap.Logger) *UtteranceListener {
	if config.SilenceTimeout <= 0 {
		config.SilenceTimeout = 2 * time.Second
	}
	return &UtteranceListener{
		config:    config,
		onFlush:   onFlush,
		logger:    logger,
		debounced: debounce.New(config.SilenceTimeout),
	}
}

// OnFragment feeds one transcript fragment into the listener.
func (l *UtteranceListener) OnFragment(fragment entities.TranscriptFragment) {
	if !fragment.IsFinal {
		return
	}

	text := strings.TrimSpace(fragment.Text)
	if l.isNoise(text) {
		l.logger.Debug("discarded noise fragment", zap.String("text", fragment.Text))
		return
	}

	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.startAt = time.Now()
	}
	l.buffer = append(l.buffer, text)
	overAge := l.config.MaxUtteranceAge > 0 && time.Since(l.startAt) >= l.config.MaxUtteranceAge
	l.mu.Unlock()

	if overAge {
		l.Flush()
		return
	}

	l.debounced(l.Flush)
}

// Flush emits the buffered utterance immediately. Empty buffers no-op, so a
// timer firing after a forced flush is harmless.
func (l *UtteranceListener) Flush() {
	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.mu.Unlock()
		return
	}
	utterance := strings.Join(l.buffer, " ")
	l.buffer = l.buffer[:0]
	l.mu.Unlock()

	l.logger.Info("utterance complete", zap.String("utterance", utterance))
	l.onFlush(utterance)
}

// Reset drops any buffered fragments without emitting them.
func (l *UtteranceListener) Reset() {
	l.mu.Lock()
	l.buffer = l.buffer[:0]
	l.mu.Unlock()
}

// isNoise reports whether a cleaned fragment should be discarded before
// buffering: empty, below the minimum length, or punctuation only.
func (l *UtteranceListener) isNoise(text string) bool {
	if text == "" {
		return true
	}

	runes := []rune(text)
	if l.config.MinUtteranceRunes > 0 && len(runes) < l.config.MinUtteranceRunes {
		return true
	}

	for _, r := range runes {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
