package entities

import "strings"

// Intent is the classified control meaning of one utterance.
type Intent string

const (
	IntentStart     Intent = "START"
	IntentStop      Intent = "STOP"
	IntentInterrupt Intent = "INTERRUPT"
	IntentCommand   Intent = "COMMAND"
	IntentIgnore    Intent = "IGNORE"
)

// ParseIntent maps a raw classifier label to an Intent. Anything that is not
// one of the four actionable labels collapses to IntentIgnore so a noisy
// classifier can never push the session into an unexpected state.
func ParseIntent(raw string) Intent {
	switch Intent(strings.ToUpper(strings.TrimSpace(raw))) {
	case IntentStart:
		return IntentStart
	case IntentStop:
		return IntentStop
	case IntentInterrupt:
		return IntentInterrupt
	case IntentCommand:
		return IntentCommand
	default:
		return IntentIgnore
	}
}

// TranscriptFragment is a single partial or final recognition result for a
// short span of audio.
type TranscriptFragment struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// TaskKind is the topic a command utterance is routed to.
type TaskKind string

const (
	TaskChat   TaskKind = "chat"
	TaskSearch TaskKind = "search"
	TaskAction TaskKind = "action"
)
