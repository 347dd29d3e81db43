package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound control messages from the device.
const (
	MessageTypeListeningStart MessageType = "listening_start"
	MessageTypeListeningEnd   MessageType = "listening_end"
	MessageTypePing           MessageType = "ping"
)

// Outbound messages to the device.
const (
	MessageTypeStatus        MessageType = "status"
	MessageTypeUserQuery     MessageType = "user_query"
	MessageTypeResponseText  MessageType = "response_text"
	MessageTypeSpeakingStart MessageType = "speaking_start"
	MessageTypeSpeakingEnd   MessageType = "speaking_end"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ListeningStartMessage opens a microphone stream. The audio fields
// override the server defaults when present.
type ListeningStartMessage struct {
	BaseMessage
	SampleRate int    `json:"sample_rate,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Language   string `json:"language,omitempty"`
}

// StatusMessage reports the robot's state to the device.
type StatusMessage struct {
	BaseMessage
	State string `json:"state"`
}

// TextMessage carries the recognized query or the assistant's reply.
type TextMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ParseControlMessage decodes one inbound control message.
func ParseControlMessage(data []byte) (MessageType, *ListeningStartMessage, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return "", nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeListeningStart:
		var msg ListeningStartMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return "", nil, fmt.Errorf("invalid listening_start message: %w", err)
		}
		if msg.SampleRate != 0 && (msg.SampleRate < 8000 || msg.SampleRate > 48000) {
			return "", nil, fmt.Errorf("sample_rate must be between 8000 and 48000")
		}
		return base.Type, &msg, nil

	case MessageTypeListeningEnd, MessageTypePing:
		return base.Type, nil, nil

	default:
		return "", nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateStatusMessage creates a status update
func CreateStatusMessage(state string) *StatusMessage {
	return &StatusMessage{BaseMessage: newBase(MessageTypeStatus), State: state}
}

// CreateTextMessage creates a user_query or response_text message
func CreateTextMessage(t MessageType, text string) *TextMessage {
	return &TextMessage{BaseMessage: newBase(t), Text: text}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{BaseMessage: newBase(MessageTypeError), Code: code, Message: message}
}
