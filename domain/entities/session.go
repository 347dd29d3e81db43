package entities

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus represents the status of a conversation session
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusTerminated SessionStatus = "terminated"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleRobot MessageRole = "robot"
)

// SessionMessage represents one exchange entry within a session
type SessionMessage struct {
	Timestamp time.Time              `json:"timestamp" bson:"timestamp"`
	Role      MessageRole            `json:"role" bson:"role"`
	Content   string                 `json:"content" bson:"content"`
	Metadata  SessionMessageMetadata `json:"metadata" bson:"metadata"`
}

// SessionMessageMetadata carries routing details for a message
type SessionMessageMetadata struct {
	Task      TaskKind `json:"task,omitempty" bson:"task,omitempty"`
	FromCache bool     `json:"from_cache,omitempty" bson:"from_cache,omitempty"`
}

// SessionMetadata contains session-level metadata
type SessionMetadata struct {
	Language string `json:"language" bson:"language"`
}

// Session represents one continuous conversation between a device and the
// assistant. Messages accumulate across listening reconnects; a session ends
// by expiry or explicit termination.
type Session struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	DeviceID      string             `json:"device_id" bson:"device_id"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	LastActiveAt  time.Time          `json:"last_active_at" bson:"last_active_at"`
	LastMessageAt *time.Time         `json:"last_message_at" bson:"last_message_at"`
	ExpiresAt     time.Time          `json:"expires_at" bson:"expires_at"`
	Status        SessionStatus      `json:"status" bson:"status"`
	Messages      []SessionMessage   `json:"messages" bson:"messages"`
	Metadata      SessionMetadata    `json:"metadata" bson:"metadata"`
}

// NewSession creates a new session for a device
func NewSession(deviceID string, language string) *Session {
	now := time.Now()
	return &Session{
		ID:           primitive.NewObjectID(),
		DeviceID:     deviceID,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(24 * time.Hour),
		Status:       SessionStatusActive,
		Messages:     make([]SessionMessage, 0),
		Metadata: SessionMetadata{
			Language: language,
		},
	}
}

// AddMessage appends a message to the session and refreshes activity stamps
func (s *Session) AddMessage(role MessageRole, content string, metadata SessionMessageMetadata) {
	now := time.Now()
	s.Messages = append(s.Messages, SessionMessage{
		Timestamp: now,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
	})
	s.LastMessageAt = &now
	s.UpdateLastActive()
}

// UpdateLastActive updates the last active timestamp and extends expiration
func (s *Session) UpdateLastActive() {
	s.LastActiveAt = time.Now()
	s.ExpiresAt = s.LastActiveAt.Add(24 * time.Hour)
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt) || s.Status != SessionStatusActive
}

// ShouldCreateNewSession reports whether a fresh session should replace this
// one, based on the 30-minute inactivity rule.
func (s *Session) ShouldCreateNewSession() bool {
	if s.LastMessageAt == nil {
		return false
	}
	return time.Since(*s.LastMessageAt) > 30*time.Minute
}

// Terminate marks the session as terminated
func (s *Session) Terminate() {
	s.Status = SessionStatusTerminated
	s.UpdateLastActive()
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if s.Status != SessionStatusActive && s.Status != SessionStatusExpired && s.Status != SessionStatusTerminated {
		return errors.New("invalid session status")
	}
	return nil
}
