package repositories

import (
	"context"
	"time"

	"github.com/stobylabs/stoby/domain/entities"
)

// SessionRepository defines data access methods for conversation sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetLastByDeviceID(ctx context.Context, deviceID string) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	// ExpireSessions marks active sessions past their expiry as expired and
	// returns how many were affected.
	ExpireSessions(ctx context.Context, now time.Time) (int64, error)
}

// DeviceRepository defines data access methods for devices
type DeviceRepository interface {
	Create(ctx context.Context, device *entities.Device) error
	GetByID(ctx context.Context, id string) (*entities.Device, error)
	GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error)
	// ValidateDevice validates device credentials for authentication
	ValidateDevice(serialNumber, secret string) (*entities.Device, error)
}

// ResponseCache caches generated replies keyed by semantic similarity of the
// query, so near-duplicate questions skip the model call.
type ResponseCache interface {
	// GetOrGenerate returns a cached reply for a semantically similar query,
	// or invokes generate and caches its result. The bool reports a cache hit.
	GetOrGenerate(ctx context.Context, query string, generate func(context.Context) (string, error)) (string, bool, error)
}
