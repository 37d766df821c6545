package instrument

import (
	"time"

	"ticketing-backend/internal/access"
)

// Denial describes one refused access-control check.
type Denial struct {
	UserID   string
	Role     access.Role
	Resource string
	Action   string
	Method   string
	Path     string
	At       time.Time
}

// Recorder receives access denials. Implementations must be safe for
// concurrent use and must not block the request path.
type Recorder interface {
	RecordDenial(d Denial)
}

// NoopRecorder discards every denial. Used when auditing is disabled.
type NoopRecorder struct{}

func (NoopRecorder) RecordDenial(Denial) {}
