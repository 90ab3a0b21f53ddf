package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys for verification domain events.
const (
	VerificationSubmitted = "verification.submitted"
	VerificationApproved  = "verification.approved"
	VerificationRejected  = "verification.rejected"
)

// Envelope wraps every published payload.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// NewEnvelope stamps data with a fresh identifier and the current time.
func NewEnvelope(eventType string, data any) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// VerificationPayload is the data carried by verification events.
type VerificationPayload struct {
	RequestID  string `json:"request_id"`
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	ActorID    string `json:"actor_id,omitempty"`
	AdminNotes string `json:"admin_notes,omitempty"`
}

// Publisher is the interface implemented by types that can publish domain events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, envelope Envelope) error
	Close() error
}
