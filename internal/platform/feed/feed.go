// Package feed provides the real-time change feed. State changes publish
// lightweight notices to topics keyed per patient or per doctor; consumers
// subscribe over an in-process channel or a WebSocket connection and re-fetch
// current state when a notice arrives.
package feed

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notice describes a state change. It carries no payload; delivery is
// at-least-once and consumers re-fetch the entity it names.
type Notice struct {
	Topic    string    `json:"topic"`
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id,omitempty"`
	Action   string    `json:"action"`
	At       time.Time `json:"at"`
}

// ActionRefresh replaces notices lost to a slow consumer. The consumer should
// re-fetch everything it renders for the topic.
const ActionRefresh = "refresh"

// PatientTopic returns the feed topic for a patient.
func PatientTopic(patientID uuid.UUID) string {
	return "patient:" + patientID.String()
}

// DoctorTopic returns the feed topic for a doctor's queue board.
func DoctorTopic(doctorID uuid.UUID) string {
	return "doctor:" + doctorID.String()
}

// Publisher is implemented by the Hub and consumed by the domain services.
type Publisher interface {
	Publish(ctx context.Context, notice Notice) error
}
