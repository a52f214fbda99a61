package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification types. near_turn and called are deduplicated per queue entry;
// info notifications carry free-form announcements.
const (
	TypeNearTurn = "near_turn"
	TypeCalled   = "called"
	TypeInfo     = "info"
)

// Notification maps to the notifications table. Delivered moves false -> true
// exactly once and never back.
type Notification struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	QueueEntryID *uuid.UUID `db:"queue_entry_id" json:"queue_entry_id,omitempty"`
	Type         string     `db:"type" json:"type"`
	Message      string     `db:"message" json:"message"`
	Delivered    bool       `db:"delivered" json:"delivered"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	DeliveredAt  *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
}
