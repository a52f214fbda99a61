package notification

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// InsertUnique inserts the notification unless one of the same type
	// already exists for its queue entry. It reports whether a row was
	// written; a duplicate is not an error.
	InsertUnique(ctx context.Context, n *Notification) (bool, error)
	// Create inserts without deduplication, for free-form notifications.
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, undeliveredOnly bool, limit, offset int) ([]*Notification, int, error)
	// MarkDelivered sets the delivered flag. It reports false when the flag
	// was already set; the flag never clears.
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}
