package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// errNumberTaken reports that a concurrent insert won the computed queue
// number. The losing transaction is aborted by the violation, so the caller
// must re-run the whole transaction, not just the insert.
var errNumberTaken = errors.New("queue number taken by concurrent enqueue")

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetActiveByPatient returns the patient's non-terminal appointment, or a
	// not-found error when there is none.
	GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error)
	// TransitionStatus conditionally moves an appointment from one status to
	// another. It reports false when the appointment was not in the expected
	// status, without modifying anything.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

type EntryRepository interface {
	// CreateWithNumber inserts the entry and assigns the next queue number
	// for (doctor, queue date) atomically.
	CreateWithNumber(ctx context.Context, e *QueueEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*QueueEntry, error)
	// CountAhead counts waiting entries for the same doctor and date that are
	// ordered ahead of the given entry (higher priority, or equal priority
	// and lower queue number). Entries of cancelled appointments are ignored.
	CountAhead(ctx context.Context, e *QueueEntry) (int, error)
	// NextToCall returns the waiting entry with the highest priority and
	// lowest queue number for the doctor on the given date, or nil when the
	// queue is empty.
	NextToCall(ctx context.Context, doctorID uuid.UUID, day time.Time) (*QueueEntry, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*QueueEntry, error)
	ListWaitingForDoctor(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*QueueEntry, error)
	// MarkCalled conditionally moves a waiting entry to called, provided the
	// doctor has no other called or in_room entry for that date. Reports
	// false when the guard fails.
	MarkCalled(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkInRoom conditionally moves a called entry to in_room.
	MarkInRoom(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkDone conditionally moves an in_room entry to done and stamps the
	// completion time.
	MarkDone(ctx context.Context, id uuid.UUID) (bool, error)
}

// TxRunner runs a function atomically. Multi-table writes (enqueue) use it so
// the appointment and its entry commit together.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
