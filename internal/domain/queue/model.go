package queue

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. A visit moves scheduled -> waiting -> in_consult ->
// done; cancelled is reachable from every non-terminal status. Statuses never
// move backwards.
const (
	ApptScheduled = "scheduled"
	ApptWaiting   = "waiting"
	ApptInConsult = "in_consult"
	ApptDone      = "done"
	ApptCancelled = "cancelled"
)

// Queue entry statuses, paired with the appointment lifecycle: waiting ->
// called -> in_room -> done.
const (
	EntryWaiting = "waiting"
	EntryCalled  = "called"
	EntryInRoom  = "in_room"
	EntryDone    = "done"
)

// apptTransitions is the set of permitted appointment status changes.
var apptTransitions = map[string]map[string]bool{
	ApptScheduled: {ApptWaiting: true, ApptCancelled: true},
	ApptWaiting:   {ApptInConsult: true, ApptCancelled: true},
	ApptInConsult: {ApptDone: true, ApptCancelled: true},
}

// CanTransition reports whether an appointment may move from one status to
// another.
func CanTransition(from, to string) bool {
	return apptTransitions[from][to]
}

// IsTerminal reports whether an appointment status admits no further change.
func IsTerminal(status string) bool {
	return status == ApptDone || status == ApptCancelled
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Complaint string    `db:"complaint" json:"complaint,omitempty"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// QueueEntry maps to the queue_entries table. QueueNumber is unique and
// increasing per (doctor, queue date); Priority breaks call order ties, with
// higher priority served first. An entry whose appointment is cancelled
// leaves active consideration without a status change of its own.
type QueueEntry struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AppointmentID uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	DoctorID      uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	SPID          string     `db:"spid" json:"spid"`
	QueueDate     time.Time  `db:"queue_date" json:"queue_date"`
	QueueNumber   int        `db:"queue_number" json:"queue_number"`
	Priority      int        `db:"priority" json:"priority"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	CalledAt      *time.Time `db:"called_at" json:"called_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Ticket is the result of enqueueing a patient: the visit and its queue slot.
type Ticket struct {
	Appointment *Appointment `json:"appointment"`
	Entry       *QueueEntry  `json:"entry"`
}
