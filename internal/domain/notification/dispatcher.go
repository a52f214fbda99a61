package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patientflow/patientflow/internal/domain/prediction"
	"github.com/patientflow/patientflow/internal/domain/queue"
	"github.com/patientflow/patientflow/internal/platform/feed"
)

// QueueReader is the slice of the queue repository the dispatcher reads.
type QueueReader interface {
	ListWaitingForDoctor(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*queue.QueueEntry, error)
	CountAhead(ctx context.Context, e *queue.QueueEntry) (int, error)
}

// AppointmentReader resolves the patient behind a queue entry.
type AppointmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*queue.Appointment, error)
}

// WaitEstimator predicts the wait for a queue position.
type WaitEstimator interface {
	EstimateWait(ctx context.Context, doctorID uuid.UUID, patientsAhead int) (prediction.Estimate, error)
}

// Dispatcher decides when patients hear about their queue and writes the
// notifications. Deduplication lives in the repository, so re-evaluating a
// queue never double-notifies.
type Dispatcher struct {
	repo            Repository
	entries         QueueReader
	appointments    AppointmentReader
	estimator       WaitEstimator
	publisher       feed.Publisher
	nearTurnAhead   int
	nearTurnMinutes float64
	logger          zerolog.Logger
}

var _ queue.Notifier = (*Dispatcher)(nil)

func NewDispatcher(
	repo Repository,
	entries QueueReader,
	appointments AppointmentReader,
	estimator WaitEstimator,
	publisher feed.Publisher,
	nearTurnAhead int,
	nearTurnMinutes float64,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:            repo,
		entries:         entries,
		appointments:    appointments,
		estimator:       estimator,
		publisher:       publisher,
		nearTurnAhead:   nearTurnAhead,
		nearTurnMinutes: nearTurnMinutes,
		logger:          logger,
	}
}

// EntryCalled writes the it's-your-turn notification. The dedupe guard makes
// repeated invocations for the same entry a no-op.
func (d *Dispatcher) EntryCalled(ctx context.Context, patientID uuid.UUID, entry *queue.QueueEntry) error {
	entryID := entry.ID
	n := &Notification{
		PatientID:    patientID,
		QueueEntryID: &entryID,
		Type:         TypeCalled,
		Message:      fmt.Sprintf("Queue %d: the doctor is ready for you, please proceed to the room", entry.QueueNumber),
	}
	inserted, err := d.repo.InsertUnique(ctx, n)
	if err != nil {
		return fmt.Errorf("insert called notification: %w", err)
	}
	if inserted {
		d.publish(ctx, n)
	}
	return nil
}

// QueueChanged re-evaluates the doctor's waiting entries and sends near-turn
// notifications to patients who crossed a threshold. Per-entry failures are
// logged and skipped so one bad row never starves the rest of the queue.
func (d *Dispatcher) QueueChanged(ctx context.Context, doctorID uuid.UUID, day time.Time) error {
	waiting, err := d.entries.ListWaitingForDoctor(ctx, doctorID, day)
	if err != nil {
		return fmt.Errorf("list waiting entries: %w", err)
	}
	for _, entry := range waiting {
		if err := d.evaluateNearTurn(ctx, entry); err != nil {
			d.logger.Error().Err(err).
				Str("entry_id", entry.ID.String()).
				Msg("near-turn evaluation failed for entry")
		}
	}
	return nil
}

func (d *Dispatcher) evaluateNearTurn(ctx context.Context, entry *queue.QueueEntry) error {
	ahead, err := d.entries.CountAhead(ctx, entry)
	if err != nil {
		return err
	}
	estimate, err := d.estimator.EstimateWait(ctx, entry.DoctorID, ahead)
	if err != nil {
		return err
	}
	if ahead > d.nearTurnAhead && estimate.PredictedMinutes > d.nearTurnMinutes {
		return nil
	}

	appt, err := d.appointments.GetByID(ctx, entry.AppointmentID)
	if err != nil {
		return err
	}
	entryID := entry.ID
	n := &Notification{
		PatientID:    appt.PatientID,
		QueueEntryID: &entryID,
		Type:         TypeNearTurn,
		Message: fmt.Sprintf("Your turn is coming up: %d ahead of you, about %.0f minutes",
			ahead, estimate.PredictedMinutes),
	}
	inserted, err := d.repo.InsertUnique(ctx, n)
	if err != nil {
		return err
	}
	if inserted {
		d.publish(ctx, n)
	}
	return nil
}

// Announce sends a free-form notification to a patient.
func (d *Dispatcher) Announce(ctx context.Context, patientID uuid.UUID, message string) (*Notification, error) {
	n := &Notification{PatientID: patientID, Type: TypeInfo, Message: message}
	if err := d.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	d.publish(ctx, n)
	return n, nil
}

// ListForPatient returns a patient's notifications, newest first.
func (d *Dispatcher) ListForPatient(ctx context.Context, patientID uuid.UUID, undeliveredOnly bool, limit, offset int) ([]*Notification, int, error) {
	return d.repo.ListForPatient(ctx, patientID, undeliveredOnly, limit, offset)
}

// Acknowledge marks a notification delivered. Acknowledging twice is
// harmless; the flag never clears.
func (d *Dispatcher) Acknowledge(ctx context.Context, id uuid.UUID) error {
	ok, err := d.repo.MarkDelivered(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// Either already delivered or missing; only the latter is an error.
	if _, err := d.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, n *Notification) {
	notice := feed.Notice{
		Topic:    feed.PatientTopic(n.PatientID),
		Entity:   "notification",
		EntityID: n.ID.String(),
		Action:   "created",
		At:       time.Now().UTC(),
	}
	if err := d.publisher.Publish(ctx, notice); err != nil {
		d.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("publish notification notice")
	}
}

// GetNotification fetches a notification by ID.
func (d *Dispatcher) GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return d.repo.GetByID(ctx, id)
}
