package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patientflow/patientflow/internal/domain/registry"
	"github.com/patientflow/patientflow/internal/platform/feed"
	"github.com/patientflow/patientflow/pkg/errs"
)

// PatientDirectory is the slice of the registry the queue needs.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*registry.Patient, error)
}

// DoctorDirectory is the slice of the registry the queue needs.
type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*registry.Doctor, error)
}

// Notifier receives queue lifecycle hooks. Dispatch failures never roll back
// the state change that triggered them.
type Notifier interface {
	// EntryCalled fires exactly once per entry on the waiting -> called move.
	EntryCalled(ctx context.Context, patientID uuid.UUID, entry *QueueEntry) error
	// QueueChanged re-evaluates near-turn notifications for the doctor's
	// remaining waiting entries.
	QueueChanged(ctx context.Context, doctorID uuid.UUID, day time.Time) error
}

type EnqueueRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Complaint string    `json:"complaint"`
	Priority  int       `json:"priority"`
}

type Service struct {
	appointments AppointmentRepository
	entries      EntryRepository
	tx           TxRunner
	patients     PatientDirectory
	doctors      DoctorDirectory
	publisher    feed.Publisher
	notifier     Notifier
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	appointments AppointmentRepository,
	entries EntryRepository,
	tx TxRunner,
	patients PatientDirectory,
	doctors DoctorDirectory,
	publisher feed.Publisher,
	notifier Notifier,
	logger zerolog.Logger,
) *Service {
	return &Service{
		appointments: appointments,
		entries:      entries,
		tx:           tx,
		patients:     patients,
		doctors:      doctors,
		publisher:    publisher,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

// dateOf truncates a timestamp to its calendar date.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// enqueueRetries bounds transaction re-runs when concurrent enqueues collide
// on the same queue number.
const enqueueRetries = 5

// inTxWithNumberRetry runs fn in a transaction and re-runs it from scratch
// when a queue number collision aborts it. Each attempt recomputes the number
// against committed state, so retries converge unless the queue is churning
// faster than the retry budget.
func (s *Service) inTxWithNumberRetry(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	for attempt := 0; attempt < enqueueRetries; attempt++ {
		err := s.tx.InTx(ctx, fn)
		if errors.Is(err, errNumberTaken) {
			continue
		}
		return err
	}
	return errs.Conflict("queue number contention for doctor %s", doctorID)
}

// Today returns the current queue date.
func (s *Service) Today() time.Time { return dateOf(s.now()) }

// Enqueue registers a walk-in visit: it creates the appointment in waiting
// status and its queue entry in one transaction, with the queue number
// assigned atomically. A patient with an open visit cannot enqueue again.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*Ticket, error) {
	if _, err := s.patients.GetPatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	doctor, err := s.doctors.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, errs.InvalidTransition("doctor %s is not accepting patients", doctor.ID)
	}

	if existing, err := s.appointments.GetActiveByPatient(ctx, req.PatientID); err == nil {
		return nil, errs.Conflict("patient already has an open visit %s", existing.ID)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	appt := &Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Complaint: req.Complaint,
		Status:    ApptWaiting,
	}
	entry := &QueueEntry{
		DoctorID:  req.DoctorID,
		SPID:      doctor.SPID,
		QueueDate: s.Today(),
		Priority:  req.Priority,
	}

	err = s.inTxWithNumberRetry(ctx, req.DoctorID, func(ctx context.Context) error {
		if err := s.appointments.Create(ctx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		entry.AppointmentID = appt.ID
		if err := s.entries.CreateWithNumber(ctx, entry); err != nil {
			return fmt.Errorf("create queue entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishChange(ctx, appt.PatientID, entry, "enqueued")
	s.notifyQueueChanged(ctx, entry.DoctorID, entry.QueueDate)

	return &Ticket{Appointment: appt, Entry: entry}, nil
}

// Schedule books a future visit without a queue slot. The patient checks in
// later to join the day's queue.
func (s *Service) Schedule(ctx context.Context, req EnqueueRequest) (*Appointment, error) {
	if _, err := s.patients.GetPatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	if existing, err := s.appointments.GetActiveByPatient(ctx, req.PatientID); err == nil {
		return nil, errs.Conflict("patient already has an open visit %s", existing.ID)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	appt := &Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Complaint: req.Complaint,
		Status:    ApptScheduled,
	}
	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// CheckIn moves a scheduled appointment into the day's queue.
func (s *Service) CheckIn(ctx context.Context, appointmentID uuid.UUID, priority int) (*Ticket, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != ApptScheduled {
		return nil, errs.InvalidTransition("appointment %s is %s, not scheduled", appt.ID, appt.Status)
	}
	doctor, err := s.doctors.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, errs.InvalidTransition("doctor %s is not accepting patients", doctor.ID)
	}

	entry := &QueueEntry{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		SPID:          doctor.SPID,
		QueueDate:     s.Today(),
		Priority:      priority,
	}
	err = s.inTxWithNumberRetry(ctx, appt.DoctorID, func(ctx context.Context) error {
		ok, err := s.appointments.TransitionStatus(ctx, appt.ID, ApptScheduled, ApptWaiting)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Conflict("appointment %s changed concurrently", appt.ID)
		}
		return s.entries.CreateWithNumber(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	appt.Status = ApptWaiting

	s.publishChange(ctx, appt.PatientID, entry, "enqueued")
	s.notifyQueueChanged(ctx, entry.DoctorID, entry.QueueDate)

	return &Ticket{Appointment: appt, Entry: entry}, nil
}

// GetEntry fetches a queue entry by ID.
func (s *Service) GetEntry(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	return s.entries.GetByID(ctx, entryID)
}

// GetAppointment fetches an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// CountAhead reports how many waiting patients are ordered ahead of the
// entry in its doctor's queue.
func (s *Service) CountAhead(ctx context.Context, entryID uuid.UUID) (int, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return 0, err
	}
	return s.entries.CountAhead(ctx, entry)
}

// NextToCall returns the entry that would be called next for the doctor, or
// nil when nobody is waiting.
func (s *Service) NextToCall(ctx context.Context, doctorID uuid.UUID) (*QueueEntry, error) {
	return s.entries.NextToCall(ctx, doctorID, s.Today())
}

// ListQueue returns the doctor's board for a day, call order first.
func (s *Service) ListQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	return s.entries.ListForDoctor(ctx, doctorID, dateOf(day))
}

// Call moves a waiting entry to called. Exactly one concurrent caller wins;
// the appointment moves to in_consult and the patient is notified once.
func (s *Service) Call(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	appt, err := s.appointments.GetByID(ctx, entry.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == ApptCancelled {
		return nil, errs.InvalidTransition("visit %s is cancelled", appt.ID)
	}

	switch entry.Status {
	case EntryWaiting:
	case EntryCalled, EntryInRoom:
		return nil, errs.Conflict("entry %s already called", entry.ID)
	default:
		return nil, errs.InvalidTransition("entry %s is %s", entry.ID, entry.Status)
	}

	ok, err := s.entries.MarkCalled(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Conflict("entry %s not callable: lost race or doctor busy", entryID)
	}

	if _, err := s.appointments.TransitionStatus(ctx, appt.ID, ApptWaiting, ApptInConsult); err != nil {
		return nil, err
	}

	entry, err = s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.EntryCalled(ctx, appt.PatientID, entry); err != nil {
		// Never undo the call because a notification failed.
		s.logger.Error().Err(err).Str("entry_id", entryID.String()).Msg("called notification dispatch failed")
	}

	s.publishChange(ctx, appt.PatientID, entry, "called")
	s.notifyQueueChanged(ctx, entry.DoctorID, entry.QueueDate)

	return entry, nil
}

// CallNext calls the doctor's next waiting entry. A concurrent CallNext for
// the same doctor leaves exactly one winner; the loser gets a conflict.
func (s *Service) CallNext(ctx context.Context, doctorID uuid.UUID) (*QueueEntry, error) {
	next, err := s.NextToCall(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, errs.NotFound("no waiting entries for doctor %s", doctorID)
	}
	return s.Call(ctx, next.ID)
}

// MarkArrived records that the called patient reached the consultation room.
func (s *Service) MarkArrived(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	ok, err := s.entries.MarkInRoom(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if entry.Status == EntryInRoom {
			return nil, errs.Conflict("entry %s already in room", entryID)
		}
		return nil, errs.InvalidTransition("entry %s is %s, not called", entryID, entry.Status)
	}

	entry, err = s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	appt, err := s.appointments.GetByID(ctx, entry.AppointmentID)
	if err != nil {
		return nil, err
	}
	s.publishChange(ctx, appt.PatientID, entry, "in_room")
	return entry, nil
}

// Complete finishes the consultation: entry and appointment both reach done
// and the completion time is stamped.
func (s *Service) Complete(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	ok, err := s.entries.MarkDone(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if entry.Status == EntryDone {
			return nil, errs.Conflict("entry %s already completed", entryID)
		}
		return nil, errs.InvalidTransition("entry %s is %s, not in_room", entryID, entry.Status)
	}

	if _, err := s.appointments.TransitionStatus(ctx, entry.AppointmentID, ApptInConsult, ApptDone); err != nil {
		return nil, err
	}

	entry, err = s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	appt, err := s.appointments.GetByID(ctx, entry.AppointmentID)
	if err != nil {
		return nil, err
	}
	s.publishChange(ctx, appt.PatientID, entry, "done")
	s.notifyQueueChanged(ctx, entry.DoctorID, entry.QueueDate)
	return entry, nil
}

// Cancel terminates a non-terminal visit. The paired queue entry, if any,
// leaves active consideration with the appointment.
func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == ApptCancelled {
		return nil, errs.Conflict("visit %s already cancelled", appt.ID)
	}
	if appt.Status == ApptDone {
		return nil, errs.InvalidTransition("visit %s is completed", appt.ID)
	}

	ok, err := s.appointments.TransitionStatus(ctx, appt.ID, appt.Status, ApptCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Conflict("visit %s changed concurrently", appt.ID)
	}
	appt.Status = ApptCancelled

	entry, err := s.entries.GetByAppointment(ctx, appointmentID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if entry != nil {
		s.publishChange(ctx, appt.PatientID, entry, "cancelled")
		s.notifyQueueChanged(ctx, entry.DoctorID, entry.QueueDate)
	} else {
		s.publish(ctx, feed.PatientTopic(appt.PatientID), "appointment", appt.ID.String(), "cancelled")
	}

	return appt, nil
}

// publishChange emits the entry change to both the patient's and the
// doctor's topics.
func (s *Service) publishChange(ctx context.Context, patientID uuid.UUID, entry *QueueEntry, action string) {
	s.publish(ctx, feed.PatientTopic(patientID), "queue_entry", entry.ID.String(), action)
	s.publish(ctx, feed.DoctorTopic(entry.DoctorID), "queue_entry", entry.ID.String(), action)
}

func (s *Service) publish(ctx context.Context, topic, entity, entityID, action string) {
	notice := feed.Notice{
		Topic:    topic,
		Entity:   entity,
		EntityID: entityID,
		Action:   action,
		At:       s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, notice); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("publish feed notice")
	}
}

func (s *Service) notifyQueueChanged(ctx context.Context, doctorID uuid.UUID, day time.Time) {
	if err := s.notifier.QueueChanged(ctx, doctorID, day); err != nil {
		s.logger.Error().Err(err).Str("doctor_id", doctorID.String()).Msg("near-turn evaluation failed")
	}
}
