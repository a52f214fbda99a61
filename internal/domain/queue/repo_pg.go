package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patientflow/patientflow/internal/platform/db"
	"github.com/patientflow/patientflow/pkg/errs"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, patient_id, doctor_id, complaint, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Complaint, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("appointment")
	}
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, complaint, status)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.PatientID, a.DoctorID, a.Complaint, a.Status)
	if uniqueViolationOn(err, constraintPatientActive) {
		// Two enqueues for the same patient raced past the pre-check; the
		// index keeps one.
		return errs.Conflict("patient %s already has an open visit", a.PatientID)
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE patient_id = $1 AND status NOT IN ('done','cancelled')
		ORDER BY created_at DESC LIMIT 1`, patientID))
}

func (r *appointmentRepoPG) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// =========== Entry Repository ===========

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository { return &entryRepoPG{pool: pool} }

func (r *entryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, appointment_id, doctor_id, spid, queue_date, queue_number,
	priority, status, created_at, called_at, completed_at`

func scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(&e.ID, &e.AppointmentID, &e.DoctorID, &e.SPID, &e.QueueDate,
		&e.QueueNumber, &e.Priority, &e.Status, &e.CreatedAt, &e.CalledAt, &e.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("queue entry")
	}
	return &e, err
}

// CreateWithNumber assigns the next queue number inside the INSERT itself, so
// no window exists between reading the max and writing the row. The
// uq_queue_entries_number constraint catches concurrent inserts that computed
// the same number. The violation aborts the surrounding Postgres transaction
// (retrying the statement in place would only see 25P02), so the collision is
// reported as errNumberTaken and the service re-runs the whole transaction.
func (r *entryRepoPG) CreateWithNumber(ctx context.Context, e *QueueEntry) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queue_entries (id, appointment_id, doctor_id, spid, queue_date, queue_number, priority, status)
		SELECT $1, $2, $3, $4, $5, COALESCE(MAX(queue_number), 0) + 1, $6, 'waiting'
		FROM queue_entries WHERE doctor_id = $3 AND queue_date = $5
		RETURNING queue_number, created_at`,
		e.ID, e.AppointmentID, e.DoctorID, e.SPID, e.QueueDate, e.Priority,
	).Scan(&e.QueueNumber, &e.CreatedAt)
	if uniqueViolationOn(err, constraintQueueNumber) {
		return errNumberTaken
	}
	if err != nil {
		return err
	}
	e.Status = EntryWaiting
	return nil
}

func (r *entryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE id = $1`, id))
}

func (r *entryRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*QueueEntry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE appointment_id = $1`, appointmentID))
}

func (r *entryRepoPG) CountAhead(ctx context.Context, e *QueueEntry) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM queue_entries q
		JOIN appointments a ON a.id = q.appointment_id
		WHERE q.doctor_id = $1 AND q.queue_date = $2 AND q.status = 'waiting'
		  AND a.status <> 'cancelled'
		  AND (q.priority > $3 OR (q.priority = $3 AND q.queue_number < $4))`,
		e.DoctorID, e.QueueDate, e.Priority, e.QueueNumber).Scan(&count)
	return count, err
}

func (r *entryRepoPG) NextToCall(ctx context.Context, doctorID uuid.UUID, day time.Time) (*QueueEntry, error) {
	entry, err := scanEntry(r.conn(ctx).QueryRow(ctx, `
		SELECT `+prefixCols("q", entryCols)+` FROM queue_entries q
		JOIN appointments a ON a.id = q.appointment_id
		WHERE q.doctor_id = $1 AND q.queue_date = $2 AND q.status = 'waiting'
		  AND a.status <> 'cancelled'
		ORDER BY q.priority DESC, q.queue_number ASC
		LIMIT 1`, doctorID, day))
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

func (r *entryRepoPG) ListForDoctor(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	return r.listForDoctor(ctx, doctorID, day, false)
}

func (r *entryRepoPG) ListWaitingForDoctor(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	return r.listForDoctor(ctx, doctorID, day, true)
}

func (r *entryRepoPG) listForDoctor(ctx context.Context, doctorID uuid.UUID, day time.Time, waitingOnly bool) ([]*QueueEntry, error) {
	query := `
		SELECT ` + prefixCols("q", entryCols) + ` FROM queue_entries q
		JOIN appointments a ON a.id = q.appointment_id
		WHERE q.doctor_id = $1 AND q.queue_date = $2 AND a.status <> 'cancelled'`
	if waitingOnly {
		query += ` AND q.status = 'waiting'`
	}
	query += ` ORDER BY q.priority DESC, q.queue_number ASC`

	rows, err := r.conn(ctx).Query(ctx, query, doctorID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// MarkCalled is the single-winner guard for calling a patient: it succeeds
// only while the entry is still waiting and the doctor has no other active
// (called or in_room) entry that day. Concurrent losers calling the same
// entry see zero rows; losers calling a different entry of the same doctor
// pass the NOT EXISTS on their own snapshot and are rejected by the
// uq_queue_entries_active_doctor index at commit instead.
func (r *entryRepoPG) MarkCalled(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entries SET status = 'called', called_at = NOW()
		WHERE id = $1 AND status = 'waiting'
		  AND EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.id = queue_entries.appointment_id AND a.status <> 'cancelled')
		  AND NOT EXISTS (
			SELECT 1 FROM queue_entries o
			JOIN appointments oa ON oa.id = o.appointment_id
			WHERE o.doctor_id = queue_entries.doctor_id
			  AND o.queue_date = queue_entries.queue_date
			  AND o.status IN ('called','in_room')
			  AND oa.status <> 'cancelled')`, id)
	if uniqueViolationOn(err, constraintActiveDoctor) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *entryRepoPG) MarkInRoom(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entries SET status = 'in_room'
		WHERE id = $1 AND status = 'called'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *entryRepoPG) MarkDone(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entries SET status = 'done', completed_at = NOW()
		WHERE id = $1 AND status = 'in_room'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// prefixCols qualifies a comma-separated column list with a table alias.
func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Constraint names from migrations/001_core.sql; unique violations are
// classified per constraint so each race maps to its own domain error.
const (
	constraintQueueNumber   = "uq_queue_entries_number"
	constraintActiveDoctor  = "uq_queue_entries_active_doctor"
	constraintPatientActive = "uq_appointments_patient_active"
)

func uniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// =========== TxRunner ===========

type pgTxRunner struct{ pool *pgxpool.Pool }

// NewTxRunner returns a TxRunner backed by the connection pool.
func NewTxRunner(pool *pgxpool.Pool) TxRunner { return &pgTxRunner{pool: pool} }

func (r *pgTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.InTx(ctx, r.pool, fn)
}
