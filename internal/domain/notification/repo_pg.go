package notification

import (
	"context"
	"errors"

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, patient_id, queue_entry_id, type, message, delivered, created_at, delivered_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.PatientID, &n.QueueEntryID, &n.Type, &n.Message,
		&n.Delivered, &n.CreatedAt, &n.DeliveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("notification")
	}
	return &n, err
}

// InsertUnique relies on the partial unique index over (queue_entry_id, type);
// ON CONFLICT DO NOTHING makes the duplicate a no-op in a single statement, so
// concurrent dispatchers cannot both insert.
func (r *repoPG) InsertUnique(ctx context.Context, n *Notification) (bool, error) {
	n.ID = uuid.New()
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notifications (id, patient_id, queue_entry_id, type, message)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (queue_entry_id, type) WHERE type IN ('near_turn','called') DO NOTHING`,
		n.ID, n.PatientID, n.QueueEntryID, n.Type, n.Message)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notifications (id, patient_id, queue_entry_id, type, message)
		VALUES ($1,$2,$3,$4,$5)`,
		n.ID, n.PatientID, n.QueueEntryID, n.Type, n.Message)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return scanNotification(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM notifications WHERE id = $1`, id))
}

func (r *repoPG) ListForPatient(ctx context.Context, patientID uuid.UUID, undeliveredOnly bool, limit, offset int) ([]*Notification, int, error) {
	query := `SELECT ` + cols + `, COUNT(*) OVER() FROM notifications WHERE patient_id = $1`
	if undeliveredOnly {
		query += ` AND delivered = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.conn(ctx).Query(ctx, query, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		items []*Notification
		total int
	)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.PatientID, &n.QueueEntryID, &n.Type, &n.Message,
			&n.Delivered, &n.CreatedAt, &n.DeliveredAt, &total); err != nil {
			return nil, 0, err
		}
		items = append(items, &n)
	}
	return items, total, rows.Err()
}

func (r *repoPG) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notifications SET delivered = TRUE, delivered_at = NOW()
		WHERE id = $1 AND delivered = FALSE`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
