package prediction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patientflow/patientflow/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *historyRepoPG) AverageServiceMinutes(ctx context.Context, doctorID uuid.UUID, day time.Time) (float64, int, error) {
	var (
		avg   *float64
		count int
	)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (completed_at - called_at)) / 60.0), COUNT(*)
		FROM queue_entries
		WHERE doctor_id = $1 AND queue_date = $2 AND status = 'done'
		  AND called_at IS NOT NULL AND completed_at IS NOT NULL`,
		doctorID, day).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	if avg == nil {
		return 0, 0, nil
	}
	return *avg, count, nil
}

func (r *historyRepoPG) AverageServiceMinutesBySPID(ctx context.Context, spid string, day time.Time) (float64, int, error) {
	var (
		avg   *float64
		count int
	)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (completed_at - called_at)) / 60.0), COUNT(*)
		FROM queue_entries
		WHERE spid = $1 AND queue_date = $2 AND status = 'done'
		  AND called_at IS NOT NULL AND completed_at IS NOT NULL`,
		spid, day).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	if avg == nil {
		return 0, 0, nil
	}
	return *avg, count, nil
}
