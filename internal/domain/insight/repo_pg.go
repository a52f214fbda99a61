package insight

import (
	"context"
	"errors"
	"time"

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

type metricsRepoPG struct{ pool *pgxpool.Pool }

func NewMetricsRepoPG(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepoPG{pool: pool}
}

func (r *metricsRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *metricsRepoPG) DailyMetrics(ctx context.Context, day time.Time) (*DailyMetrics, error) {
	m := &DailyMetrics{Date: day.Format("2006-01-02")}
	c := r.conn(ctx)

	err := c.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (called_at - created_at)) / 60.0)
		                FILTER (WHERE called_at IS NOT NULL), 0)
		FROM queue_entries WHERE queue_date = $1`, day).
		Scan(&m.TotalVisits, &m.AvgWaitMinutes)
	if err != nil {
		return nil, err
	}

	err = c.QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (called_at - created_at)) / 60.0), 0)
		FROM queue_entries
		WHERE queue_date = $1 AND called_at IS NOT NULL`,
		day.AddDate(0, 0, -1)).Scan(&m.YesterdayAvgWaitMin)
	if err != nil {
		return nil, err
	}

	// Peak hour by arrivals. No rows leaves the zero values in place.
	err = c.QueryRow(ctx, `
		SELECT EXTRACT(HOUR FROM created_at)::int
		FROM queue_entries WHERE queue_date = $1
		GROUP BY 1 ORDER BY COUNT(*) DESC, 1 ASC LIMIT 1`, day).Scan(&m.PeakHour)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	err = c.QueryRow(ctx, `
		SELECT spid FROM queue_entries WHERE queue_date = $1
		GROUP BY spid ORDER BY COUNT(*) DESC, spid ASC LIMIT 1`, day).Scan(&m.TopOverloadedSPID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	err = c.QueryRow(ctx, `
		SELECT doctor_id, COUNT(*) FROM queue_entries WHERE queue_date = $1
		GROUP BY doctor_id ORDER BY COUNT(*) DESC LIMIT 1`, day).
		Scan(&m.TopDoctorID, &m.TopDoctorQueueSize)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	return m, nil
}
