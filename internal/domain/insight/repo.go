package insight

import (
	"context"
	"time"
)

// MetricsRepository aggregates queue activity for reporting.
type MetricsRepository interface {
	DailyMetrics(ctx context.Context, day time.Time) (*DailyMetrics, error)
}
