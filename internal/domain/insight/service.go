package insight

import (
	"context"
	"time"
)

type Service struct {
	metrics MetricsRepository
	client  *Client
}

func NewService(metrics MetricsRepository, client *Client) *Service {
	return &Service{metrics: metrics, client: client}
}

// Daily returns the aggregated metrics for a day.
func (s *Service) Daily(ctx context.Context, day time.Time) (*DailyMetrics, error) {
	return s.metrics.DailyMetrics(ctx, day)
}

// Analyze aggregates a day's metrics and asks the external service for a
// report. Metrics come from our own database; only the report can fail with
// an unavailable error.
func (s *Service) Analyze(ctx context.Context, day time.Time) (*DailyMetrics, *Report, error) {
	metrics, err := s.metrics.DailyMetrics(ctx, day)
	if err != nil {
		return nil, nil, err
	}
	report, err := s.client.DailyInsights(ctx, metrics)
	if err != nil {
		return nil, nil, err
	}
	return metrics, report, nil
}
