package prediction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	history        HistoryRepository
	defaultMinutes float64
	now            func() time.Time
}

func NewService(history HistoryRepository, defaultMinutes float64) *Service {
	return &Service{
		history:        history,
		defaultMinutes: defaultMinutes,
		now:            time.Now,
	}
}

func (s *Service) dayOf(at time.Time) time.Time {
	if at.IsZero() {
		at = s.now()
	}
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
}

// clampSample turns a raw history sample into a usable average: no samples
// falls back to the configured default, and everything is clamped to the
// plausible range.
func (s *Service) clampSample(avg float64, count int) float64 {
	if count == 0 {
		return ClampAverage(0, s.defaultMinutes)
	}
	return ClampAverage(avg, s.defaultMinutes)
}

// AverageFor returns the learned per-patient service time for the doctor on
// the day of at (zero means now), clamped to the plausible range, falling back
// to the configured default when no consultation has completed yet.
func (s *Service) AverageFor(ctx context.Context, doctorID uuid.UUID, at time.Time) (float64, error) {
	avg, count, err := s.history.AverageServiceMinutes(ctx, doctorID, s.dayOf(at))
	if err != nil {
		return 0, err
	}
	return s.clampSample(avg, count), nil
}

// AverageForSPID is AverageFor taken across every doctor working the
// specialty that day, for callers that identify the queue by SPID alone.
func (s *Service) AverageForSPID(ctx context.Context, spid string, at time.Time) (float64, error) {
	avg, count, err := s.history.AverageServiceMinutesBySPID(ctx, spid, s.dayOf(at))
	if err != nil {
		return 0, err
	}
	return s.clampSample(avg, count), nil
}

// EstimateWait predicts the wait for a patient with the given number of
// patients ahead in the doctor's queue, using today's history.
func (s *Service) EstimateWait(ctx context.Context, doctorID uuid.UUID, patientsAhead int) (Estimate, error) {
	return s.EstimateWaitAt(ctx, doctorID, patientsAhead, time.Time{})
}

// EstimateWaitAt is EstimateWait anchored to an explicit reference time, for
// callers that replay or backfill against a past day.
func (s *Service) EstimateWaitAt(ctx context.Context, doctorID uuid.UUID, patientsAhead int, at time.Time) (Estimate, error) {
	avg, err := s.AverageFor(ctx, doctorID, at)
	if err != nil {
		return Estimate{}, err
	}
	return NewEstimate(patientsAhead, avg), nil
}

// EstimateWaitBySPIDAt predicts the wait from specialty-wide history, for
// requests that carry an SPID but no doctor.
func (s *Service) EstimateWaitBySPIDAt(ctx context.Context, spid string, patientsAhead int, at time.Time) (Estimate, error) {
	avg, err := s.AverageForSPID(ctx, spid, at)
	if err != nil {
		return Estimate{}, err
	}
	return NewEstimate(patientsAhead, avg), nil
}
