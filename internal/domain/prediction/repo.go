package prediction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryRepository reads completed consultations to learn service times.
type HistoryRepository interface {
	// AverageServiceMinutes returns the mean called-to-completed duration in
	// minutes for the doctor's consultations on the given date, and the
	// sample count. Zero samples yields (0, 0, nil).
	AverageServiceMinutes(ctx context.Context, doctorID uuid.UUID, day time.Time) (float64, int, error)
	// AverageServiceMinutesBySPID is the same mean taken across every doctor
	// working the specialty that day, for requests keyed by SPID alone.
	AverageServiceMinutesBySPID(ctx context.Context, spid string, day time.Time) (float64, int, error)
}
