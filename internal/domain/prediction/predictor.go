package prediction

import "math"

// Bounds for the per-patient service time learned from history. Values
// outside this range are treated as noise (a doctor stepping out, a
// double-booked slot) and clamped.
const (
	MinServiceMinutes = 3.0
	MaxServiceMinutes = 20.0
)

// confidenceBand widens the point estimate by this fraction on each side.
const confidenceBand = 0.2

// Estimate is a wait prediction in minutes with its confidence band.
type Estimate struct {
	PredictedMinutes float64 `json:"predicted_minutes"`
	ConfidenceLow    float64 `json:"confidence_low"`
	ConfidenceHigh   float64 `json:"confidence_high"`
	AvgServiceMin    float64 `json:"avg_service_minutes"`
	PatientsAhead    int     `json:"patients_ahead"`
}

// ClampAverage bounds a historical average to the plausible range. A
// non-positive average (no usable history) falls back to the default.
func ClampAverage(avg, fallback float64) float64 {
	if avg <= 0 {
		avg = fallback
	}
	return math.Min(MaxServiceMinutes, math.Max(MinServiceMinutes, avg))
}

// NewEstimate computes the wait for a patient with the given number of
// patients ahead, assuming avgMinutes per consultation. With nobody ahead the
// patient is next, but some residual wait always remains: the floor is half
// the average, never below one minute. The band is ±20%, floored at zero.
func NewEstimate(patientsAhead int, avgMinutes float64) Estimate {
	point := float64(patientsAhead) * avgMinutes
	if patientsAhead == 0 {
		point = math.Max(avgMinutes/2, 1)
	}
	return Estimate{
		PredictedMinutes: round1(point),
		ConfidenceLow:    round1(math.Max(0, point*(1-confidenceBand))),
		ConfidenceHigh:   round1(point * (1 + confidenceBand)),
		AvgServiceMin:    round1(avgMinutes),
		PatientsAhead:    patientsAhead,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
