package insight

import (
	"time"

	"github.com/google/uuid"
)

// DailyMetrics is the clinic's aggregated activity for one day.
type DailyMetrics struct {
	Date                string    `json:"date"`
	TotalVisits         int       `json:"total_visits"`
	AvgWaitMinutes      float64   `json:"avg_wait_minutes"`
	PeakHour            int       `json:"peak_hour"`
	TopOverloadedSPID   string    `json:"top_overloaded_spid"`
	TopDoctorID         uuid.UUID `json:"top_doctor_id"`
	TopDoctorQueueSize  int       `json:"top_doctor_queue_size"`
	YesterdayAvgWaitMin float64   `json:"yesterday_avg_wait_minutes"`
}

// Report is the narrative the external analysis service produces from a
// day's metrics. The field names are the analysis service's wire contract.
type Report struct {
	Summary         string    `json:"executive_summary"`
	Recommendations []string  `json:"bullet_actions"`
	GeneratedAt     time.Time `json:"generated_at"`
}
