package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/patientflow/patientflow/pkg/errs"
)

// Client talks to the external analysis service that turns a day's metrics
// into a narrative report. The service is optional and slow; every call is
// bounded by the client timeout and failures surface as unavailable, never as
// an internal error.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger,
	}
}

// Enabled reports whether an analysis service is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// insightRequest is the analysis service's request envelope: the day under
// analysis plus its metrics.
type insightRequest struct {
	Date    string        `json:"date"`
	Metrics *DailyMetrics `json:"metrics"`
}

// DailyInsights posts the metrics and returns the generated report.
func (c *Client) DailyInsights(ctx context.Context, metrics *DailyMetrics) (*Report, error) {
	if !c.Enabled() {
		return nil, errs.Unavailable("insight service not configured")
	}

	payload, err := json.Marshal(insightRequest{Date: metrics.Date, Metrics: metrics})
	if err != nil {
		return nil, fmt.Errorf("marshal metrics: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/insights/daily", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build insight request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Unavailable("insight service unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().Int("status", resp.StatusCode).Bytes("body", body).Msg("insight service rejected request")
		return nil, errs.Unavailable("insight service returned status %d", resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, errs.Unavailable("insight service sent malformed response: %v", err)
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}
	return &report, nil
}
