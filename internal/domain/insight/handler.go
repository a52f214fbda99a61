package insight

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/patientflow/patientflow/internal/platform/auth"
	"github.com/patientflow/patientflow/pkg/errs"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "staff"))
	g.GET("/insights/daily", h.Daily)
	g.POST("/insights/daily/analyze", h.Analyze)
}

func (h *Handler) day(c echo.Context) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) Daily(c echo.Context) error {
	day, err := h.day(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	metrics, err := h.svc.Daily(c.Request().Context(), day)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, metrics)
}

func (h *Handler) Analyze(c echo.Context) error {
	day, err := h.day(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	metrics, report, err := h.svc.Analyze(c.Request().Context(), day)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"metrics": metrics,
		"report":  report,
	})
}
