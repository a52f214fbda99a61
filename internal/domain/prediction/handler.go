package prediction

import (
	"net/http"
	"time"

	"github.com/google/uuid"
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
	g := api.Group("", auth.RequireRole("admin", "staff", "doctor", "patient"))
	g.POST("/predict-wait", h.PredictWait)
}

type predictRequest struct {
	DoctorID      uuid.UUID `json:"doctor_id"`
	SPID          string    `json:"spid"`
	PatientsAhead int       `json:"patients_ahead"`
	CurrentTime   time.Time `json:"current_time"` // optional; zero means now
}

func (h *Handler) PredictWait(c echo.Context) error {
	var req predictRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DoctorID == uuid.Nil && req.SPID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id or spid is required")
	}
	if req.PatientsAhead < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "patients_ahead must not be negative")
	}

	var (
		estimate Estimate
		err      error
	)
	if req.DoctorID != uuid.Nil {
		estimate, err = h.svc.EstimateWaitAt(c.Request().Context(), req.DoctorID, req.PatientsAhead, req.CurrentTime)
	} else {
		estimate, err = h.svc.EstimateWaitBySPIDAt(c.Request().Context(), req.SPID, req.PatientsAhead, req.CurrentTime)
	}
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, estimate)
}
