package notification

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/patientflow/patientflow/internal/platform/auth"
	"github.com/patientflow/patientflow/pkg/errs"
	"github.com/patientflow/patientflow/pkg/pagination"
)

type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "staff", "patient"))
	readGroup.GET("/patients/:id/notifications", h.ListForPatient)
	readGroup.POST("/notifications/:id/ack", h.Acknowledge)

	staffGroup := api.Group("", auth.RequireRole("admin", "staff"))
	staffGroup.POST("/patients/:id/notifications", h.Announce)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	undeliveredOnly := c.QueryParam("undelivered") == "true"
	items, total, err := h.dispatcher.ListForPatient(c.Request().Context(), patientID, undeliveredOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.dispatcher.Acknowledge(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Announce(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	n, err := h.dispatcher.Announce(c.Request().Context(), patientID, body.Message)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, n)
}
