package scheduling

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/akudahewa/doc-spot-connect-sub000/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/availability", h.GetAvailability)
	api.GET("/availability/next", h.NextAvailableSlot)

	api.POST("/bookings", h.CreateBooking)
	api.GET("/bookings", h.ListBookings)
	api.GET("/bookings/:id", h.GetBooking)
	api.PATCH("/bookings/:id/status", h.UpdateBookingStatus)
	api.POST("/bookings/:id/cancel", h.CancelBooking)

	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id", h.GetSession)
	api.PUT("/sessions/:id", h.UpdateSession)
	api.DELETE("/sessions/:id", h.DeleteSession)

	api.POST("/overrides", h.CreateOverride)
	api.GET("/overrides", h.ListOverrides)
	api.GET("/overrides/:id", h.GetOverride)
	api.DELETE("/overrides/:id", h.DeleteOverride)
}

// httpError maps domain errors onto HTTP status codes. Validation errors
// from the service come through as plain errors and map to 400.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrDuplicateSession), errors.Is(err, ErrDuplicateOverride), errors.Is(err, ErrSlotTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrServiceUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case IsConfigurationError(err):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// scheduleQuery reads the doctor_id, dispensary_id, and date query
// parameters shared by the availability and booking endpoints.
func scheduleQuery(c echo.Context) (doctorID, dispensaryID uuid.UUID, day Date, err error) {
	doctorID, err = uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, Date{}, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	dispensaryID, err = uuid.Parse(c.QueryParam("dispensary_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, Date{}, echo.NewHTTPError(http.StatusBadRequest, "invalid dispensary_id")
	}
	day, err = ParseDate(c.QueryParam("date"))
	if err != nil {
		return uuid.Nil, uuid.Nil, Date{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	return doctorID, dispensaryID, day, nil
}

// -- Availability Handlers --

func (h *Handler) GetAvailability(c echo.Context) error {
	doctorID, dispensaryID, day, err := scheduleQuery(c)
	if err != nil {
		return err
	}
	avail, err := h.svc.GetAvailability(c.Request().Context(), doctorID, dispensaryID, day)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, avail)
}

func (h *Handler) NextAvailableSlot(c echo.Context) error {
	doctorID, dispensaryID, day, err := scheduleQuery(c)
	if err != nil {
		return err
	}
	slot, rejection, err := h.svc.NextAvailableSlot(c.Request().Context(), doctorID, dispensaryID, day)
	if err != nil {
		return httpError(err)
	}
	if rejection != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"available": false,
			"reason":    rejection.Reason,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"available": true,
		"slot":      slot,
	})
}

// -- Booking Handlers --

func (h *Handler) CreateBooking(c echo.Context) error {
	var in CreateBookingInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	booking, rejection, err := h.svc.CreateBooking(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	if rejection != nil {
		return c.JSON(http.StatusConflict, rejection)
	}
	return c.JSON(http.StatusCreated, booking)
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	booking, err := h.svc.GetBooking(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, booking)
}

func (h *Handler) ListBookings(c echo.Context) error {
	doctorID, dispensaryID, day, err := scheduleQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBookings(c.Request().Context(), doctorID, dispensaryID, day, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type updateStatusRequest struct {
	Status string  `json:"status"`
	Note   *string `json:"note,omitempty"`
}

func (h *Handler) UpdateBookingStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	booking, err := h.svc.UpdateBookingStatus(c.Request().Context(), id, req.Status, req.Note)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, booking)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelBooking(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	booking, err := h.svc.CancelBooking(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, booking)
}

// -- Recurring Session Handlers --

func (h *Handler) CreateSession(c echo.Context) error {
	var sess RecurringSession
	if err := c.Bind(&sess); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateSession(c.Request().Context(), &sess); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.GetSession(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListSessions(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	dispensaryID, err := uuid.Parse(c.QueryParam("dispensary_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dispensary_id")
	}
	items, err := h.svc.ListSessions(c.Request().Context(), doctorID, dispensaryID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateSession(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var sess RecurringSession
	if err := c.Bind(&sess); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess.ID = id
	if err := h.svc.UpdateSession(c.Request().Context(), &sess); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) DeleteSession(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSession(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Schedule Override Handlers --

func (h *Handler) CreateOverride(c echo.Context) error {
	var o ScheduleOverride
	if err := c.Bind(&o); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateOverride(c.Request().Context(), &o); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOverride(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetOverride(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOverrides(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	dispensaryID, err := uuid.Parse(c.QueryParam("dispensary_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dispensary_id")
	}
	from, err := ParseDate(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
	}
	to, err := ParseDate(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
	}
	items, err := h.svc.ListOverrides(c.Request().Context(), doctorID, dispensaryID, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) DeleteOverride(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteOverride(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
