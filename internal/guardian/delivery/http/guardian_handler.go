package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/internal/guardian/service"
	"stop-loss-guardian/pkg/logger"
)

// GuardianHandler exposes the operator API.
type GuardianHandler struct {
	operatorService service.OperatorService
	logger          *logger.Logger
}

// NewGuardianHandler creates a new GuardianHandler.
func NewGuardianHandler(operatorService service.OperatorService, logger *logger.Logger) *GuardianHandler {
	return &GuardianHandler{operatorService: operatorService, logger: logger}
}

// RegisterRoutes registers the guardian routes to the Echo group.
func (h *GuardianHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/positions", h.ListPositions)
	g.POST("/positions/:id/acknowledge", h.Acknowledge)
	g.PUT("/positions/:id/stop-loss", h.SetStopLoss)
	g.GET("/alerts", h.ListAlerts)
	g.POST("/position-size", h.PositionSize)
}

// ListPositions godoc
// @Summary List tracked positions
// @Description Every tracked position with its current risk and escalation state
// @Tags positions
// @Produce  json
// @Success 200 {array} dto.PositionRiskResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /positions [get]
func (h *GuardianHandler) ListPositions(c echo.Context) error {
	positions, err := h.operatorService.ListPositions(c.Request().Context())
	if err != nil {
		return h.fail(c, "Failed to list positions", err)
	}
	return c.JSON(http.StatusOK, positions)
}

// ListAlerts godoc
// @Summary List urgent alerts
// @Description Recent urgent alerts, newest first
// @Tags alerts
// @Produce  json
// @Param   symbol  query   string  false   "Ticker symbol"
// @Param   limit   query   int     false   "Maximum number of alerts"  default(50)
// @Success 200 {array} dto.UrgentAlertResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /alerts [get]
func (h *GuardianHandler) ListAlerts(c echo.Context) error {
	var query dto.GetAlertsQuery
	if errs := readAndValidate(c, &query); errs != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid query", "details": errs})
	}

	alerts, err := h.operatorService.ListAlerts(c.Request().Context(), dto.GetUrgentAlertsParam{
		Symbol: query.Symbol,
		Limit:  query.Limit,
	})
	if err != nil {
		return h.fail(c, "Failed to list alerts", err)
	}
	return c.JSON(http.StatusOK, alerts)
}

// Acknowledge godoc
// @Summary Acknowledge a position
// @Description Silences escalation until the risk gets strictly worse. A symbol acknowledges every position in it.
// @Tags positions
// @Accept  json
// @Produce  json
// @Param   id       path    string                  true    "Tracking ID or ticker symbol"
// @Param   request  body    dto.AcknowledgeRequest  true    "Acknowledgment"
// @Success 200 {array} dto.PositionRiskResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /positions/{id}/acknowledge [post]
func (h *GuardianHandler) Acknowledge(c echo.Context) error {
	var req dto.AcknowledgeRequest
	if errs := readAndValidate(c, &req); errs != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload", "details": errs})
	}

	positions, err := h.operatorService.Acknowledge(c.Request().Context(), positionTarget(c), req.Reason)
	if err != nil {
		return h.fail(c, "Failed to acknowledge position", err)
	}
	return c.JSON(http.StatusOK, positions)
}

// SetStopLoss godoc
// @Summary Set a stop loss
// @Description Records a stop loss and resets escalation for the position
// @Tags positions
// @Accept  json
// @Produce  json
// @Param   id       path    string                  true    "Tracking ID or ticker symbol"
// @Param   request  body    dto.SetStopLossRequest  true    "Stop loss"
// @Success 200 {array} dto.PositionRiskResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /positions/{id}/stop-loss [put]
func (h *GuardianHandler) SetStopLoss(c echo.Context) error {
	var req dto.SetStopLossRequest
	if errs := readAndValidate(c, &req); errs != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload", "details": errs})
	}

	positions, err := h.operatorService.SetStopLoss(c.Request().Context(), positionTarget(c), req)
	if err != nil {
		return h.fail(c, "Failed to set stop loss", err)
	}
	return c.JSON(http.StatusOK, positions)
}

// PositionSize godoc
// @Summary Size a planned trade
// @Description Sizes a planned trade against the account's risk limits
// @Tags sizing
// @Accept  json
// @Produce  json
// @Param   request  body    dto.PositionSizeRequest  true    "Planned trade"
// @Success 200 {object} dto.PositionSizeResult
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /position-size [post]
func (h *GuardianHandler) PositionSize(c echo.Context) error {
	var req dto.PositionSizeRequest
	if errs := readAndValidate(c, &req); errs != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload", "details": errs})
	}

	result, err := h.operatorService.PositionSize(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "Failed to size position", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *GuardianHandler) fail(c echo.Context, msg string, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, logger.ErrorField(err))
	}
	return c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidStopLoss):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDeliveryFailure):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrFeedUnavailable), errors.Is(err, service.ErrPersistenceFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func positionTarget(c echo.Context) dto.PositionTarget {
	param := c.Param("id")
	if id, err := strconv.ParseUint(param, 10, 32); err == nil {
		return dto.PositionTarget{ID: uint(id)}
	}
	return dto.PositionTarget{Symbol: param}
}
