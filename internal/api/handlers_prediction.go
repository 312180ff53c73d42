// handlers_prediction.go - Forecast handlers
package api

import (
	"net/http"
	"strings"

	"github.com/harga-pangan/console/internal/views"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEApplicationMsgpack is the content type for msgpack responses.
const MIMEApplicationMsgpack = "application/msgpack"

// PredictionHandlerImpl implements the PredictionHandler interface
type PredictionHandlerImpl struct {
	view *views.PredictionView
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(view *views.PredictionView) PredictionHandler {
	return &PredictionHandlerImpl{view: view}
}

type predictRequest struct {
	Komoditas  string `json:"komoditas"`
	FilterDays int    `json:"filterDays"`
}

// HandlePredict returns a forecast as JSON, or msgpack when asked for
func (h *PredictionHandlerImpl) HandlePredict(c echo.Context) error {
	var req predictRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	result, err := h.view.Predict(c.Request().Context(), req.Komoditas, req.FilterDays)
	if err != nil {
		return err
	}

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEApplicationMsgpack) {
		data, err := msgpack.Marshal(result)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, MIMEApplicationMsgpack, data)
	}
	return c.JSON(http.StatusOK, result)
}

// HandleFuture returns the 30-day forecast for one commodity
func (h *PredictionHandlerImpl) HandleFuture(c echo.Context) error {
	result, err := h.view.Future(c.Request().Context(), c.Param("komoditas"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
