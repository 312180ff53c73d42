// handlers_history.go - Training schedule and chart handlers
package api

import (
	"net/http"
	"time"

	"github.com/harga-pangan/console/internal/apiclient"
	"github.com/harga-pangan/console/internal/komoditas"
	"github.com/harga-pangan/console/internal/views"
	"github.com/labstack/echo/v4"
)

// HistoryHandlerImpl implements the HistoryHandler interface
type HistoryHandlerImpl struct {
	view *views.HistoryView
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(view *views.HistoryView) HistoryHandler {
	return &HistoryHandlerImpl{view: view}
}

// HandleHistory returns the training schedule of every model
func (h *HistoryHandlerImpl) HandleHistory(c echo.Context) error {
	entries, err := h.view.Load(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

// HandlePlots returns fresh chart paths for one commodity
func (h *HistoryHandlerImpl) HandlePlots(c echo.Context) error {
	urls, err := h.view.Plots(c.Param("komoditas"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, urls)
}

// HandlePlotImage proxies a chart image. The type query selects
// "predictions" (default), "training_history" or "prediction".
func (h *HistoryHandlerImpl) HandlePlotImage(c echo.Context) error {
	name := c.Param("komoditas")
	if !komoditas.Valid(name) {
		return NewNotFoundError("komoditas", name)
	}

	var plotPath string
	now := time.Now()
	switch kind := c.QueryParam("type"); kind {
	case "", apiclient.PlotPredictions:
		plotPath = apiclient.PlotImagePath(name, apiclient.PlotPredictions, now)
	case apiclient.PlotTrainingHistory:
		plotPath = apiclient.PlotImagePath(name, apiclient.PlotTrainingHistory, now)
	case "prediction":
		plotPath = apiclient.PredictionPlotPath(name, now)
	default:
		return NewValidationError("type", "Tipe plot tidak dikenal: "+kind)
	}

	data, contentType, err := h.view.Image(c.Request().Context(), plotPath)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "image/png"
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, contentType, data)
}
