// handlers_scraping.go - Scraping dashboard handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/harga-pangan/console/internal/views"
	"github.com/labstack/echo/v4"
)

// ScrapingHandlerImpl implements the ScrapingHandler interface
type ScrapingHandlerImpl struct {
	view *views.ScrapingView
}

// NewScrapingHandler creates a new scraping handler
func NewScrapingHandler(view *views.ScrapingView) ScrapingHandler {
	return &ScrapingHandlerImpl{view: view}
}

type scrapeRequest struct {
	DaysBack int  `json:"daysBack"`
	Confirm  bool `json:"confirm"`
}

// HandleScrapingStatus returns data coverage, mapping and commodities
func (h *ScrapingHandlerImpl) HandleScrapingStatus(c echo.Context) error {
	days := views.DefaultStatusDays
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return NewValidationError("days", "days harus berupa angka")
		}
		days = n
	}

	overview, err := h.view.Load(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, overview)
}

// HandleRunScraping runs the scraper
func (h *ScrapingHandlerImpl) HandleRunScraping(c echo.Context) error {
	var req scrapeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	result, err := h.view.Run(c.Request().Context(), req.DaysBack, req.Confirm)
	if errors.Is(err, views.ErrConfirmationRequired) {
		return NewConfirmationRequiredError(views.ErrConfirmationRequired.Message)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"result":   result,
		"overview": h.view.Overview(),
	})
}
