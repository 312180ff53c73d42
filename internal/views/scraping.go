package views

import (
	"context"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/komoditas"
	"github.com/harga-pangan/console/internal/models"
)

// DefaultStatusDays is how far back the scraping dashboard looks by default.
const DefaultStatusDays = 70

const maxDaysBack = 365

// ErrConfirmationRequired is returned by Run when the mapping has problems
// and the caller has not confirmed.
var ErrConfirmationRequired = apperr.NewValidationError("confirm", "Pemetaan komoditas memiliki masalah. Tetap lanjutkan scraping?")

// ScrapingOverview is everything the scraping dashboard shows.
type ScrapingOverview struct {
	Status    *models.DataStatus    `json:"status"`
	Mapping   *models.MappingStatus `json:"mapping"`
	Komoditas []string              `json:"komoditas"`
	Days      int                   `json:"days"`
}

// ScrapingView reports scraped data coverage and runs the scraper.
type ScrapingView struct {
	state
	backend  Backend
	overview ScrapingOverview
	last     *models.ScrapeResult
}

// NewScrapingView creates an empty scraping view.
func NewScrapingView(backend Backend) *ScrapingView {
	return &ScrapingView{state: newState(), backend: backend}
}

// StatusClass classifies how complete one day's data is.
func StatusClass(count, total int) string {
	switch {
	case count <= 0:
		return models.StatusEmpty
	case count < total:
		return models.StatusPartial
	default:
		return models.StatusComplete
	}
}

// Load fetches the data status for the last days days together with the
// mapping check and the commodity list. A failing mapping check or
// commodity list is logged and leaves that part empty.
func (v *ScrapingView) Load(ctx context.Context, days int) (*ScrapingOverview, error) {
	if days <= 0 {
		days = DefaultStatusDays
	}
	if days > maxDaysBack {
		return nil, v.end(apperr.NewValidationError("days", "Jumlah hari harus antara 1-365"))
	}

	v.begin()
	status, err := v.loadStatus(ctx, days)
	if err != nil {
		return nil, v.end(err)
	}

	overview := ScrapingOverview{Status: status, Days: days}
	if mapping, err := v.backend.CheckMapping(ctx); err != nil {
		logger.Warnf("mapping check failed: %v", err)
	} else {
		overview.Mapping = mapping
	}
	if names, _, err := v.backend.Komoditas(ctx); err != nil {
		logger.Warnf("commodity list failed: %v", err)
	} else {
		overview.Komoditas = names
	}

	v.mu.Lock()
	v.overview = overview
	v.mu.Unlock()
	return &overview, v.end(nil)
}

// Run scrapes the last daysBack days. The mapping is checked again first;
// when it is not ok, or cannot be checked, confirm must be true. The data
// status is reloaded afterwards.
func (v *ScrapingView) Run(ctx context.Context, daysBack int, confirm bool) (*models.ScrapeResult, error) {
	if daysBack < 1 || daysBack > maxDaysBack {
		return nil, v.end(apperr.NewValidationError("days_back", "Jumlah hari harus antara 1-365"))
	}

	mapping, err := v.backend.CheckMapping(ctx)
	if err != nil {
		logger.Warnf("mapping check failed: %v", err)
		mapping = nil
	}
	v.mu.Lock()
	v.overview.Mapping = mapping
	v.mu.Unlock()
	if (mapping == nil || !mapping.OK()) && !confirm {
		return nil, ErrConfirmationRequired
	}

	v.begin()
	logger.Infof("Scraping last %d days", daysBack)
	result, err := v.backend.Scrape(ctx, daysBack)
	if err != nil {
		return nil, v.end(err)
	}
	logger.Infof("Scraping saved %d rows, %d failed dates", result.DataSaved, len(result.FailedDates))

	v.mu.Lock()
	v.last = result
	v.mu.Unlock()

	if status, err := v.loadStatus(ctx, daysBack); err != nil {
		logger.Warnf("refreshing data status: %v", err)
	} else {
		v.mu.Lock()
		v.overview.Status = status
		v.overview.Days = daysBack
		v.mu.Unlock()
	}
	return result, v.end(nil)
}

// Overview returns the last loaded dashboard data.
func (v *ScrapingView) Overview() ScrapingOverview {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.overview
}

// LastRun returns the result of the last scraping run, or nil.
func (v *ScrapingView) LastRun() *models.ScrapeResult {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

func (v *ScrapingView) loadStatus(ctx context.Context, days int) (*models.DataStatus, error) {
	status, err := v.backend.DataStatus(ctx, days)
	if err != nil {
		return nil, err
	}
	if status.TotalRequired <= 0 {
		status.TotalRequired = len(komoditas.All)
	}
	for i := range status.Days {
		status.Days[i].Class = StatusClass(status.Days[i].JumlahData, status.TotalRequired)
	}
	return status, nil
}
