package views

import (
	"context"
	"fmt"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/komoditas"
	"github.com/harga-pangan/console/internal/models"
)

// FilterDays are the forecast windows the prediction endpoint accepts.
var FilterDays = []int{3, 7, 30}

// PredictionView requests price forecasts. Each successful request
// replaces the previous result in full.
type PredictionView struct {
	state
	backend Backend
	session Session
	result  *models.PredictionResult
}

// NewPredictionView creates an empty prediction view.
func NewPredictionView(backend Backend, session Session) *PredictionView {
	return &PredictionView{state: newState(), backend: backend, session: session}
}

// Predict issues exactly one forecast request for name over filterDays.
func (v *PredictionView) Predict(ctx context.Context, name string, filterDays int) (*models.PredictionResult, error) {
	display, ok := komoditas.Lookup(name)
	if !ok {
		return nil, v.end(apperr.NewValidationError("komoditas", "Pilih komoditas terlebih dahulu"))
	}
	if !validFilter(filterDays) {
		return nil, v.end(apperr.NewValidationError("filter_days", "Filter hari harus 3, 7, atau 30"))
	}
	if err := v.session.Guard(); err != nil {
		return nil, v.end(err)
	}

	v.begin()
	preds, hist, err := v.backend.PredictWithFilter(ctx, display, filterDays)
	if err != nil {
		logger.Warnf("prediction for %s (%d days) failed: %v", display, filterDays, err)
		return nil, v.end(err)
	}

	result := &models.PredictionResult{
		Komoditas:   display,
		FilterDays:  filterDays,
		Predictions: preds,
		Historical:  hist,
		Stats:       ComputeStats(preds, hist),
	}

	v.mu.Lock()
	v.result = result
	v.mu.Unlock()

	logger.Debugf("prediction for %s: %d points", display, len(preds))
	return result, v.end(nil)
}

// Future fetches the 30-day forecast the admin pages show.
func (v *PredictionView) Future(ctx context.Context, name string) (*models.PredictionResult, error) {
	display, ok := komoditas.Lookup(name)
	if !ok {
		return nil, v.end(apperr.NewValidationError("komoditas", fmt.Sprintf("Komoditas tidak dikenal: %s", name)))
	}
	if err := v.session.Guard(); err != nil {
		return nil, v.end(err)
	}

	v.begin()
	preds, err := v.backend.PredictFuture(ctx, display)
	if err != nil {
		return nil, v.end(err)
	}
	return &models.PredictionResult{
		Komoditas:   display,
		FilterDays:  len(preds),
		Predictions: preds,
		Stats:       ComputeStats(preds, nil),
	}, v.end(nil)
}

// Result returns the last successful forecast, or nil.
func (v *PredictionView) Result() *models.PredictionResult {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.result
}

// ComputeStats summarizes preds. The trend compares the last predicted
// price with the most recent historical price, hist[0].
func ComputeStats(preds []models.PredictionPoint, hist []models.HistoricalPoint) *models.PredictionStats {
	if len(preds) == 0 {
		return nil
	}

	stats := &models.PredictionStats{Max: preds[0].PredictedPrice, Min: preds[0].PredictedPrice}
	var sum float64
	for _, p := range preds {
		if p.PredictedPrice > stats.Max {
			stats.Max = p.PredictedPrice
		}
		if p.PredictedPrice < stats.Min {
			stats.Min = p.PredictedPrice
		}
		sum += p.PredictedPrice
	}
	stats.Avg = sum / float64(len(preds))

	if len(hist) > 0 {
		latest := hist[0].Price
		stats.Trend = preds[len(preds)-1].PredictedPrice - latest
		if latest != 0 {
			stats.TrendPercentage = stats.Trend / latest * 100
		}
	}
	return stats
}

func validFilter(days int) bool {
	for _, d := range FilterDays {
		if d == days {
			return true
		}
	}
	return false
}
