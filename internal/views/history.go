package views

import (
	"context"
	"fmt"

	"github.com/harga-pangan/console/internal/apiclient"
	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/komoditas"
	"github.com/harga-pangan/console/internal/models"
)

// PlotURLs are the chart paths for one commodity. They carry a fresh
// timestamp each time they are built.
type PlotURLs struct {
	Komoditas       string `json:"komoditas"`
	TrainingHistory string `json:"trainingHistory"`
	Prediction      string `json:"prediction"`
}

// HistoryView shows the training schedule and the charts of each model.
type HistoryView struct {
	state
	backend Backend
	session Session
	entries []models.TrainingHistoryEntry
}

// NewHistoryView creates an empty history view.
func NewHistoryView(backend Backend, session Session) *HistoryView {
	return &HistoryView{state: newState(), backend: backend, session: session}
}

// Load fetches the training schedule of every model.
func (v *HistoryView) Load(ctx context.Context) ([]models.TrainingHistoryEntry, error) {
	if err := v.session.Guard(); err != nil {
		return nil, v.end(err)
	}

	v.begin()
	entries, err := v.backend.TrainingHistory(ctx)
	if err != nil {
		return nil, v.end(err)
	}

	v.mu.Lock()
	v.entries = entries
	v.mu.Unlock()
	return entries, v.end(nil)
}

// Entries returns the last loaded schedule.
func (v *HistoryView) Entries() []models.TrainingHistoryEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]models.TrainingHistoryEntry(nil), v.entries...)
}

// Plots builds cache-busted chart paths for name.
func (v *HistoryView) Plots(name string) (*PlotURLs, error) {
	display, ok := komoditas.Lookup(name)
	if !ok {
		return nil, apperr.NewValidationError("komoditas", fmt.Sprintf("Komoditas tidak dikenal: %s", name))
	}
	now := v.clock()
	return &PlotURLs{
		Komoditas:       display,
		TrainingHistory: apiclient.PlotImagePath(display, apiclient.PlotTrainingHistory, now),
		Prediction:      apiclient.PredictionPlotPath(display, now),
	}, nil
}

// Image fetches the chart at plotPath and returns its bytes and content
// type.
func (v *HistoryView) Image(ctx context.Context, plotPath string) ([]byte, string, error) {
	if err := v.session.Guard(); err != nil {
		return nil, "", v.end(err)
	}

	v.begin()
	data, contentType, err := v.backend.PlotImage(ctx, plotPath)
	if err != nil {
		return nil, "", v.end(err)
	}
	return data, contentType, v.end(nil)
}
