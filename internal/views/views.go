// Package views implements the read-mostly screens: price prediction,
// training history and the scraping dashboard. Each view keeps its own
// loading and error state and shares nothing with the others.
package views

import (
	"context"
	"sync"
	"time"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/logging"
	"github.com/harga-pangan/console/internal/models"
)

// Backend is the part of the API the views call.
type Backend interface {
	PredictWithFilter(ctx context.Context, name string, filterDays int) ([]models.PredictionPoint, []models.HistoricalPoint, error)
	PredictFuture(ctx context.Context, name string) ([]models.PredictionPoint, error)
	TrainingHistory(ctx context.Context) ([]models.TrainingHistoryEntry, error)
	PlotImage(ctx context.Context, plotPath string) ([]byte, string, error)
	DataStatus(ctx context.Context, days int) (*models.DataStatus, error)
	CheckMapping(ctx context.Context) (*models.MappingStatus, error)
	Komoditas(ctx context.Context) ([]string, map[string]string, error)
	Scrape(ctx context.Context, daysBack int) (*models.ScrapeResult, error)
}

// Session is checked before any call that needs a bearer token.
type Session interface {
	Guard() error
}

// Status is the loading/error pair every view exposes.
type Status struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

var logger = logging.New("views")

// state is embedded by every view.
type state struct {
	mu      sync.RWMutex
	loading bool
	errMsg  string
	now     func() time.Time
}

func newState() state {
	return state{now: time.Now}
}

// Status returns the view's loading flag and last error message.
func (s *state) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{Loading: s.loading, Error: s.errMsg}
}

// SetClock replaces the clock used for cache-busting URLs.
func (s *state) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *state) begin() {
	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()
}

// end clears the loading flag and records err, if any, as the inline message.
func (s *state) end(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.errMsg = apperr.UserMessage(err)
	}
	return err
}

func (s *state) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}
