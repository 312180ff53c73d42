// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/harga-pangan/console/internal/models"
	"github.com/harga-pangan/console/internal/workflow"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionHandler handles login state
type SessionHandler interface {
	HandleGetSession(c echo.Context) error
	HandleLogin(c echo.Context) error
	HandleLogout(c echo.Context) error
	HandleRegister(c echo.Context) error
}

// WorkflowHandler handles the admin training pipeline
type WorkflowHandler interface {
	HandleGetWorkflow(c echo.Context) error
	HandleRefresh(c echo.Context) error
	HandleJournal(c echo.Context) error
	HandleUploadDataset(c echo.Context) error
	HandleDeleteDataset(c echo.Context) error
	HandleStagedFiles(c echo.Context) error
	HandlePreprocess(c echo.Context) error
	HandleTrain(c echo.Context) error
}

// PredictionHandler handles forecasts
type PredictionHandler interface {
	HandlePredict(c echo.Context) error
	HandleFuture(c echo.Context) error
}

// HistoryHandler handles the training schedule and charts
type HistoryHandler interface {
	HandleHistory(c echo.Context) error
	HandlePlots(c echo.Context) error
	HandlePlotImage(c echo.Context) error
}

// ScrapingHandler handles the scraping dashboard
type ScrapingHandler interface {
	HandleScrapingStatus(c echo.Context) error
	HandleRunScraping(c echo.Context) error
}

// SessionService is the login state the server acts on behalf of.
// This allows mocking in tests
type SessionService interface {
	Login(ctx context.Context, username, password string) (*models.User, error)
	Register(ctx context.Context, username, password, confirm string, isAdmin bool) (string, error)
	Logout()
	Info() models.SessionInfo
	Authorize(requiredRole string) models.RouteDecision
	Guard() error
}

// WorkflowService is the admin pipeline.
type WorkflowService interface {
	Snapshot() workflow.Snapshot
	Refresh(ctx context.Context) error
	Journal() []workflow.Event
	Upload(ctx context.Context, name, fileName string, content io.Reader) (*models.DatasetSlot, error)
	Delete(ctx context.Context, name string) error
	Preprocess(ctx context.Context) error
	Train(ctx context.Context, name string) error
	Subscribe(buffer int) (<-chan workflow.Event, func())
}

// DatasetInspector checks a staged CSV before it is forwarded.
type DatasetInspector interface {
	Inspect(ctx context.Context, path string) (*models.DatasetPreview, error)
}
