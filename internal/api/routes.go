// routes.go - Route registration helpers
package api

import (
	"github.com/harga-pangan/console/internal/models"
	"github.com/harga-pangan/console/internal/storage"
	"github.com/harga-pangan/console/internal/views"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Session        SessionService
	Workflow       WorkflowService
	Backend        views.Backend
	Store          storage.Store
	Inspector      DatasetInspector
	BackendURL     string
	Version        string
	AllowedOrigins []string
}

// Handlers holds all handler instances
type Handlers struct {
	Health     HealthHandler
	Session    SessionHandler
	Workflow   WorkflowHandler
	Prediction PredictionHandler
	History    HistoryHandler
	Scraping   ScrapingHandler
	WebSocket  *WebSocketHandler

	session SessionService
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(deps.Version, deps.BackendURL, deps.Session),
		Session:    NewSessionHandler(deps.Session),
		Workflow:   NewWorkflowHandler(deps.Workflow, deps.Store, deps.Inspector),
		Prediction: NewPredictionHandler(views.NewPredictionView(deps.Backend, deps.Session)),
		History:    NewHistoryHandler(views.NewHistoryView(deps.Backend, deps.Session)),
		Scraping:   NewScrapingHandler(views.NewScrapingView(deps.Backend)),
		WebSocket:  NewWebSocketHandler(deps.Workflow, deps.AllowedOrigins),
		session:    deps.Session,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Session
	apiGroup.GET("/session", handlers.Session.HandleGetSession)
	apiGroup.POST("/session/login", handlers.Session.HandleLogin)
	apiGroup.POST("/session/logout", handlers.Session.HandleLogout)
	apiGroup.POST("/session/register", handlers.Session.HandleRegister)

	// Prediction is open to any signed-in user
	userGroup := apiGroup.Group("", RequireRole(handlers.session, models.RoleUser))
	userGroup.POST("/predict", handlers.Prediction.HandlePredict)

	adminGroup := apiGroup.Group("", RequireRole(handlers.session, models.RoleAdmin))

	// Training workflow
	adminGroup.GET("/workflow", handlers.Workflow.HandleGetWorkflow)
	adminGroup.POST("/workflow/refresh", handlers.Workflow.HandleRefresh)
	adminGroup.GET("/workflow/journal", handlers.Workflow.HandleJournal)
	adminGroup.GET("/workflow/staged", handlers.Workflow.HandleStagedFiles)
	adminGroup.POST("/workflow/datasets", handlers.Workflow.HandleUploadDataset)
	adminGroup.DELETE("/workflow/datasets/:komoditas", handlers.Workflow.HandleDeleteDataset)
	adminGroup.POST("/workflow/preprocess", handlers.Workflow.HandlePreprocess)
	adminGroup.POST("/workflow/train", handlers.Workflow.HandleTrain)
	adminGroup.GET("/ws/workflow", handlers.WebSocket.HandleWebSocket)

	// Forecasts, history and charts
	adminGroup.GET("/predict/future/:komoditas", handlers.Prediction.HandleFuture)
	adminGroup.GET("/history", handlers.History.HandleHistory)
	adminGroup.GET("/history/:komoditas/plots", handlers.History.HandlePlots)
	adminGroup.GET("/plots/:komoditas", handlers.History.HandlePlotImage)

	// Scraping dashboard
	adminGroup.GET("/scraping", handlers.Scraping.HandleScrapingStatus)
	adminGroup.POST("/scraping/run", handlers.Scraping.HandleRunScraping)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
	e.Use(RequestID())
	e.Use(middleware.Recover())
}
