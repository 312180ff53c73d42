package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/harga-pangan/console/internal/api"
	"github.com/harga-pangan/console/internal/apiclient"
	"github.com/harga-pangan/console/internal/config"
	"github.com/harga-pangan/console/internal/dataset"
	"github.com/harga-pangan/console/internal/logging"
	"github.com/harga-pangan/console/internal/session"
	"github.com/harga-pangan/console/internal/storage"
	"github.com/harga-pangan/console/internal/workflow"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	stagingSweepInterval = 10 * time.Minute
	stagingMaxAge        = time.Hour
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	configPath := flag.String("config", filepath.Join(exeDir, config.FileName), "path to the YAML config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Printf("Failed to load environment: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	logging.SetLevel(cfg.Logging.Level)
	logger := logging.New("server")

	// Backend client and the session it authenticates with
	client := apiclient.New(cfg.Backend.BaseURL, apiclient.WithTimeout(cfg.Backend.Timeout))

	kv, err := storage.NewFileKV(cfg.Storage.StateDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize session storage: %v\n", err)
		os.Exit(1)
	}
	sessionMgr := session.NewManager(kv, client)
	client.SetTokenSource(sessionMgr)

	// Initialize staging storage for uploaded datasets
	fileStore, err := storage.NewLocalStore(cfg.Storage.StagingDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Background sweep for staged files an interrupted upload left behind
	go func() {
		ticker := time.NewTicker(stagingSweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := fileStore.Sweep(stagingMaxAge); err != nil {
				logger.Warnf("Staging sweep: %v", err)
			} else if n > 0 {
				logger.Infof("Staging sweep removed %d files", n)
			}
		}
	}()

	inspector, err := dataset.NewInspector()
	if err != nil {
		fmt.Printf("Failed to initialize dataset inspector: %v\n", err)
		os.Exit(1)
	}
	defer inspector.Close()

	wfCfg := workflow.DefaultConfig()
	wfCfg.PollInterval = cfg.Workflow.PollInterval
	wfCfg.RequestTimeout = cfg.Workflow.RequestTimeout
	wfCfg.AutoPreprocess = cfg.Workflow.AutoPreprocess
	wfCfg.AutoTrain = cfg.Workflow.AutoTrain
	controller := workflow.NewController(client, sessionMgr, wfCfg)
	defer controller.Close()

	// Pick up a session left by a previous run, and any training job the
	// backend is still running for it.
	if sessionMgr.Restore() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Workflow.RequestTimeout)
		if err := controller.Refresh(ctx); err != nil {
			logger.Warnf("Initial refresh failed: %v", err)
		}
		cancel()
	}

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Logging.RequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasPrefix(path, "/api/ws/")
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: cfg.Server.ReadTimeout,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/api/ws/") ||
				strings.HasPrefix(path, "/api/workflow/") ||
				strings.HasPrefix(path, "/api/scraping/run")
		},
		ErrorMessage: "Request timeout - backend took too long",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := cfg.Server.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, apiclient.HeaderRequestID},
			ExposeHeaders: []string{apiclient.HeaderRequestID, "X-Redirect"},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Session:        sessionMgr,
		Workflow:       controller,
		Backend:        client,
		Store:          fileStore,
		Inspector:      inspector,
		BackendURL:     cfg.Backend.BaseURL,
		Version:        Version,
		AllowedOrigins: cfg.Server.AllowOrigins,
	}))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	user := "-"
	if info := sessionMgr.Info(); info.Authenticated {
		user = info.User.Username
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Harga Pangan Console                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Session:    %-45s║\n", user)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", *configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.BaseURL)
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Shutdown: %v", err)
	}
}
