package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mdconvert/backend/internal/api"
	"github.com/mdconvert/backend/internal/config"
	"github.com/mdconvert/backend/internal/convert"
	"github.com/mdconvert/backend/internal/intake"
	"github.com/mdconvert/backend/internal/retention"
	"github.com/mdconvert/backend/internal/staging"
	"github.com/mdconvert/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Resolve the config file next to the executable
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, "markdown-converter.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Without writable temporary storage the service cannot operate.
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	store, err := staging.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		fmt.Printf("Failed to initialize staging store: %v\n", err)
		os.Exit(1)
	}

	converter := convert.NewMarkItDown(cfg.Conversion.MarkItDownPath)
	if !converter.Available() {
		fmt.Println("Warning: markitdown binary not found; uploads will fail until it is installed (pip install markitdown)")
	}

	dispatcher := convert.NewDispatcher(store, converter)
	intakeMgr := intake.NewManager(store, cfg.MaxFileSizeBytes())

	// Age-based sweep runs independently of request handling.
	sweeper := retention.NewSweeper(store, cfg.GetUploadDir(), cfg.RetentionWindow(), cfg.SweepInterval())
	go sweeper.Run(context.Background())

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.Gzip())
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	h := api.NewHandler(store, intakeMgr, dispatcher, converter.Available)
	api.RegisterRoutes(e, h)

	if err := web.RegisterStaticRoutes(e); err != nil {
		fmt.Printf("Warning: failed to register static routes: %v\n", err)
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	converterState := "found"
	if !converter.Available() {
		converterState = "MISSING"
	}

	fmt.Printf("\n")
	fmt.Printf("Markdown Converter Server\n")
	fmt.Printf("  Version:     %s (%s)\n", Version, BuildTime)
	fmt.Printf("  Config:      %s\n", configPath)
	fmt.Printf("  Listen:      http://%s\n", cfg.GetServerAddr())
	fmt.Printf("  Uploads:     %s\n", cfg.GetUploadDir())
	fmt.Printf("  Size cap:    %d MB\n", cfg.Retention.MaxFileSizeMB)
	fmt.Printf("  Retention:   %dh (sweep every %dm)\n", cfg.Retention.FileExpiryHours, cfg.Retention.SweepIntervalMinutes)
	fmt.Printf("  markitdown:  %s\n", converterState)
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
