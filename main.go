package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/hepavision/fibrostage/internal/api"
	"github.com/hepavision/fibrostage/internal/auth"
	"github.com/hepavision/fibrostage/internal/classifier"
	"github.com/hepavision/fibrostage/internal/config"
	"github.com/hepavision/fibrostage/internal/database"
	"github.com/hepavision/fibrostage/internal/labels"
	"github.com/hepavision/fibrostage/internal/logger"
	"github.com/hepavision/fibrostage/internal/services"
	"github.com/hepavision/fibrostage/internal/web"
)

func main() {
	// A .env file is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger.Init()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Ensure the upload directory exists
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create upload directory")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up services and the inference engine. The model artifact is only
	// loaded on first use.
	userService := services.NewUserService(db)
	predictionService := services.NewPredictionService(db)
	engine := classifier.NewEngine(cfg.ModelPath)
	labelMap := labels.NewMap(cfg.LabelMapPath)
	sessionManager := auth.NewManager(cfg.SessionSecret, cfg.SecureCookies)

	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse templates")
	}

	// Set up router
	router := api.NewRouter(api.RouterDeps{
		DB:          db,
		Users:       userService,
		Predictions: predictionService,
		Engine:      engine,
		Labels:      labelMap,
		Sessions:    sessionManager,
		Renderer:    renderer,
		UploadDir:   cfg.UploadDir,
		MaxUpload:   cfg.MaxUploadBytes,
	})

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
