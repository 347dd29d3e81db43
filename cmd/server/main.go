package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/stobylabs/stoby/adapters"
	"github.com/stobylabs/stoby/adapters/cache"
	"github.com/stobylabs/stoby/adapters/llm"
	stobymongo "github.com/stobylabs/stoby/adapters/mongo"
	"github.com/stobylabs/stoby/adapters/search"
	"github.com/stobylabs/stoby/adapters/stt"
	"github.com/stobylabs/stoby/adapters/tts"
	"github.com/stobylabs/stoby/domain/entities"
	"github.com/stobylabs/stoby/internal/api"
	"github.com/stobylabs/stoby/internal/auth"
	"github.com/stobylabs/stoby/internal/config"
	"github.com/stobylabs/stoby/internal/websocket"
	"github.com/stobylabs/stoby/usecase"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	// Echo instance and middleware
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Storage
	mongoClient, err := stobymongo.NewClient(cfg.Mongo.URI, cfg.Mongo.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoClient.Close(ctx)
	}()
	sessionRepo := stobymongo.NewSessionRepository(mongoClient.Database)

	deviceRepo := adapters.NewMemoryDeviceRepository()
	seedDevices(deviceRepo, logger)

	// Language and speech services
	gemini, err := llm.NewGeminiLLM(llm.GeminiConfig{
		APIKey:         cfg.Gemini.APIKey,
		Model:          cfg.Gemini.Model,
		EmbeddingModel: cfg.Gemini.EmbeddingModel,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Gemini", zap.Error(err))
	}

	textToSpeech, err := tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize text-to-speech", zap.Error(err))
	}

	searcher, err := search.NewTavilySearcher(search.TavilyConfig{
		APIKey:     cfg.Search.APIKey,
		APIBaseURL: cfg.Search.APIBaseURL,
		MaxResults: cfg.Search.MaxResults,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize web search", zap.Error(err))
	}

	speechToText := stt.NewGoogleSpeechToText()
	responseCache := cache.NewSemanticCache(gemini, logger)

	// Control loop services
	intentClassifier := llm.NewGeminiIntentClassifier(gemini, logger)
	taskClassifier := llm.NewGeminiTaskClassifier(gemini, logger)
	decomposer := llm.NewGeminiActionDecomposer(gemini, logger)
	ragPipeline := usecase.NewRagPipeline(searcher, gemini, logger)

	executor := usecase.NewTaskExecutor(
		taskClassifier,
		gemini,
		ragPipeline,
		decomposer,
		textToSpeech,
		responseCache,
		sessionRepo,
		cfg.STT.Language,
		logger,
	)

	hub := websocket.NewHub(speechToText, intentClassifier, executor, cfg, logger)
	go hub.Run()

	cleanup := websocket.NewSessionCleanupService(sessionRepo, logger)
	cleanup.Start()
	defer cleanup.Stop()

	jwtManager := auth.NewManager(cfg.JWTSecret)
	api.InitRoutes(e, hub, deviceRepo, jwtManager, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// seedDevices registers devices listed in DEVICE_SERIAL/DEVICE_SECRET so a
// fresh install has something to authenticate with.
func seedDevices(repo *adapters.MemoryDeviceRepository, logger *zap.Logger) {
	serial := os.Getenv("DEVICE_SERIAL")
	secret := os.Getenv("DEVICE_SECRET")
	if serial == "" || secret == "" {
		serial = "STB-0001"
		secret = "stoby-dev-secret"
	}

	device := &entities.Device{
		SerialNumber: serial,
		SecretKey:    secret,
		Model:        "stoby-v1",
	}
	if err := repo.Create(context.Background(), device); err != nil {
		logger.Warn("Failed to seed device", zap.Error(err))
		return
	}
	logger.Info("Seeded device", zap.String("serial_number", serial))
}
