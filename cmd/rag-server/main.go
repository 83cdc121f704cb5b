package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/thegovind/adaptiverag-work/pkg/config"
	"github.com/thegovind/adaptiverag-work/pkg/handlers"
	"github.com/thegovind/adaptiverag-work/pkg/services"
)

const serviceVersion = "1.0.0"

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Update logger level based on configuration
	logger = createLoggerWithLevel(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Starting RAG workbench service",
		slog.String("version", serviceVersion),
		slog.Int("port", cfg.Port),
		slog.String("model", cfg.LLMModel),
		slog.Bool("weaviate_enabled", cfg.EnableWeaviate),
		slog.Bool("redis_sessions", cfg.UseRedisSessions),
	)

	service, err := services.NewRAGService(cfg)
	if err != nil {
		logger.Error("Failed to initialize service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := setupHTTPServer(cfg, service)

	go func() {
		logger.Info("Server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.String("error", err.Error()))
	}

	logger.Info("Server exited")
}

func setupHTTPServer(cfg *config.Config, service *services.RAGService) *http.Server {
	metrics := handlers.NewMetrics()
	chatHandler := handlers.NewChatHandler(service, metrics)
	ingestHandler := handlers.NewIngestHandler(service, metrics)
	healthHandler := handlers.NewHealthHandler(service, serviceVersion)

	router := mux.NewRouter()
	router.Use(metrics.Middleware)

	router.HandleFunc("/chat", chatHandler.HandleChat).Methods(http.MethodPost)

	router.HandleFunc("/ingest/upload", ingestHandler.HandleUpload).Methods(http.MethodPost)
	router.HandleFunc("/ingest/upload-with-progress/{session_id}", ingestHandler.HandleUploadWithProgress).Methods(http.MethodPost)
	router.HandleFunc("/ingest/processing-status/{session_id}", ingestHandler.HandleProcessingStatus).Methods(http.MethodGet)
	router.HandleFunc("/ingest/processing-stream/{session_id}", ingestHandler.HandleProcessingStream).Methods(http.MethodGet)
	router.HandleFunc("/index/stats", ingestHandler.HandleIndexStats).Methods(http.MethodGet)

	router.HandleFunc("/healthz", healthHandler.HandleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthHandler.HandleReadyz).Methods(http.MethodGet)
	router.HandleFunc("/token-usage", healthHandler.HandleTokenUsage).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return &http.Server{
		Addr:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout,
		// WriteTimeout stays unset so long-lived SSE responses are not cut
		// off mid-stream.
		WriteTimeout: cfg.WriteTimeout,
	}
}

// createLoggerWithLevel creates a JSON logger at the configured level.
func createLoggerWithLevel(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel,
	}))
}
