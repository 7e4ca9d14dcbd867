package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/atulwalsh/legal-intake-ai/cmd/mainconfig"
	"github.com/atulwalsh/legal-intake-ai/internal/api/router"
	"github.com/atulwalsh/legal-intake-ai/internal/archive"
	"github.com/atulwalsh/legal-intake-ai/internal/casestore"
	appconfig "github.com/atulwalsh/legal-intake-ai/internal/config"
	"github.com/atulwalsh/legal-intake-ai/internal/extraction"
	"github.com/atulwalsh/legal-intake-ai/internal/ingest"
	"github.com/atulwalsh/legal-intake-ai/internal/llm"
	"github.com/atulwalsh/legal-intake-ai/internal/notify"
	"github.com/atulwalsh/legal-intake-ai/internal/observability/metrics"
	"github.com/atulwalsh/legal-intake-ai/internal/session"
	"github.com/atulwalsh/legal-intake-ai/internal/store"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

func main() {
	// .env is optional; real deployments configure via the environment.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting legal-intake-ai API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Conversational capability. Gemini doubles as the image reader for
	// uploaded photographs; Bedrock deployments keep it for vision only.
	var client llm.Client
	var images llm.ImageReader
	var gemini *llm.GeminiClient
	if cfg.GeminiAPIKey != "" {
		gemini, err = llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID, cfg.GeminiVisionModelID)
		if err != nil {
			logger.Error("failed to init Gemini client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = gemini.Close() }()
		images = gemini
	}
	switch cfg.LLMProvider {
	case "gemini":
		if gemini == nil {
			logger.Error("LLM_PROVIDER=gemini requires GEMINI_API_KEY")
			os.Exit(1)
		}
		client = gemini
	default:
		client = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID, llm.WithBedrockLogger(logger))
	}
	if images == nil {
		images = unsupportedImages{}
	}

	// Storage.
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	docStore := store.NewDynamoStore(dynamoClient, cfg.IntakeTable, logger)
	mapper := casestore.NewMapper(docStore, casestore.WithLogger(logger))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	states := session.NewStateStore(redisClient)

	// Extraction and file ingestion.
	engine := extraction.NewEngine(client, extraction.WithLogger(logger))
	pipeline := ingest.NewPipeline(images, ingest.WithPipelineLogger(logger))
	analyzer := ingest.NewAnalyzer(client, ingest.WithAnalyzerLogger(logger))

	opts := []session.OrchestratorOption{
		session.WithLogger(logger),
		session.WithTurnTimeout(cfg.TurnTimeout),
		session.WithMetrics(metrics.NewSessionMetrics(nil)),
	}

	if cfg.UploadBucket != "" {
		s3Client := s3.NewFromConfig(awsCfg)
		opts = append(opts, session.WithUploadStore(ingest.NewUploadStore(s3Client, cfg.UploadBucket, logger)))
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		opts = append(opts, session.WithTranscriptArchiver(archive.NewTranscriptStore(pool, logger)))
	}

	if cfg.ReportFromEmail != "" {
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.ReportFromEmail,
			FromName:  cfg.ReportFromName,
		}, logger)
		opts = append(opts, session.WithReportSender(notify.NewReportMailer(sender, logger)))
	}

	orchestrator := session.NewOrchestrator(client, engine, mapper, pipeline, analyzer, states, opts...)

	// Turn processing runs through the job queue so slow capability calls
	// never stall the HTTP accept loop.
	var dispatcher *session.Dispatcher
	if cfg.UseMemoryQueue || cfg.SessionQueueURL == "" {
		dispatcher = session.NewDispatcher(orchestrator, session.NewMemoryQueue(64), logger, session.WithWorkerCount(cfg.WorkerCount))
	} else {
		queue := session.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SessionQueueURL)
		dispatcher = session.NewDispatcher(orchestrator, queue, logger, session.WithWorkerCount(cfg.WorkerCount))
	}

	handler := session.NewHandler(dispatcher, cfg.MaxUploadBytes, logger)
	r := router.New(&router.Config{
		Logger:             logger,
		SessionHandler:     handler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.TurnTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// unsupportedImages stands in when no vision capability is configured.
type unsupportedImages struct{}

func (unsupportedImages) ReadImageText(context.Context, []byte, string) (string, error) {
	return "", fmt.Errorf("image text extraction requires GEMINI_API_KEY")
}
