// reportengine runs the report execution pipeline: an HTTP/WebSocket API,
// a cron-driven task scheduler, and the Postgres LISTEN/NOTIFY progress
// relay, all wired against a single pgx connection pool.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/reportforge/reportengine/internal/agent"
	"github.com/reportforge/reportengine/internal/agent/facade"
	"github.com/reportforge/reportengine/internal/agent/planner"
	"github.com/reportforge/reportengine/internal/agent/ptav"
	"github.com/reportforge/reportengine/internal/agent/stepexec"
	"github.com/reportforge/reportengine/internal/agent/validator"
	"github.com/reportforge/reportengine/internal/api"
	"github.com/reportforge/reportengine/internal/config"
	"github.com/reportforge/reportengine/internal/database"
	"github.com/reportforge/reportengine/internal/datasource"
	"github.com/reportforge/reportengine/internal/document"
	"github.com/reportforge/reportengine/internal/etl"
	"github.com/reportforge/reportengine/internal/events"
	"github.com/reportforge/reportengine/internal/notify"
	"github.com/reportforge/reportengine/internal/pipeline"
	"github.com/reportforge/reportengine/internal/scheduler"
	"github.com/reportforge/reportengine/internal/storage"
	"github.com/reportforge/reportengine/internal/tools"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, *configDir)
	if err != nil {
		logger.Error("load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to postgres and applied migrations")

	taskRepo := database.NewTaskRepository(db)
	placeholderRepo := database.NewPlaceholderRepository(db)
	executionRepo := database.NewExecutionRepository(db)
	artifactRepo := database.NewArtifactRepository(db)
	lockRepo := database.NewLockRepository(db)

	// DataSourceConnector is an external collaborator (spec's Non-goals):
	// the engine only holds the registry and relies on deployment-specific
	// code to Register real connectors for each configured data source. A
	// StubConnector is registered here as a placeholder so a fresh install
	// has something to query against before that wiring exists.
	dataSources := datasource.NewRegistry()
	for id := range cfg.DataSources {
		dataSources.Register(id, datasource.NewStubConnector())
	}

	llm, err := agent.NewAnthropicLLMClient(cfg.LLM.APIKeyEnv, cfg.LLM.Model, cfg.LLM.MaxRetries)
	if err != nil {
		logger.Error("construct LLM client", "error", err)
		os.Exit(1)
	}

	toolRegistry := tools.NewBuiltinRegistry(dataSources, cfg.Pipeline.SQLExecuteTimeout())
	toolExecutor := agent.NewRegistryToolExecutor(toolRegistry)

	plan := planner.New(llm, toolRegistry)
	exec := stepexec.New(toolExecutor, nil)
	val := validator.New()
	orch := ptav.New(plan, exec, val, cfg.Pipeline.MaxIterations())
	agentFacade := facade.New(orch)

	etlRunner := etl.New(dataSources, cfg.Pipeline.SQLExecuteTimeout())
	assembler := &document.StubAssembler{}

	var primaryBackend storage.Backend
	if cfg.Storage.PrimaryEnabled {
		s3, err := storage.NewS3Backend(ctx, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.Endpoint, cfg.Storage.AccessKeyEnv, cfg.Storage.SecretKeyEnv)
		if err != nil {
			logger.Warn("construct S3 backend, falling back to local-only storage", "error", err)
		} else {
			primaryBackend = s3
		}
	}
	localBackend := storage.NewLocalBackend(cfg.Storage.LocalFallbackDir, cfg.Storage.LocalPublicURL)
	store := storage.New(primaryBackend, localBackend, logger)

	recorder := events.NewRecorder(db.Pool)
	connManager := events.NewConnectionManager(recorder, 0)
	listener := events.NewNotifyListener(cfg.Database.DSN(), connManager)
	connManager.SetListener(listener)
	if err := listener.Start(ctx); err != nil {
		logger.Error("start notify listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop(context.Background())

	var notifier pipeline.Notifier
	if cfg.Slack.Enabled {
		notifier = notify.NewClient(os.Getenv(cfg.Slack.BotTokenEnv), cfg.Slack.Channel)
	}

	pipe := pipeline.New(
		taskRepo, placeholderRepo, executionRepo, artifactRepo,
		recorder, notifier,
		agentFacade, etlRunner, assembler, store,
		dataSources, toolRegistry, llm,
		cfg.Pipeline, cfg.Storage.ObjectKeyTemplate, logger,
	)

	ownerID, _ := os.Hostname()
	sched := scheduler.New(taskRepo, lockRepo, pipe, ownerID, cfg.Scheduler.LockTTL(), logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	janitor := scheduler.NewJanitor(lockRepo, cfg.Scheduler.JanitorInterval(), logger)
	go janitor.Run(ctx)
	defer janitor.Stop()

	gin.SetMode(getEnv("GIN_MODE", "release"))
	server := api.NewServer(pipe, taskRepo, executionRepo, connManager, cfg.AllowedWSOrigins, logger)
	if cfg.Storage.LocalPublicURL != "" {
		server.ServeLocalFiles("/files", cfg.Storage.LocalFallbackDir)
	}

	addr := cfg.APIAddr
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("starting reportengine", "addr", addr)
	if err := server.Run(addr); err != nil {
		logger.Error("http server exited", "error", err)
		os.Exit(1)
	}
}
