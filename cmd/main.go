package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docuvault/docuvault-backend/internal/cache"
	"github.com/docuvault/docuvault-backend/internal/config"
	"github.com/docuvault/docuvault-backend/internal/db"
	"github.com/docuvault/docuvault-backend/internal/handlers"
	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/observability"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/server"
	"github.com/docuvault/docuvault-backend/internal/services"
	"github.com/docuvault/docuvault-backend/internal/sse"
	"github.com/docuvault/docuvault-backend/internal/utils"
)

func main() {
	mode := os.Getenv("APP_ENV")
	log, err := logger.New(mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "docuvault-backend",
		Environment: mode,
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Failed to initialize Postgres", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("Failed to migrate Postgres", "error", err)
	}
	gdb := pg.DB()

	redisCache, err := cache.NewRedisCache(log)
	if err != nil {
		log.Fatal("Failed to initialize Redis", "error", err)
	}

	workerCfg, err := config.LoadWorkerConfig(log)
	if err != nil {
		log.Fatal("Failed to load worker config", "error", err)
	}

	// Repos
	userRepo := repos.NewUserRepo(gdb, log)
	tokenRepo := repos.NewUserTokenRepo(gdb, log)
	tenantRepo := repos.NewTenantRepo(gdb, log)
	membershipRepo := repos.NewMembershipRepo(gdb, log)
	folderRepo := repos.NewFolderRepo(gdb, log)
	blobRepo := repos.NewBlobInventoryRepo(gdb, log)
	jobRepo := repos.NewExtractionJobRepo(gdb, log)
	chunkRepo := repos.NewDocumentChunkRepo(gdb, log)
	qaRepo := repos.NewQAPairRepo(gdb, log)
	sessionRepo := repos.NewAgentSessionRepo(gdb, log)
	messageRepo := repos.NewAgentMessageRepo(gdb, log)

	// Services
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Fatal("Failed to initialize bucket service", "error", err)
	}
	avatarService, err := services.NewAvatarService(gdb, log, userRepo, bucketService)
	if err != nil {
		log.Fatal("Failed to initialize avatar service", "error", err)
	}
	authService, err := services.NewAuthService(gdb, log, userRepo, tokenRepo, avatarService)
	if err != nil {
		log.Fatal("Failed to initialize auth service", "error", err)
	}
	userService := services.NewUserService(gdb, log, userRepo, avatarService)
	tenantService := services.NewTenantService(gdb, log, tenantRepo, membershipRepo, userRepo)
	fileService := services.NewFileService(gdb, log, folderRepo, blobRepo, chunkRepo, jobRepo, bucketService, redisCache)

	aiClient, err := services.NewAIClient(log)
	if err != nil {
		log.Fatal("Failed to initialize AI client", "error", err)
	}
	docAI, err := services.NewDocAIService(ctx, log)
	if err != nil {
		log.Fatal("Failed to initialize Document AI service", "error", err)
	}

	hub := sse.NewSSEHub(log)

	qaService := services.NewQAService(gdb, log, workerCfg, aiClient, qaRepo, chunkRepo, blobRepo, hub)
	extractionService := services.NewExtractionService(
		gdb, log, workerCfg,
		jobRepo, blobRepo, chunkRepo,
		bucketService, docAI, qaService,
		hub, redisCache,
	)

	registry := services.NewToolRegistry(log,
		services.NewSearchFilesTool(blobRepo),
		services.NewGetDocumentTextTool(blobRepo, chunkRepo),
		services.NewLookupQATool(blobRepo, qaRepo),
	)
	agentService := services.NewAgentService(gdb, log, aiClient, registry, sessionRepo, messageRepo)

	// Worker + notify listener
	listener := db.NewNotifyListener(pg.DSN(), db.ExtractionJobsChannel, log)
	listener.Start(ctx)
	extractionService.StartWorker(ctx, listener.Wake())

	// HTTP
	router := server.NewRouter(server.RouterDeps{
		Log:            log,
		AuthService:    authService,
		MembershipRepo: membershipRepo,

		Healthcheck: handlers.NewHealthcheckHandler(gdb, redisCache, log),
		Auth:        handlers.NewAuthHandler(authService, log),
		User:        handlers.NewUserHandler(userService, log),
		Tenant:      handlers.NewTenantHandler(tenantService, log),
		Folder:      handlers.NewFolderHandler(fileService, log),
		Blob:        handlers.NewBlobHandler(fileService, log),
		Extraction:  handlers.NewExtractionHandler(extractionService, log),
		QA:          handlers.NewQAHandler(qaService, log),
		Agent:       handlers.NewAgentHandler(agentService, log),
		SSE:         handlers.NewSSEHandler(hub, log),
	})

	addr := ":" + utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	if docAI != nil {
		_ = docAI.Close()
	}
	log.Info("Shutdown complete")
}
