package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ragbench/auth"
	"github.com/ragbench/config"
	"github.com/ragbench/handlers"
	"github.com/ragbench/models"
	"github.com/ragbench/providers"
	"github.com/ragbench/services/eval"
	"github.com/ragbench/services/impl"
	"github.com/ragbench/services/ingest"
	"github.com/ragbench/vectorstore"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize database connection
	db, err := initDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schema
	if err := db.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.Document{},
		&models.Chunk{},
		&models.TestDataset{},
		&models.TestQuestion{},
		&models.Evaluation{},
		&models.ModelResult{},
		&models.QuestionMetrics{},
		&models.EvaluationSummary{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize the vector index: pgvector when a DSN is configured,
	// otherwise an in-process index that does not survive restarts.
	index, closeIndex, err := initVectorIndex(cfg)
	if err != nil {
		log.Fatal("Failed to initialize vector index:", err)
	}
	defer closeIndex()

	// Initialize Redis for the embedding cache; the service runs without it.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddress(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Printf("Warning: Redis connection failed, embedding cache disabled: %v", err)
			redisClient = nil
		} else {
			log.Println("Redis connection established for embedding cache")
		}
	}

	// Pricing table: unknown models cost zero and log a warning.
	pricing, err := providers.LoadPricingTable(cfg.Pipeline.PricingTablePath)
	if err != nil {
		log.Fatal("Failed to load pricing table:", err)
	}

	registry := providers.NewRegistry(providers.Config{
		OpenAI:          providerConfig(cfg.Providers.OpenAI),
		Anthropic:       providerConfig(cfg.Providers.Anthropic),
		Mistral:         providerConfig(cfg.Providers.Mistral),
		Together:        providerConfig(cfg.Providers.Together),
		HuggingFace:     providerConfig(cfg.Providers.HuggingFace),
		EmbedTimeout:    time.Duration(cfg.Pipeline.EmbedTimeout) * time.Second,
		GenerateTimeout: time.Duration(cfg.Pipeline.GenerateTimeout) * time.Second,
		JudgeTimeout:    time.Duration(cfg.Pipeline.JudgeTimeout) * time.Second,
		EmbedCacheTTL:   time.Duration(cfg.Redis.EmbedCacheTTL) * time.Second,
	}, pricing, redisClient)

	// Initialize services
	tracker := impl.NewJobTracker()
	pipeline := ingest.NewPipeline(db, index, registry)

	workspaceService := impl.NewWorkspaceService(db, index, tracker, cfg.Pipeline.UploadRoot)
	documentService := impl.NewDocumentService(db, index, pipeline, tracker, cfg.Pipeline.UploadRoot)
	datasetService := impl.NewDatasetService(db)
	retrievalService := impl.NewRetrievalService(db, index, registry)
	resultsService := impl.NewResultsService(db)

	executor := eval.NewExecutor(db, retrievalService, registry, cfg.Pipeline.WorkerPoolSize)
	evaluationService := impl.NewEvaluationService(db, registry, executor, tracker)

	// Initialize handlers
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTExpiration)*time.Second)
	authHandlers := handlers.NewAuthHandlers(db, tokens)
	workspaceHandlers := handlers.NewWorkspaceHandlers(workspaceService, documentService)
	ragHandlers := handlers.NewRAGHandlers(documentService, retrievalService, workspaceService)
	evaluationHandlers := handlers.NewEvaluationHandlers(datasetService, evaluationService, resultsService)

	router := setupRouter(authHandlers, workspaceHandlers, ragHandlers, evaluationHandlers, tokens, cfg)

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("RAG bench server starting on %s", cfg.GetServerAddress())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func initDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseDSN()), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.MaxLifetime) * time.Second)

	return db, nil
}

func initVectorIndex(cfg *config.Config) (vectorstore.Index, func(), error) {
	if cfg.VectorStore.DSN == "" {
		log.Println("VECTOR_STORE_DSN not set, using in-memory vector index")
		return vectorstore.NewMemoryIndex(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := vectorstore.NewPostgresIndex(ctx, cfg.VectorStore.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}
	log.Println("pgvector index initialized")
	return pg, pg.Close, nil
}

func providerConfig(pc config.ProviderConfig) providers.ProviderConfig {
	return providers.ProviderConfig{
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
		RPS:     pc.RPS,
	}
}

func setupRouter(
	authHandlers *handlers.AuthHandlers,
	workspaceHandlers *handlers.WorkspaceHandlers,
	ragHandlers *handlers.RAGHandlers,
	evaluationHandlers *handlers.EvaluationHandlers,
	tokens *auth.TokenManager,
	cfg *config.Config,
) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "ragbench",
		})
	})

	// Auth endpoints are the only unauthenticated API surface.
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", authHandlers.Signup)
		authGroup.POST("/login", authHandlers.Login)
	}

	authed := router.Group("/")
	authed.Use(handlers.AuthMiddleware(tokens))

	workspace := authed.Group("/workspace")
	{
		workspace.POST("/create", workspaceHandlers.CreateWorkspace)
		workspace.GET("/list", workspaceHandlers.ListWorkspaces)
		workspace.GET("/:id", workspaceHandlers.GetWorkspace)
		workspace.DELETE("/:id", workspaceHandlers.DeleteWorkspace)
		workspace.GET("/:id/documents", workspaceHandlers.ListDocuments)
		workspace.POST("/:id/upload", workspaceHandlers.UploadDocument)
	}

	rag := authed.Group("/rag")
	{
		rag.POST("/query", ragHandlers.Query)
		rag.GET("/:document_id", ragHandlers.GetDocument)
		rag.POST("/:document_id/process", ragHandlers.ProcessDocument)
		rag.DELETE("/:document_id", ragHandlers.DeleteDocument)
	}

	evaluation := authed.Group("/evaluation")
	{
		evaluation.POST("/dataset/create", evaluationHandlers.CreateDataset)
		evaluation.GET("/dataset/:id", evaluationHandlers.GetDataset)
		evaluation.POST("/dataset/:id/questions", evaluationHandlers.AddQuestion)
		evaluation.POST("/create", evaluationHandlers.CreateEvaluation)
		evaluation.GET("/:id", evaluationHandlers.GetEvaluation)
		evaluation.DELETE("/:id", evaluationHandlers.DeleteEvaluation)
	}

	results := authed.Group("/results")
	{
		results.GET("/:eval_id/summary", evaluationHandlers.GetSummary)
		results.GET("/:eval_id/detailed", evaluationHandlers.GetDetailed)
		results.GET("/:eval_id/metrics-by-model", evaluationHandlers.GetMetricsByModel)
	}

	return router
}
