package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dataspect/dataspect/internal/api"
	"github.com/dataspect/dataspect/internal/config"
	"github.com/dataspect/dataspect/internal/contexts"
	"github.com/dataspect/dataspect/internal/datasets"
	"github.com/dataspect/dataspect/internal/db"
	"github.com/dataspect/dataspect/internal/engine"
	"github.com/dataspect/dataspect/internal/index"
	"github.com/dataspect/dataspect/internal/llm"
	"github.com/dataspect/dataspect/internal/repository"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := "."
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	dbConfig, err := config.LoadDBConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	llmConfig, err := config.LoadLLMConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load llm config: %v", err)
	}
	serverConfig, err := config.LoadServerConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load server config: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(dbConfig, serverConfig.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	contextRepo := repository.NewContextRepository(conn.Pool)
	datasetRepo := repository.NewDatasetRepository(conn.Pool)
	recordRepo := repository.NewQueryRecordRepository(conn.Pool)

	// Rebuild the dataset association index from stored contexts
	assoc := index.NewAssociation()
	owners, err := repository.ListContextOwners(ctx, conn.Pool)
	if err != nil {
		log.Fatalf("Failed to list context owners: %v", err)
	}
	if err := assoc.Rebuild(ctx, contextRepo, owners); err != nil {
		log.Fatalf("Failed to rebuild association index: %v", err)
	}

	// Create services; the dataset service doubles as the registry that
	// context validation resolves dataset references against
	datasetService := datasets.NewService(datasetRepo, datasets.NewLoader(serverConfig.DatasetTimeout))
	contextService := contexts.NewService(contextRepo, assoc, datasetService)

	// Natural language queries stay disabled without an API key
	var generator engine.QueryGenerator
	if llmConfig.APIKey != "" {
		generator = llm.NewGenerator(llm.NewClient(llmConfig))
	} else {
		log.Println("No LLM API key configured, natural language queries disabled")
	}

	queryEngine := engine.New(contextService, datasetService, generator, recordRepo)

	handler := api.NewRouter(api.RouterConfig{
		Contexts:       contextService,
		Datasets:       datasetService,
		Engine:         queryEngine,
		History:        recordRepo,
		AllowedOrigins: serverConfig.AllowedOrigins,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         serverConfig.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", serverConfig.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
