/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the contract lifecycle engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire the contract service with its collaborators
  4. Start workers, scheduler and HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: contracts.db)
              Use ":memory:" for in-memory database
  -workers    Background task workers (default: 4)
  -scenarios  Enable demo scenario endpoints (default: false)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and drain the task workers
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/contracts.db"

  # Run with in-memory database and demo scenarios
  ./server -db=":memory:" -scenarios

ENVIRONMENT:
  SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASSWORD, MAIL_FROM, MAIL_LANG
      Enable policy holder email notifications (off when SMTP_HOST unset).
  ERP_URL, ERP_TOKEN
      Enable accounting invoice pushes (off when ERP_URL unset).

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/contract-engine/api"
	"github.com/warp/contract-engine/calcrule"
	"github.com/warp/contract-engine/contract"
	"github.com/warp/contract-engine/erp"
	"github.com/warp/contract-engine/notify"
	"github.com/warp/contract-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "contracts.db", "SQLite database path")
	workers := flag.Int("workers", 4, "background task workers")
	scenarios := flag.Bool("scenarios", false, "enable demo scenario endpoints")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the contract service
	svc := contract.NewService(store, calcrule.DefaultRegistry(), log.Default())
	if mailer := notify.NewFromEnv(); mailer != nil {
		svc.Notifier = mailer
		log.Printf("[Mail] notifications enabled via %s", mailer.Host)
	}
	if client := erp.NewFromEnv(); client != nil {
		svc.ERP = client
		log.Printf("[ERP] invoice pushes enabled via %s", client.BaseURL)
	}

	// Background task runner for async/bulk operations
	tasks := api.NewTaskRunner(*workers)
	tasks.Start()
	defer tasks.Stop()

	// Initialize handler
	handler := api.NewHandler(svc, tasks)
	if *scenarios {
		handler.Seed = store
		log.Println("Demo scenario endpoints enabled")
	}

	// Expired-contract termination sweep
	scheduler := api.NewTerminationScheduler(svc)
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
