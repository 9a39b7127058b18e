package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/api/handlers"
	"github.com/cloo-solutions/kbpipe/internal/jobs"
	"github.com/cloo-solutions/kbpipe/internal/server"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the kbpipe API server and the background reindex sweep",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides KBPIPE_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-sweep", false, "Do not run the background reindex sweep")
	cmd.Flags().String("migrations", defaultMigrationsDir, "Directory holding the SQL migrations")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if cfg.ServiceToken == "" {
		log.Println("WARNING: KBPIPE_SERVICE_TOKEN is empty, every authenticated route will answer 401")
	}

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		dir, _ := cmd.Flags().GetString("migrations")
		if err := migrateUp(cfg.DatabaseURL, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("connected to database")

	a, err := newApp(ctx, cfg, pool)
	if err != nil {
		return err
	}

	router := server.NewRouter(server.RouterConfig{
		ServiceToken:       cfg.ServiceToken,
		KnowledgeHandler:   handlers.NewKnowledgeHandler(a.knowledge),
		ImportHandler:      handlers.NewImportHandler(a.fileImport, a.urlImport, a.status),
		ProcessingHandler:  handlers.NewProcessingHandler(a.processing),
		EditRequestHandler: handlers.NewEditRequestHandler(a.broker, a.applier),
		WizardHandler:      handlers.NewWizardHandler(a.wizard, a.feedback),
	})

	var sweepWorker *jobs.Worker
	if noSweep, _ := cmd.Flags().GetBool("no-sweep"); !noSweep {
		sweeper := jobs.NewReindexSweeper(a.processing, a.editRequests, cfg.ReindexBatchSize, cfg.ProcessTimeout)
		sweepWorker = jobs.NewWorker("reindex", sweeper, cfg.ReindexInterval)
		go sweepWorker.Start(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	log.Println("shutting down...")

	if sweepWorker != nil {
		sweepWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
