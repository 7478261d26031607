package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"combolift/app"
	"combolift/internal"
	"combolift/internal/api"
	"combolift/internal/config"
	"combolift/internal/container"
	"combolift/internal/errors"
	"combolift/internal/migration"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase connects to PostgreSQL and brings the schema up to date
func initDatabase(ctx context.Context, appConfig *config.Config) (*sqlx.DB, error) {
	if err := appConfig.RequireDatabase(); err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	db.SetMaxOpenConns(appConfig.Database.MaxOpenConns)

	migrator := migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}

	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	internal.DefaultLogger = internal.NewLogger(internal.ParseLogLevel(appConfig.LogLevel))
	logger := internal.DefaultLogger.With("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, appConfig)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	if err := appContainer.InitWithDatabase(db); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	var scheduler *app.Scheduler
	if appConfig.Server.ScheduleInterval > 0 {
		scheduler = app.NewScheduler(appConfig.Server.ScheduleInterval, app.RunAllJob(appContainer.Search))
		if err := scheduler.Start(ctx); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	apiServer := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           api.NewServer(appContainer.Search, appContainer.Repository).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers := []*http.Server{apiServer}

	if appConfig.Server.OpsPort != "off" {
		servers = append(servers, &http.Server{
			Addr:              ":" + appConfig.Server.OpsPort,
			Handler:           api.NewOpsRouter(db, appConfig.Server.MetricsEnabled),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("server on %s failed: %v", srv.Addr, err)
				stop()
			}
		}(srv)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if scheduler != nil {
		scheduler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown of %s: %v", srv.Addr, err)
		}
	}
}
