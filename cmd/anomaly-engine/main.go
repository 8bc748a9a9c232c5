package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CIRISAI/CIRISBridge/api"
	"github.com/CIRISAI/CIRISBridge/api/handlers"
	"github.com/CIRISAI/CIRISBridge/internal/auth"
	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/orchestrator"
	"github.com/CIRISAI/CIRISBridge/pkg/config"
	"github.com/CIRISAI/CIRISBridge/pkg/database"
	"github.com/CIRISAI/CIRISBridge/pkg/database/queries"
	"github.com/CIRISAI/CIRISBridge/pkg/validation"
)

// @title Anomaly Engine API
// @version 1.0
// @description Log anomaly detection and alerting engine
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	createUser := flag.String("create-user", "", "create or update an operator and exit; the password is read from ANOMALY_ENGINE_USER_PASSWORD")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.SetAppName(cfg.App.Name)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	var db *database.DB
	if cfg.Storage.Driver == "postgres" {
		db, err = database.New(cfg.Database.ToDBConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		logger.Info("Database connection established")
	}

	if *migrate {
		return runMigrations(cfg, db)
	}
	if *createUser != "" {
		return runCreateUser(db, *createUser, os.Getenv("ANOMALY_ENGINE_USER_PASSWORD"))
	}

	engine, err := orchestrator.New(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	var users handlers.UserStore
	if db != nil {
		users = queries.NewUserRepository(db.DB)
	}
	server := api.NewServer(cfg, engine, users)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
		logger.WithError(serveErr).Error("API server failed")
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API shutdown error")
	}
	engine.Stop()

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	logger.Info("Engine stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, db *database.DB) error {
	if db == nil {
		return errors.New("migrations require storage.driver postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.MigrationTimeout)
	defer cancel()

	logger.Info("Running database migrations")
	if err := database.NewMigrator(db).Run(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Migrations completed successfully")
	return nil
}

func runCreateUser(db *database.DB, username, password string) error {
	if db == nil {
		return errors.New("operators require storage.driver postgres")
	}
	if err := validation.ValidateUsername(username); err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := queries.NewUserRepository(db.DB).Upsert(ctx, username, hash)
	if err != nil {
		return fmt.Errorf("save operator: %w", err)
	}
	logger.Infof("Operator %s saved with id %d", user.Username, user.ID)
	return nil
}
