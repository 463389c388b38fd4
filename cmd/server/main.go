// Package main initializes and starts the resume backend server, setting up
// configuration, logging, the database connection, repositories, services,
// and handlers.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atroshin/resumesync/internal/config"
	"github.com/atroshin/resumesync/internal/db"
	"github.com/atroshin/resumesync/internal/logger"
	"github.com/atroshin/resumesync/internal/repository"
	"github.com/atroshin/resumesync/internal/server/handler/http"
	"github.com/atroshin/resumesync/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Load layered configuration.
	options, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log, err := logger.New(options.Logging.Level, options.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if options.Server.JWTSecret == "" {
		log.Fatal("server.jwt_secret must be configured")
	}

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.Server.DatabaseDSN)
	if err != nil {
		log.Fatal("cannot init database", zap.Error(err))
	}

	// Purge old section tombstones in the background.
	db.StartTombstonePurger(context.Background(), postgresDB,
		options.Server.CleanInterval,
		options.Server.TombstoneRetention,
		log,
	)

	// Initialize repositories.
	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	profileRepo := repository.NewPostgresProfileRepository(postgresDB)
	sectionRepo := repository.NewPostgresSectionRepository(postgresDB)

	// Initialize business-logic services; section writes feed the change hub.
	changeHub := http.NewChangeHub(log)
	authService := service.NewAuthService(authRepo)
	profileService := service.NewProfileService(profileRepo)
	sectionService := service.NewSectionService(sectionRepo, changeHub)

	// Create HTTP handlers.
	authHandler := &http.AuthHandler{
		AuthService: authService,
		JWTSecret:   options.Server.JWTSecret,
		TokenTTL:    options.Server.TokenTTL,
	}
	profileHandler := &http.ProfileHandler{ProfileService: profileService}
	sectionHandler := &http.SectionHandler{SectionService: sectionService}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, profileHandler, sectionHandler,
		changeHub, options.Server.JWTSecret, log)

	server := &nethttp.Server{
		Addr:    options.Server.Addr,
		Handler: router,
	}

	log.Info("starting HTTP server", zap.String("addr", options.Server.Addr))
	if err := server.ListenAndServe(); err != nil {
		log.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
