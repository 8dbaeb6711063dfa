package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sesmanagement/discussions/internal/auth"
	"github.com/sesmanagement/discussions/internal/config"
	"github.com/sesmanagement/discussions/internal/devserver"
	"github.com/sesmanagement/discussions/internal/logger"
)

var log = logger.New("main")

func main() {
	// Log to both console and devserver.log
	logFile, err := os.OpenFile("devserver.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger.SetOutput(io.MultiWriter(os.Stdout, logFile))

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	dbType := devserver.Memory
	if cfg.Server.DatabaseURL != "" {
		dbType = devserver.PostgreSQL
	}
	store, err := devserver.NewStore(dbType, cfg.Server.DatabaseURL)
	if err != nil {
		log.Error("Failed to open %s store: %v", dbType, err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("Using %s store", dbType)

	if err := devserver.Seed(store, devserver.SeedUsers); err != nil {
		log.Error("Failed to seed users: %v", err)
		os.Exit(1)
	}

	signer := auth.NewSigner([]byte(cfg.Server.JWTSecret), 0)
	if !cfg.IsProduction() {
		printDevTokens(store, signer)
	}

	hub := devserver.NewHub(store, cfg.Server.AllowedOrigins)
	router := devserver.NewRouter(store, hub, signer, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited properly")
}

// printDevTokens logs a ready-to-use AUTH_TOKEN for every user
func printDevTokens(store devserver.Store, signer *auth.Signer) {
	users, err := store.ListUsers()
	if err != nil {
		log.Warn("Could not list users: %v", err)
		return
	}
	for _, u := range users {
		token, expires, err := signer.GenerateToken(u.ID, u.FirstName)
		if err != nil {
			log.Warn("Could not mint token for %s: %v", u.ID, err)
			continue
		}
		log.Info("AUTH_TOKEN for %s %s (until %s): %s", u.FirstName, u.LastName, expires.Format(time.RFC3339), token)
	}
}
