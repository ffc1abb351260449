package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/fintrack/backend/docs"
	"github.com/fintrack/backend/internal/config"
	"github.com/fintrack/backend/internal/database"
	mW "github.com/fintrack/backend/internal/middleware"
	"github.com/fintrack/backend/internal/services"
	"github.com/fintrack/backend/internal/token"
)

// @title Personal Finance Tracker API
// @version 1.0.0
// @description Personal Finance Tracker API - Track income and expenses
// @host localhost:8080
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg := config.Load()

	if cfg.JWT.SecretKey == "" {
		log.Fatal("JWT_SECRET_KEY must be set")
	}

	db := database.InitDatabase(cfg)
	defer db.Close()

	redisClient := database.InitRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	tokenService := token.NewService(cfg.JWT)
	authService := services.NewAuthService(db, redisClient, tokenService)
	transactionService := services.NewTransactionService(db)
	authGuard := mW.NewAuthGuard(db, redisClient, tokenService)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"name":    cfg.AppName,
			"version": "1.0.0",
			"status":  "running",
			"docs":    "/swagger/index.html",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/register", authService.Register)
		r.Post("/token", authService.Token)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(authGuard.Middleware)

			r.Get("/users/me", authService.Me)
			r.Post("/logout", authService.Logout)

			r.Post("/transactions", transactionService.CreateTransaction)
			r.Get("/transactions", transactionService.ListTransactions)
			r.Get("/transactions/stats/summary", transactionService.GetStats)
			r.Get("/transactions/{id}", transactionService.GetTransaction)
			r.Put("/transactions/{id}", transactionService.UpdateTransaction)
			r.Patch("/transactions/{id}/archive", transactionService.ArchiveTransaction)
			r.Delete("/transactions/{id}", transactionService.DeleteTransaction)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
