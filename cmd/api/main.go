package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foodshare/backend/internal/api/handler"
	"foodshare/backend/internal/auth"
	"foodshare/backend/internal/config"
	"foodshare/backend/internal/data"
	"foodshare/backend/internal/db"
	"foodshare/backend/internal/middleware"
	"foodshare/backend/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Read configuration from environment (plus optional .env)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	dbClient, err := db.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		_ = dbClient.Close(ctx)
	}()

	// Ensure indexes exist (2dsphere on dons, unique pair key on
	// conversations, unique email on users)
	if err := dbClient.CreateIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	// Connect to the pub/sub broker used for best-effort chat broadcasts
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Create stores and the notification relay. Everything is constructed
	// here and injected — no package-level client state anywhere.
	usersStore := data.NewUsersStore(dbClient.UsersCollection())
	donsStore := data.NewDonsStore(dbClient.DonsCollection())
	chatStore := data.NewChatStore(dbClient.ConversationsCollection(), dbClient.MessagesCollection())
	notifier := relay.New(rdb)

	// Auth manager for the chat endpoints
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	// Rate limiter for the credential endpoints (small burst allows a
	// couple of quick retries)
	limiterStore := middleware.NewLimiterStore(cfg.RateLimitRPM, cfg.RateLimitBurst, 1*time.Minute)
	defer limiterStore.Stop()

	// Assemble the router
	router := gin.Default()
	h := handler.New(donsStore, usersStore, chatStore, notifier, jwtMgr)
	h.Routes(router, middleware.RateLimit(limiterStore))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Serve in the background; main blocks on the shutdown signal
	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM: stop accepting requests and
	// give in-flight ones ten seconds to finish
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}
