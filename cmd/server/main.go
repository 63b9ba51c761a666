package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ecomcore/inventory/internal/adapter/messaging"
	"github.com/ecomcore/inventory/internal/adapter/storage"
	"github.com/ecomcore/inventory/internal/config"
	"github.com/ecomcore/inventory/internal/core/service"
	"github.com/ecomcore/inventory/internal/port"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Wiring: mysql store, cache front, kafka sink, engine, sweeper.
	store := storage.NewMySQLRepository(db)
	front := storage.NewCacheFront(store, storage.NewRedisCache(rdb), logger, storage.CacheTTLs{
		Entry:       cfg.EntryCacheTTL,
		List:        cfg.ListCacheTTL,
		Reservation: cfg.ReservationCacheTTL,
	})
	publisher := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)

	clock := port.SystemClock{}
	engine := service.NewEngine(front, store, publisher, clock, logger, service.EngineOptions{
		HoldDuration: cfg.HoldDuration,
		MaxRetries:   cfg.MaxRetries,
	})

	sweeper := service.NewSweeper(engine, store, clock, logger, cfg.SweepInterval)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	// Health endpoint plus dashboard reads off the cache front.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/stock/low", func(w http.ResponseWriter, r *http.Request) {
		entries, err := engine.GetLowStock(r.Context())
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	})
	mux.HandleFunc("/api/stock/out", func(w http.ResponseWriter, r *http.Request) {
		entries, err := engine.GetOutOfStock(r.Context())
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")

	cancel()
	wg.Wait()
	logger.Info("sweeper stopped")

	if err := publisher.Close(); err != nil {
		logger.Warn("failed to close kafka writer", zap.Error(err))
	}
	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
