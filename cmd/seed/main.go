package main

import (
	"context"
	"database/sql"
	"flag"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ecomcore/inventory/internal/adapter/storage"
	"github.com/ecomcore/inventory/internal/config"
	"github.com/ecomcore/inventory/internal/core/domain"
	"github.com/ecomcore/inventory/internal/core/service"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) error { return nil }

// Seeds one ledger entry for local runs:
//
//	go run ./cmd/seed -product iphone-15 -stock 100 -threshold 10
func main() {
	productID := flag.String("product", "", "product id to seed")
	stock := flag.Int("stock", 100, "initial stock")
	threshold := flag.Int("threshold", 10, "low stock threshold")
	track := flag.Bool("track", true, "track inventory for this product")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if *productID == "" {
		logger.Fatal("-product is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}

	store := storage.NewMySQLRepository(db)
	engine := service.NewEngine(store, store, nopPublisher{}, nil, logger, service.EngineOptions{})

	entry, err := engine.CreateLedgerEntry(ctx, *productID, *stock, *threshold, *track)
	if err != nil {
		logger.Fatal("failed to seed ledger entry", zap.Error(err))
	}
	logger.Info("seeded",
		zap.String("product_id", entry.ProductID),
		zap.Int("stock", entry.CurrentStock),
		zap.Int("threshold", entry.LowStockThreshold))
}
