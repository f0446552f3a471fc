package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/mall-order/internal/adapter/event"
	"github.com/rl1809/mall-order/internal/adapter/handler"
	adapterqueue "github.com/rl1809/mall-order/internal/adapter/queue"
	"github.com/rl1809/mall-order/internal/adapter/storage"
	"github.com/rl1809/mall-order/internal/config"
	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/core/service"
	"github.com/rl1809/mall-order/internal/core/strategy"
	"github.com/rl1809/mall-order/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLogger := logger.New(cfg.Log)
	defer zapLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		zapLogger.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		zapLogger.Fatal("failed to ping mysql", zap.Error(err))
	}
	zapLogger.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("failed to connect redis", zap.Error(err))
	}
	zapLogger.Info("connected to redis")

	// Adapters
	stockStore := storage.NewRedisStockStore(rdb)
	pendingStore := storage.NewRedisPendingStore(rdb)
	orderStore := storage.NewMySQLOrderStore(db)
	catalogStore := storage.NewMySQLCatalogStore(db)
	addressStore := storage.NewMySQLAddressStore(db)
	couponStore := storage.NewMySQLCouponStore(db)
	promotionStore := storage.NewMySQLPromotionStore(db)
	matQueue := adapterqueue.NewRedisQueue(rdb, cfg.Worker.QueueName)

	// Requeue work left behind by a previous run.
	if recovered, err := matQueue.Recover(ctx); err != nil {
		zapLogger.Error("queue recovery failed", zap.Error(err))
	} else if recovered > 0 {
		zapLogger.Info("recovered unacked materialization requests", zap.Int("count", recovered))
	}

	// Seed the shared catalog pool from current sku stock. Activity pools are
	// seeded when their sessions are warmed up.
	stocks, err := catalogStore.ListSkuStocks(ctx)
	if err != nil {
		zapLogger.Fatal("failed to load sku stocks", zap.Error(err))
	}
	if err := stockStore.SeedPool(ctx, domain.CatalogPoolKey(), stocks, 0); err != nil {
		zapLogger.Fatal("failed to seed catalog pool", zap.Error(err))
	}
	zapLogger.Info("seeded catalog reservation pool", zap.Int("skus", len(stocks)))

	// Event bus with explicit subscribers.
	bus := event.NewBus(zapLogger)
	bus.Subscribe("order-created-log", func(ctx context.Context, e domain.OrderCreatedEvent) error {
		zapLogger.Info("order created",
			zap.String("order_id", e.OrderID),
			zap.String("trade_no", e.TradeNo),
			zap.String("member_id", e.MemberID),
			zap.String("pay_amount", e.PayAmount.String()))
		return nil
	})

	freightFee, err := decimal.NewFromString(cfg.Order.FreightFee)
	if err != nil {
		zapLogger.Fatal("invalid order.freightfee", zap.Error(err))
	}
	freightFreeOver, err := decimal.NewFromString(cfg.Order.FreightFreeOver)
	if err != nil {
		zapLogger.Fatal("invalid order.freightfreeover", zap.Error(err))
	}

	strategies := strategy.NewRegistry(
		strategy.NewNormalStrategy(catalogStore, couponStore, freightFee, freightFreeOver),
		strategy.NewSeckillStrategy(catalogStore, promotionStore),
		strategy.NewGroupBuyStrategy(catalogStore, promotionStore, freightFee),
	)

	submitService := service.NewSubmitService(
		strategies, stockStore, pendingStore, matQueue, addressStore,
		cfg.Order.PendingTTL, zapLogger,
	)

	worker := service.NewWorker(
		matQueue, orderStore, stockStore, pendingStore, strategies, bus,
		service.WorkerConfig{
			MaxAttempts:  cfg.Worker.MaxAttempts,
			RetryDelay:   cfg.Worker.RetryDelay,
			ExpiryWindow: cfg.Order.ExpiryWindow,
			RequeueDelay: cfg.Worker.RequeueDelay,
		},
		zapLogger,
	)

	// Worker pool
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker.Run(workerCtx, id)
		}(i)
	}
	zapLogger.Info("started workers", zap.Int("count", cfg.Worker.Count))

	// HTTP server
	orderHandler := handler.NewOrderHandler(submitService, zapLogger)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.NewRouter(orderHandler, zapLogger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		zapLogger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			zapLogger.Error("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	zapLogger.Info("http server stopped")

	stopWorkers()
	wg.Wait()
	zapLogger.Info("workers stopped")

	rdb.Close()
	db.Close()
	zapLogger.Info("connections closed")
}
