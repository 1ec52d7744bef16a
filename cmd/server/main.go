package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/inventory"
	"storefront/internal/notify"
	"storefront/internal/observability"
	"storefront/internal/order"
	"storefront/internal/payment"
	"storefront/internal/queue"
	"storefront/internal/router"
	"storefront/internal/storage"
	"storefront/internal/store"
	"storefront/internal/support"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxUploadSize = 5 << 20

func main() {
	// .env 不存在时直接用进程环境变量
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	logger := observability.NewLogger(level)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:   cfg.OtelEndpoint,
		AuthHeader: cfg.OtelAuthHeader,
	})
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	// 1. SQLite，自动建表
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}

	// 2. Redis：限流、重置令牌、事件流、通知去重
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	// 3. 事件链路：Redis Stream -> Relay -> Kafka -> Consumer -> 通知
	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	relay := queue.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer, logger)
	notifier := notify.NewNotifier(notify.NewSMTPSender(notify.SMTPConfig{
		Host: cfg.MailHost,
		Port: cfg.MailPort,
		User: cfg.MailUser,
		Pass: cfg.MailPass,
		From: cfg.MailFrom,
	}), cfg.ResetTokenTTL)
	dispatcher := notify.NewDispatcher(db, rdb, notifier, logger)
	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, dispatcher, logger)

	// 4. 业务服务
	tx := store.NewTxRunner(db, cfg.TxTimeout)
	ledger := inventory.NewLedger()
	orders := order.NewService(order.Deps{
		Tx:        tx,
		Inventory: ledger,
		Gateway:   payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret),
		Signer:    payment.NewSigner(cfg.RazorpayKeySecret),
		Events:    queue.NewStreamPublisher(rdb, cfg.OrderEventStream),
		Log:       logger,
		Currency:  cfg.PaymentCurrency,
	})
	authSvc := auth.NewService(auth.Deps{
		DB:          db,
		Redis:       rdb,
		Issuer:      auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Mailer:      notifier,
		Log:         logger,
		ResetTTL:    cfg.ResetTokenTTL,
		FrontendURL: cfg.FrontendURL,
	})
	if cfg.AdminEmail != "" {
		if _, err := authSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Fatal("seed admin", zap.Error(err))
		}
	}
	uploads, err := storage.NewLocalStore(cfg.UploadDir, maxUploadSize)
	if err != nil {
		logger.Fatal("upload dir", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = 8 << 20
	router.Setup(r, router.Deps{
		Auth:               authSvc,
		Catalog:            catalog.NewService(tx, ledger, logger),
		Orders:             orders,
		Support:            support.NewService(db, logger),
		Uploads:            uploads,
		Redis:              rdb,
		Log:                logger,
		CheckoutRateLimit:  cfg.CreateOrderRateLimit,
		CheckoutRateWindow: cfg.CreateOrderRateWindow,
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	if err := consumer.Close(); err != nil {
		logger.Warn("kafka consumer close", zap.Error(err))
	}
	if err := producer.Close(); err != nil {
		logger.Warn("kafka producer close", zap.Error(err))
	}
	_ = rdb.Close()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
