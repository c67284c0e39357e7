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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"orderengine/internal/config"
	"orderengine/internal/database"
	"orderengine/internal/events"
	"orderengine/internal/handlers"
	"orderengine/internal/idempotency"
	"orderengine/internal/metrics"
	"orderengine/internal/middleware"
	"orderengine/internal/orders"
	"orderengine/internal/store/memstore"
	"orderengine/internal/store/mongostore"
	"orderengine/internal/store/pgstore"
	"orderengine/internal/telemetry"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal("config: ", err)
	}
	cfg := config.AppEnv

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(cfg.TracingStdout, nil)
	if err != nil {
		log.Fatal("tracing: ", err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)
	serverMetrics := metrics.NewServerMetrics(registry)

	opts := []orders.Option{
		orders.WithFeePolicy(orders.FeePolicy{ShippingFee: cfg.ShippingFee, TaxRate: cfg.TaxRate}),
		orders.WithDeliveryLeadTime(cfg.DeliveryLeadTime),
		orders.WithTimeout(cfg.CheckoutTimeout),
		orders.WithNumberAttempts(cfg.OrderNumberAttempts),
		orders.WithObserver(checkoutMetrics),
	}

	var publisher *events.Publisher
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		opts = append(opts, orders.WithEventPublisher(publisher))
		log.Printf("[EVENTS] [INFO] publishing order events to topic=%s", cfg.KafkaTopic)
	}

	var idem handlers.IdempotencyStore
	if cfg.RedisURL != "" {
		client, err := idempotency.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()
		idem = idempotency.NewStore(client, cfg.IdempotencyTTL)
		log.Println("[IDEMPOTENCY] [INFO] redis idempotency store enabled")
	}

	assembler := orders.NewAssembler(store, opts...)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.RequestID(), serverMetrics.Middleware())

	r.GET("/health", handlers.Health(store))
	r.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	user := r.Group("/orders")
	user.Use(middleware.UserAuth(cfg.JWTSecret))
	{
		user.POST("", handlers.CreateOrder(assembler, idem))
		user.GET("", handlers.GetMyOrders(assembler))
		user.GET("/:orderNumber", handlers.GetOrder(assembler))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(cfg.JWTSecret))
	{
		admin.GET("/orders/:orderNumber", handlers.AdminGetOrder(assembler))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[HTTP] [INFO] listening on %s (store=%s)", srv.Addr, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[HTTP] [INFO] shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		assembler.Wait()
		if publisher != nil {
			if cerr := publisher.Close(); cerr != nil {
				log.Println("[EVENTS] [ERROR] close publisher:", cerr)
			}
		}
		closeStore(shutdownCtx)
		if terr := shutdownTracing(shutdownCtx); terr != nil {
			log.Println("[TRACE] [ERROR] shutdown:", terr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

type storeCloser func(ctx context.Context)

func openStore(ctx context.Context, cfg config.Config) (orders.Store, storeCloser, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.EnsurePostgresSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Println("PostgreSQL connected")
		return pgstore.New(pool), func(context.Context) { pool.Close() }, nil

	case config.DriverMemory:
		store := memstore.New()
		if cfg.MemorySeed != "" {
			f, err := os.Open(cfg.MemorySeed)
			if err != nil {
				return nil, nil, err
			}
			n, err := store.LoadProducts(f)
			f.Close()
			if err != nil {
				return nil, nil, err
			}
			log.Printf("memory store seeded with %d products", n)
		}
		return store, func(context.Context) {}, nil

	default:
		client, err := database.Connect(cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		db := client.Database(cfg.DBName)
		log.Println("MongoDB connected to:", db.Name())

		if err := database.EnsureIndexes(db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return mongostore.New(db), func(ctx context.Context) { _ = client.Disconnect(ctx) }, nil
	}
}
