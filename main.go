package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appInventory "orderflow/internal/application/inventory"
	appOrder "orderflow/internal/application/order"
	appPayment "orderflow/internal/application/payment"
	"orderflow/internal/config"
	dominv "orderflow/internal/domain/inventory"
	domorder "orderflow/internal/domain/order"
	"orderflow/internal/infrastructure/gormstore"
	"orderflow/internal/infrastructure/id"
	"orderflow/internal/infrastructure/memory"
	"orderflow/internal/infrastructure/observability/oteltrace"
	"orderflow/internal/infrastructure/observability/prometrics"
	"orderflow/internal/infrastructure/observability/telemetry"
	"orderflow/internal/infrastructure/observability/zaplogger"
	"orderflow/internal/infrastructure/paymentsim"
	"orderflow/internal/infrastructure/redisinv"
	"orderflow/internal/infrastructure/resilience"
	"orderflow/internal/observability"
	"orderflow/internal/pkg/logging"
	httppresentation "orderflow/internal/presentation/http"
	"orderflow/internal/tracing"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		panic(err)
	}

	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	log := zaplogger.Wrap(baseLogger)

	var tracer observability.Tracer = observability.NopTracer()
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracerProvider(cfg.ServiceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			log.Error("tracer_init_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
		tracer = oteltrace.New(cfg.ServiceName)
	}

	reg := prometrics.New("", "")
	tel := telemetry.New(tracer, log, registerCounters(reg), registerHistograms(reg))

	orderRepo, err := buildOrderRepository(cfg)
	if err != nil {
		log.Error("order_store_init_failed", observability.F("error", err.Error()))
		os.Exit(1)
	}
	inventoryStore, err := buildInventoryStore(cfg)
	if err != nil {
		log.Error("inventory_store_init_failed", observability.F("error", err.Error()))
		os.Exit(1)
	}
	gateway := paymentsim.NewGateway(cfg.Payment.SuccessRate, id.NewUUIDGenerator())

	invPolicy := resilience.DefaultPolicy("inventory")
	invPolicy.CallTimeout = cfg.CallTimeout
	payPolicy := resilience.DefaultPolicy("payment")
	payPolicy.CallTimeout = cfg.CallTimeout

	resilientInventory := resilience.WrapInventory(inventoryStore, invPolicy, tel)
	resilientPayments := resilience.WrapPayment(gateway, payPolicy, tel)

	orderService := appOrder.NewService(orderRepo, resilientInventory, resilientPayments, tel)
	inventoryService := appInventory.NewService(resilientInventory, tel)
	paymentService := appPayment.NewService(resilientPayments, gateway, tel)

	handler := httppresentation.NewHandler(orderService, inventoryService, paymentService, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	mux.Handle("/", httppresentation.Observability(tel)(handler.Routes()))

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("orders_backend", cfg.Orders.Backend),
			observability.F("inventory_backend", cfg.Inventory.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("http_server_error", observability.F("error", err.Error()))
		os.Exit(1)
	}
	log.Info("http_server_stopped")
}

func buildOrderRepository(cfg *config.Config) (domorder.Repository, error) {
	switch cfg.Orders.Backend {
	case config.BackendMySQL:
		db, err := gormstore.Open(cfg.Orders.MySQLDSN)
		if err != nil {
			return nil, err
		}
		return gormstore.NewOrderRepository(db), nil
	default:
		return memory.NewOrderRepository(), nil
	}
}

func buildInventoryStore(cfg *config.Config) (dominv.Store, error) {
	seed := make([]*dominv.Item, 0, len(cfg.Inventory.Seed))
	for _, s := range cfg.Inventory.Seed {
		item, err := dominv.NewItem(s.ProductID, s.Name, s.Stock, s.Price)
		if err != nil {
			return nil, err
		}
		seed = append(seed, item)
	}

	switch cfg.Inventory.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Inventory.RedisAddr})
		store := redisinv.New(client)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Seed(ctx, seed); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memory.NewInventoryStore(seed), nil
	}
}

func registerCounters(reg prometrics.Registry) map[observability.MetricKey]observability.Counter {
	return map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: reg.Counter(
			string(observability.MUsecaseRequests),
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: reg.Counter(
			string(observability.MHTTPRequests),
			"Total number of HTTP requests.",
			"method", "route", "status",
		),
		observability.MExternalRequests: reg.Counter(
			string(observability.MExternalRequests),
			"Total number of calls to external collaborators.",
			"target", "op", "outcome",
		),
		observability.MCompensations: reg.Counter(
			string(observability.MCompensations),
			"Total number of saga compensations executed.",
			"step",
		),
	}
}

func registerHistograms(reg prometrics.Registry) map[observability.MetricKey]observability.Histogram {
	return map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: reg.Histogram(
			string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.",
			prometheus.DefBuckets,
			"use_case",
		),
		observability.MHTTPRequestDuration: reg.Histogram(
			string(observability.MHTTPRequestDuration),
			"Duration of HTTP request handling in seconds.",
			prometheus.DefBuckets,
			"method", "route",
		),
		observability.MExternalRequestDuration: reg.Histogram(
			string(observability.MExternalRequestDuration),
			"Duration of external collaborator calls in seconds.",
			prometheus.DefBuckets,
			"target", "op",
		),
	}
}
