// eventbusd is a standalone process that wires an eventbus onto a
// shared Redis instance, exposes Prometheus metrics over HTTP, and
// serves a minimal debug gRPC endpoint for introspecting the
// underlying connection.
//
// Usage:
//
//	go run ./cmd/eventbusd                       # Defaults: localhost:6379, :9090, :50061
//	go run ./cmd/eventbusd -redis redis:6379     # Point at a different Redis
//	go build -o eventbusd ./cmd/eventbusd && ./eventbusd
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/jeeves-cluster-organization/eventbus"
	"github.com/jeeves-cluster-organization/eventbus/bus"
	"github.com/jeeves-cluster-organization/eventbus/config"
	"github.com/jeeves-cluster-organization/eventbus/middleware"
	"github.com/jeeves-cluster-organization/eventbus/observability"
	"github.com/jeeves-cluster-organization/eventbus/transport/hub"
)

// stdLogger implements bus.Logger using the standard library log
// package.
type stdLogger struct{}

func (l *stdLogger) Debug(msg string, kv ...any) { log.Printf("[DEBUG] %s %v", msg, kv) }
func (l *stdLogger) Info(msg string, kv ...any)  { log.Printf("[INFO] %s %v", msg, kv) }
func (l *stdLogger) Warn(msg string, kv ...any)  { log.Printf("[WARN] %s %v", msg, kv) }
func (l *stdLogger) Error(msg string, kv ...any) { log.Printf("[ERROR] %s %v", msg, kv) }

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for the hub transport")
	namespace := flag.String("namespace", "global", "hub channel namespace")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	grpcAddr := flag.String("grpc-addr", ":50061", "debug gRPC listen address")
	workers := flag.Int("workers", 4, "dispatcher worker pool size")
	otlpEndpoint := flag.String("otlp-endpoint", "localhost:4317", "OTLP gRPC collector endpoint")
	flag.Parse()

	logger := &stdLogger{}
	logger.Info("eventbusd_starting", "redis", *redisAddr, "namespace", *namespace)

	shutdownTracer, err := observability.InitTracer("eventbusd", *otlpEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("tracer_shutdown_failed", "error", err.Error())
		}
	}()

	client := redis.NewClient(&redis.Options{Addr: *redisAddr})

	cfg := config.DefaultConfig()
	cfg.Namespace = *namespace
	cfg.DispatchWorkers = *workers

	metrics := observability.NewPrometheusMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = eventbus.Init(ctx, func() (bus.Adapter, error) {
		adapter := hub.New(client,
			hub.WithNamespace(cfg.Namespace),
			hub.WithRPCExpire(cfg.RPCReplyTTL()),
			hub.WithLogger(logger),
		)
		logging := middleware.NewLoggingMiddleware(logger)
		breaker := middleware.NewCircuitBreakerMiddleware(5, 30*time.Second)
		return middleware.Wrap(adapter, logging, breaker), nil
	}, eventbus.WithWorkers(cfg.DispatchWorkers), eventbus.WithLogger(logger), eventbus.WithMetrics(metrics))
	if err != nil {
		log.Fatalf("failed to start eventbus: %v", err)
	}
	logger.Info("eventbus_started")

	httpServer := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics_server_failed", "error", err.Error())
		}
	}()
	logger.Info("metrics_server_listening", "address", *metricsAddr)

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	grpcServer.RegisterService(&statsServiceDesc, &statsServer{client: client, namespace: cfg.Namespace})

	lis, err := net.Listen("tcp", *grpcAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *grpcAddr, err)
	}
	go func() {
		logger.Info("debug_grpc_listening", "address", *grpcAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("debug_grpc_failed", "error", err.Error())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown_signal_received", "signal", sig.String())

	grpcServer.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if err := eventbus.Shutdown(shutdownCtx); err != nil {
		logger.Error("eventbus_shutdown_failed", "error", err.Error())
	}
	logger.Info("eventbusd_stopped")
}
