package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/config"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/services/metadata"
	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/services/monitor"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/logger"
	"github.com/LeonardoBeccarini/snowpeak_monitor/pkg/rabbitmq"
)

const serviceName = "snowpeak-monitor"

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Live monitor for ski-lift telemetry",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(v, file)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	root.Flags().StringP("config", "c", "", "YAML config file")
	root.Flags().String("mode", "public", "view mode: public or operator")
	root.Flags().String("operator-id", "", "operator whose lifts are shown in operator mode")
	root.Flags().String("log-level", "info", "debug, info, warn or error")
	_ = v.BindPFlag("mode", root.Flags().Lookup("mode"))
	_ = v.BindPFlag("operator_id", root.Flags().Lookup("operator-id"))
	_ = v.BindPFlag("logging.level", root.Flags().Lookup("log-level"))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, serviceName)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	mode, err := monitor.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	// === Metrics ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := monitor.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// === Broker ===
	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = serviceName + "-" + uuid.NewString()[:8]
	}
	transport, err := rabbitmq.Dial(ctx, &rabbitmq.RabbitMQConfig{
		URL:              cfg.Broker.URL,
		User:             cfg.Broker.User,
		Password:         cfg.Broker.Password,
		ClientID:         clientID,
		KeepAlive:        cfg.Broker.KeepAlive,
		ConnectTimeout:   cfg.Broker.ConnectTimeout,
		ReconnectDelay:   cfg.Broker.ReconnectDelay,
		ConnectRetries:   cfg.Broker.ConnectRetries,
		OnConnect:        metrics.Connected,
		OnConnectionLost: func(error) { metrics.ConnectionLost() },
	}, log, rabbitmq.WithBuffer(cfg.Broker.Buffer), rabbitmq.WithDropHook(metrics.DroppedFrame))
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer transport.Close()

	// === Metadata ===
	source := metadata.NewClient(metadata.Config{
		BaseURL:         cfg.Metadata.BaseURL,
		Token:           cfg.Metadata.Token,
		Timeout:         cfg.Metadata.Timeout,
		Retries:         cfg.Metadata.Retries,
		BreakerFailures: cfg.Metadata.BreakerFailures,
		BreakerOpen:     cfg.Metadata.BreakerOpen,
		BreakerInterval: cfg.Metadata.BreakerInterval,
	}, log)

	var cache metadata.Cache = metadata.NewMemoryCache()
	if cfg.Cache.RedisAddr != "" {
		rdb := metadata.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, lift cache stays in memory", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		} else {
			cache = metadata.NewRedisCache(rdb, "", cfg.Cache.TTL)
		}
	}

	// === View ===
	canvas := monitor.NewMemoryCanvas()
	view := monitor.NewView(monitor.ViewConfig{
		Mode:       mode,
		OperatorID: cfg.OperatorID,
		Transport:  transport,
		Source:     source,
		Cache:      cache,
		Canvas:     canvas,
		Identity:   monitor.StaticIdentity(cfg.User),
		Logger:     log,
		Metrics:    metrics,
	})
	feed := monitor.NewMapFeed(canvas, cfg.HTTP.MapPollInterval, log)

	viewErr := make(chan error, 1)
	go func() { viewErr <- view.Run(ctx) }()
	go feed.Run(ctx)

	// === HTTP ===
	mux := http.NewServeMux()
	mux.Handle("/api/", monitor.NewAPIHandler(view, log))
	mux.Handle("/ws/map", feed)
	mux.Handle("/healthz", monitor.NewHealthHandler(transport, view))
	mux.Handle("/readyz", monitor.NewReadyHandler(transport, view))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	hs := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
		}
	}()

	// === gRPC health ===
	var gs *grpc.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		gs = grpc.NewServer()
		hsrv := health.NewServer()
		healthpb.RegisterHealthServer(gs, hsrv)
		go monitor.WatchHealth(ctx, hsrv, serviceName, transport, 2*time.Second)
		go func() {
			log.Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
			if err := gs.Serve(lis); err != nil {
				log.Error("grpc server error", zap.Error(err))
			}
		}()
	}

	// === Wait ===
	select {
	case <-ctx.Done():
		err = nil
	case err = <-viewErr:
	}
	log.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	if gs != nil {
		gs.GracefulStop()
	}
	if err == nil {
		select {
		case err = <-viewErr:
		case <-shCtx.Done():
		}
	}
	return err
}
