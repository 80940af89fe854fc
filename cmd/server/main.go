// Command visitguard starts the visitguard gRPC server.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/visitguard/internal/audit"
	"github.com/and161185/visitguard/internal/config"
	"github.com/and161185/visitguard/internal/crypto"
	"github.com/and161185/visitguard/internal/kms"
	"github.com/and161185/visitguard/internal/limiter"
	"github.com/and161185/visitguard/internal/logging"
	"github.com/and161185/visitguard/internal/migrate"
	"github.com/and161185/visitguard/internal/notify"
	"github.com/and161185/visitguard/internal/repository/postgres"
	grpcserver "github.com/and161185/visitguard/internal/server/grpc"
	"github.com/and161185/visitguard/internal/template"
	"github.com/and161185/visitguard/internal/webhook"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, wires the stores and starts the gRPC and metrics servers.
func main() {
	cfgPath := flag.String("config", "", "config file (YAML); env VISITGUARD_* overrides")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "visitguard")
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Key material
	master, _ := cfg.KMS.Master()
	local, err := kms.NewLocal(master)
	crypto.ZeroBytes(master)
	if err != nil {
		return err
	}
	enc := crypto.NewEncryptor(local, cfg.KMS.KeyID, cfg.KMS.Timeout)
	if salt, _ := cfg.KMS.Salt(); salt != nil {
		enc = enc.WithIndexSalt(salt)
	}

	// Stores
	var (
		lim  limiter.Limiter
		opts = webhook.Options{
			Timeout:       cfg.Webhook.Timeout,
			UserAgent:     cfg.Webhook.UserAgent,
			FanOut:        cfg.Webhook.FanOut,
			PerWebhookRPS: cfg.Webhook.PerWebhookRPS,
		}
	)
	if cfg.Database.DSN != "" {
		if cfg.Database.Migrate {
			v, err := migrate.Up(ctx, logger, cfg.Database.DSN)
			if err != nil {
				return err
			}
			logger.Info("schema ready", zap.Int64("version", v))
		}
		db, err := postgres.New(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		pg, err := limiter.NewPG(db.Pool, cfg.Limits)
		if err != nil {
			return err
		}
		lim = pg
		deliveries := postgres.NewDeliveryRepo(db)
		opts.Webhooks = postgres.NewWebhookRepo(db, enc)
		opts.Deliveries = deliveries

		go janitor(ctx, cfg.Webhook.JanitorInterval, func(ctx context.Context) {
			if n, err := pg.PruneVisits(ctx, limiter.DefaultVisitTTL); err != nil {
				logger.Warn("prune visit counters", zap.Error(err))
			} else if n > 0 {
				logger.Debug("pruned visit counters", zap.Int64("n", n))
			}
			cutoff := time.Now().Add(-cfg.Webhook.DeliveryRetention)
			if n, err := deliveries.PurgeDeliveries(ctx, cutoff); err != nil {
				logger.Warn("purge deliveries", zap.Error(err))
			} else if n > 0 {
				logger.Debug("purged deliveries", zap.Int64("n", n))
			}
		})
	} else {
		mem, err := limiter.NewMemory(cfg.Limits)
		if err != nil {
			return err
		}
		lim = mem
		go mem.Run(ctx, cfg.Webhook.JanitorInterval)
		logger.Warn("no database configured; limits and webhooks are in memory")
	}

	var nonces webhook.NonceStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		nonces = webhook.NewRedisNonceStore(rdb, cfg.Redis.NoncePrefix, cfg.Webhook.NonceTTL)
	} else {
		mem := webhook.NewMemoryNonceStore(cfg.Webhook.NonceTTL)
		go mem.Run(ctx, cfg.Webhook.JanitorInterval)
		nonces = mem
	}

	// Services
	dispatcher := webhook.New(logger, nonces, opts)
	if n, err := dispatcher.LoadWebhooks(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Info("webhooks loaded", zap.Int("n", n))
	}
	templates := template.NewRegistry()
	pipeline := notify.New(logger, lim, templates, dispatcher)

	// gRPC server with interceptors
	sopts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.ErrorsUnary(logger),
			grpcserver.AuthorizeUnary([]byte(cfg.Server.JWTKey), grpcserver.DefaultPolicy,
				"/grpc.health.v1.Health/", "/grpc.reflection."),
		),
	}
	if cfg.Server.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return err
		}
		sopts = append(sopts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled; set server.tls_cert and server.tls_key")
	}
	s := grpc.NewServer(sopts...)

	grpcserver.Register(s, grpcserver.New(logger, grpcserver.Deps{
		Notifier:  pipeline,
		Webhooks:  dispatcher,
		Templates: templates,
		Limiter:   lim,
		Records:   enc,
		Audit:     audit.NewZapSink(logger),
	}))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Server.Reflection {
		reflection.Register(s)
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- s.Serve(lis)
	}()

	var metrics *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metrics = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.Server.MetricsAddr))
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		if metrics != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metrics.Shutdown(sctx)
			cancel()
		}
		// graceful shutdown
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.Stop()
		}
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// janitor runs fn every interval until ctx is done.
func janitor(ctx context.Context, every time.Duration, fn func(context.Context)) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}
