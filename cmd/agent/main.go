package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/clock"
	"github.com/hamed0406/safezone/internal/config"
	"github.com/hamed0406/safezone/internal/connectivity"
	"github.com/hamed0406/safezone/internal/geofence"
	"github.com/hamed0406/safezone/internal/httpapi"
	apimw "github.com/hamed0406/safezone/internal/httpapi/middleware"
	"github.com/hamed0406/safezone/internal/location"
	"github.com/hamed0406/safezone/internal/logging"
	"github.com/hamed0406/safezone/internal/metrics"
	"github.com/hamed0406/safezone/internal/notify"
	"github.com/hamed0406/safezone/internal/probe"
	"github.com/hamed0406/safezone/internal/repo"
	badgerstore "github.com/hamed0406/safezone/internal/repo/badger"
	"github.com/hamed0406/safezone/internal/repo/memory"
	pgstore "github.com/hamed0406/safezone/internal/repo/postgres"
	redisstore "github.com/hamed0406/safezone/internal/repo/redis"
	"github.com/hamed0406/safezone/internal/safety"
	"github.com/hamed0406/safezone/internal/transport"
)

type closer func() error

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, logging.WithLevel(cfg.LogLevel), logging.WithConsole())
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("agent_exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	kv, closeKV, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeKV)

	m := metrics.New()
	clk := clock.System{}

	senders := notify.Multi{notify.LogSender{Log: logger}}
	if wh := notify.NewWebhook(cfg.PushWebhook); wh != nil {
		senders = append(senders, wh)
	}

	var loc geofence.LocationProvider
	if cfg.MQTTBroker != "" {
		p, err := location.NewMQTT(location.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTLocationTopic,
			MaxAge:   cfg.LocationMaxAge,
		}, clk, logger)
		if err != nil {
			return fmt.Errorf("location feed: %w", err)
		}
		closers = append(closers, func() error { p.Close(); return nil })
		loc = p
	} else {
		logger.Warn("location_feed_static", zap.String("reason", "MQTT_BROKER not set"))
		loc = location.NewStatic(clk)
	}

	deps := safety.Deps{
		KV:       kv,
		Location: loc,
		Sender:   senders,
		Haptics:  notify.NopHaptics{},
		Token:    safety.StaticToken(cfg.SOSAPIToken),
		Clock:    clk,
		Log:      logger,
		Metrics:  m,
	}
	if cfg.SOSAPIBase != "" {
		deps.SOS = transport.NewSOSClient(cfg.SOSAPIBase, cfg.HTTPTimeout, logger)
	}
	if cfg.SMSGatewayURL != "" {
		deps.SMS = transport.NewSMSGateway(cfg.SMSGatewayURL, cfg.HTTPTimeout, logger)
	}
	if cfg.SOSAPIToken == "" {
		deps.Token = nil
	}

	svc := safety.New(deps, safety.Options{
		LocationInterval:   cfg.LocationInterval,
		EscalationInterval: cfg.EscalationInterval,
		QueueMaxLength:     cfg.QueueMaxLength,
		QueueMaxAttempts:   cfg.QueueMaxAttempts,
		ZoneFile:           cfg.GeofenceFile,
	})

	obs := connectivity.NewProbeObserver(cfg.ConnectivityProbeURL,
		&probe.RetryChecker{Inner: probe.NewHTTPChecker(cfg.HTTPTimeout), Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff},
		probe.NewDNSChecker(), logger)
	if err := svc.Run(ctx, obs); err != nil {
		return err
	}
	closers = append(closers, func() error { svc.Shutdown(); return nil })
	if cfg.ConnectivityProbeURL != "" {
		obs.Start(ctx, cfg.ConnectivityProbeInterval)
		closers = append(closers, func() error { obs.Stop(); return nil })
	}

	api := httpapi.NewServer(logger, svc)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, m.Handler(), cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("agent_shutdown")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.KV, closer, error) {
	nop := func() error { return nil }
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("store_memory", zap.String("reason", "queued alerts are lost on restart"))
		return memory.New(), nop, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("STORE_DRIVER=postgres requires DATABASE_URL")
		}
		s, err := pgstore.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	case "redis":
		s := redisstore.New(cfg.RedisAddr, "", cfg.RedisDB)
		if err := s.Ping(ctx); err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("redis ping: %w", err), s.Close())
		}
		return s, s.Close, nil
	case "badger":
		s, err := badgerstore.Open(badgerstore.DefaultConfig(cfg.BadgerPath), logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
