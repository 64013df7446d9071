package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/guildlytics/guildlytics-backend/api/handlers"
	"github.com/guildlytics/guildlytics-backend/api/routes"
	"github.com/guildlytics/guildlytics-backend/internal/buffer"
	"github.com/guildlytics/guildlytics-backend/internal/events"
	"github.com/guildlytics/guildlytics-backend/internal/ingress"
	"github.com/guildlytics/guildlytics-backend/internal/scheduler"
	"github.com/guildlytics/guildlytics-backend/internal/sink"
	"github.com/guildlytics/guildlytics-backend/pkg/bigquery"
	"github.com/guildlytics/guildlytics-backend/pkg/config"
	"github.com/guildlytics/guildlytics-backend/pkg/idempotency"
	"github.com/guildlytics/guildlytics-backend/pkg/logger"
	"github.com/guildlytics/guildlytics-backend/pkg/metrics"
	"github.com/guildlytics/guildlytics-backend/pkg/pubsub"
	"github.com/guildlytics/guildlytics-backend/pkg/redis"
)

const serviceName = "collector"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.EventsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "events subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	registry := prometheus.NewRegistry()
	flushMetrics := metrics.NewFlushMetrics(registry)
	ingressMetrics := metrics.NewIngressMetrics(registry)

	warehouseSink, err := sink.New(bqClient, sink.Config{TablePrefix: cfg.BigQuery.TablePrefix}, logg)
	requireResource(ctx, logg, "warehouse sink", err)

	eventBuffer := buffer.New()

	flushScheduler, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:        logg,
		Queue:         eventBuffer,
		Sink:          warehouseSink,
		Metrics:       flushMetrics,
		ShutdownGrace: cfg.Flush.ShutdownGrace,
	})
	requireResource(ctx, logg, "flush scheduler", err)
	requireResource(ctx, logg, "flush schedule", registerCadences(flushScheduler, cfg.Flush))

	ingressHandlers, err := ingress.NewHandlers(eventBuffer, logg)
	requireResource(ctx, logg, "ingress handlers", err)

	worker, err := ingress.NewWorker(ingress.WorkerParams{
		Subscription: subscription,
		Router:       ingress.NewRouter(ingressHandlers),
		Idempotency:  manager,
		Logger:       logg,
		Metrics:      ingressMetrics,
		GuildID:      cfg.Gateway.GuildID,
	})
	requireResource(ctx, logg, "ingress worker", err)

	httpServer := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewRouter(cfg, logg, handlers.Dependencies{
			Redis:    redisClient,
			PubSub:   pubsubClient,
			BigQuery: bqClient,
		}, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"guild_id":    cfg.Gateway.GuildID,
	})
	logg.Info(runCtx, "collector ready")

	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ingress worker: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		// blocks until groupCtx cancels, then runs the shutdown flush
		if err := flushScheduler.Run(groupCtx); err != nil {
			return fmt.Errorf("flush scheduler: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "collector failed", err)
		os.Exit(1)
	}
}

func registerCadences(svc *scheduler.Service, flush config.FlushConfig) error {
	cadences := []struct {
		category events.Category
		interval time.Duration
	}{
		{events.CategoryMember, flush.MemberInterval},
		{events.CategoryMessageCount, flush.MessageInterval},
		{events.CategoryMessageDetail, flush.MessageInterval},
		{events.CategoryVoiceSession, flush.VoiceInterval},
		{events.CategoryThread, flush.ThreadInterval},
		{events.CategoryPresenceLog, flush.PresenceInterval},
	}
	for _, c := range cadences {
		if err := svc.Register(c.category, c.interval); err != nil {
			return err
		}
	}
	return nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
