package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"egireserve/internal/bidderauth"
	"egireserve/internal/events"
	"egireserve/internal/events/kafka"
	"egireserve/internal/events/redispub"
	httptransport "egireserve/internal/http"
	"egireserve/internal/platform/config"
	"egireserve/internal/platform/httpserver"
	"egireserve/internal/platform/logger"
	platformredis "egireserve/internal/platform/redis"
	"egireserve/internal/reservation/handler"
	"egireserve/internal/reservation/metrics"
	"egireserve/internal/reservation/ports"
	"egireserve/internal/reservation/service"
	"egireserve/internal/reservation/store"
	"egireserve/internal/sweeper"
	"egireserve/pkg/platform/middleware/auth"
)

// tokenValidator bridges the JWT service to the auth middleware.
type tokenValidator struct {
	jwt *bidderauth.JWTService
}

func (v tokenValidator) ValidateToken(tokenString string) (*auth.Claims, error) {
	claims, err := v.jwt.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{
		BidderID:     claims.BidderID,
		AuthStrength: claims.AuthStrength,
	}, nil
}

// main wires configuration, storage, the event pipeline and the HTTP surface,
// then supervises the long-running pieces until a shutdown signal.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	registry := prometheus.NewRegistry()
	m := metrics.NewWith(registry)

	// Storage: Postgres when a DSN is configured, in-memory otherwise.
	var (
		st  store.Store
		txr service.ItemTx
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		pgStore := store.NewPostgres(db)
		st = pgStore
		txr = service.NewPostgresItemTx(db, pgStore, cfg.ItemLockTimeout)
		log.Info("using postgres store")
	} else {
		memStore := store.NewInMemoryStore()
		st = memStore
		txr = service.NewShardedItemTx(memStore, cfg.ItemLockTimeout)
		log.Info("using in-memory store")
	}

	// Event sinks are optional; with none configured events are still consumed
	// and counted, just not delivered anywhere.
	var publishers []events.Publisher
	if cfg.RedisAddr != "" {
		redisClient, err := platformredis.NewClient(cfg.RedisAddr)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		publishers = append(publishers, redispub.New(redisClient, cfg.RedisChannel))
		log.Info("redis event publisher enabled", "channel", cfg.RedisChannel)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaPub.Close()
		publishers = append(publishers, kafkaPub)
		log.Info("kafka event publisher enabled", "topic", cfg.KafkaTopic)
	}

	dispatcher := events.NewDispatcher(1024, log, publishers,
		events.WithDropCounter(m.EventsDropped.Inc),
		events.WithPublishCounters(func(t events.Type) {
			m.EventsPublished.WithLabelValues(string(t)).Inc()
		}, m.EventPublishFailures.Inc),
	)

	svc, err := service.New(service.Config{
		Store:   st,
		Tx:      txr,
		Items:   ports.StaticReservability(true),
		Authz:   ports.OwnerAuthorization{},
		Mint:    ports.OpenMintWindow(true),
		Emitter: dispatcher,
		Metrics: m,
		Logger:  log,
		WeakTTL: cfg.WeakReservationTTL,
	})
	if err != nil {
		log.Error("build reservation service", "error", err)
		os.Exit(1)
	}

	jwtService := bidderauth.NewJWTService(cfg.JWTSigningKey, "egireserve", "egireserve")
	h := handler.New(svc, log)
	router := httptransport.NewRouter(h, tokenValidator{jwt: jwtService}, log, registry)
	srv := httpserver.New(cfg.Addr, router)

	sweep, err := sweeper.New(svc, cfg.SweepSchedule, log)
	if err != nil {
		log.Error("build expiry sweeper", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting egireserve", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := dispatcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweep.Start()
		<-gctx.Done()
		<-sweep.Stop().Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
