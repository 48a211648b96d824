package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"posadmin/backend/internal/cache"
	"posadmin/backend/internal/config"
	"posadmin/backend/internal/domain"
	"posadmin/backend/internal/httpapi"
	"posadmin/backend/internal/identity"
	"posadmin/backend/internal/service"
	"posadmin/backend/internal/session"
	"posadmin/backend/internal/stats"
	"posadmin/backend/internal/store"
	"posadmin/backend/internal/store/memory"
	pgstore "posadmin/backend/internal/store/postgres"
	"posadmin/backend/internal/stream"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	startupCtx, startupCancel := context.WithTimeout(appCtx, 10*time.Second)
	defer startupCancel()

	var repo store.Repository
	closers := make([]func() error, 0, 4)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startupCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	// Transport selection: Redis pub/sub fans change signals and identity
	// events out to every instance; without Redis a single-process broker
	// carries them in memory.
	var (
		identitySource    identity.Source
		identityPublisher identity.Publisher
		signals           stream.Signals
		statsCache        cache.StatsCache = cache.NoopStatsCache{}
	)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(startupCtx).Err(); err != nil {
			log.Fatalf("redis unavailable (%v) and REDIS_ADDR is set; refusing to start with in-process transport", err)
		}
		closers = append(closers, client.Close)

		redisEvents := identity.NewRedisEvents(client, cfg.ChannelPrefix+":identity")
		identitySource = redisEvents
		identityPublisher = redisEvents
		signals = stream.NewRedisSignals(client, cfg.ChannelPrefix)
		statsCache = cache.NewRedisStatsCache(client)
		log.Println("transport: redis")
	} else {
		identityBroker := identity.NewBroker()
		identitySource = identityBroker
		identityPublisher = identityBroker
		signals = stream.NewBroker()
		log.Println("transport: in-process")
	}

	sessions := session.NewStore()
	reconciler := session.NewReconciler(sessions, repo, nil)
	unsubEvents, err := reconciler.Run(appCtx, identitySource)
	if err != nil {
		log.Fatalf("identity subscription failed: %v", err)
	}
	defer unsubEvents()

	engine := stats.NewEngine()
	source := stream.NewSource(repo, signals, func(collection string, err error) {
		log.Printf("[main] WARN: %s snapshot reload failed, serving last known good: %v", collection, err)
		switch collection {
		case stream.CollectionProducts:
			engine.MarkCatalogStale()
		case stream.CollectionSales:
			engine.MarkLedgerStale()
		}
	})

	unsubCatalog, err := source.SubscribeCatalog(appCtx, engine.OnCatalogSnapshot)
	if err != nil {
		log.Fatalf("catalog subscription failed: %v", err)
	}
	defer unsubCatalog()

	unsubLedger, err := source.SubscribeLedger(appCtx, engine.OnLedgerSnapshot)
	if err != nil {
		log.Fatalf("ledger subscription failed: %v", err)
	}
	defer unsubLedger()

	statsTTL := time.Duration(cfg.StatsCacheTTLSeconds) * time.Second
	unsubStats := engine.OnChange(func(snapshot domain.DerivedStats) {
		writeCtx, writeCancel := context.WithTimeout(appCtx, 2*time.Second)
		defer writeCancel()
		if err := statsCache.Set(writeCtx, &snapshot, statsTTL); err != nil {
			log.Printf("[main] WARN: stats cache write failed: %v", err)
		}
	})
	defer unsubStats()

	svc := service.New(repo, signals)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, identityPublisher)
	api := httpapi.New(svc, auth, sessions, engine, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("inventory admin backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	appCancel()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
